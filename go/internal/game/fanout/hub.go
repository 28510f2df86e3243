// Package fanout delivers committed game changes to in-process subscribers.
package fanout

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the per-subscription event buffer.
const DefaultBufferSize = 64

// Hub is a per-game publish/subscribe channel. Publish never blocks: a
// subscriber whose buffer is full is dropped and must resubscribe.
type Hub struct {
	mu         sync.RWMutex
	games      map[uuid.UUID]map[*Subscription]struct{}
	bufferSize int
}

// NewHub creates a hub. A bufferSize <= 0 uses DefaultBufferSize.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		games:      make(map[uuid.UUID]map[*Subscription]struct{}),
		bufferSize: bufferSize,
	}
}

var _ store.ChangeFeed = (*Hub)(nil)

// Subscription is one subscriber's view of a game's changes.
type Subscription struct {
	hub    *Hub
	gameID uuid.UUID
	kinds  map[models.EntityKind]bool
	events chan models.ChangeEvent
	once   sync.Once
}

// Events implements store.Subscription.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// Close implements store.Subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) wants(kind models.EntityKind) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

// SubscribeChanges registers a subscriber for gameID. With no kinds every
// entity kind is delivered.
func (h *Hub) SubscribeChanges(gameID uuid.UUID, kinds ...models.EntityKind) (store.Subscription, error) {
	return h.Subscribe(gameID, kinds...), nil
}

// Subscribe is SubscribeChanges returning the concrete type.
func (h *Hub) Subscribe(gameID uuid.UUID, kinds ...models.EntityKind) *Subscription {
	sub := &Subscription{
		hub:    h,
		gameID: gameID,
		events: make(chan models.ChangeEvent, h.bufferSize),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[models.EntityKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.games[gameID] == nil {
		h.games[gameID] = make(map[*Subscription]struct{})
	}
	h.games[gameID][sub] = struct{}{}

	log.Debug().
		Str("game_id", gameID.String()).
		Int("subscribers", len(h.games[gameID])).
		Msg("subscriber registered")
	return sub
}

// Publish delivers evt to every matching subscriber of its game.
func (h *Hub) Publish(evt models.ChangeEvent) {
	var slow []*Subscription

	h.mu.RLock()
	for sub := range h.games[evt.GameID] {
		if !sub.wants(evt.Entity) {
			continue
		}
		select {
		case sub.events <- evt:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		log.Warn().
			Str("game_id", evt.GameID.String()).
			Msg("subscriber buffer full, dropping subscription")
		h.remove(sub)
	}
}

func (h *Hub) remove(sub *Subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		if subs, ok := h.games[sub.gameID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.games, sub.gameID)
			}
		}
		// Closed under the write lock so Publish never sends on a closed channel.
		close(sub.events)
		h.mu.Unlock()
	})
}

// Stats reports how many games and subscriptions are live.
func (h *Hub) Stats() (games, subscribers int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.games {
		subscribers += len(subs)
	}
	return len(h.games), subscribers
}
