package view

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Source is the read side of the store plus its change feed.
type Source interface {
	store.ChangeFeed
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID, order store.PlayerOrder) ([]models.Player, error)
	ListQuestions(ctx context.Context, gameID uuid.UUID) ([]models.Question, error)
	CountAnswers(ctx context.Context, questionID uuid.UUID) (int, error)
}

// Observer builds GameView snapshots and streams them as the game changes.
type Observer struct {
	src Source
}

// NewObserver creates an Observer over src.
func NewObserver(src Source) *Observer {
	return &Observer{src: src}
}

// Snapshot reads the current state of a game. The returned view carries no
// transition flags.
func (o *Observer) Snapshot(ctx context.Context, gameID uuid.UUID) (*GameView, error) {
	game, err := o.src.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("game %s: %w", gameID, gameerr.ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	players, err := o.src.ListPlayers(ctx, gameID, store.OrderByScore)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	questions, err := o.src.ListQuestions(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	v := &GameView{
		Game:          *game,
		Players:       session.Standings(players),
		QuestionCount: len(questions),
	}

	switch game.Status {
	case models.GameStatusPlaying:
		idx := game.QuestionIndex()
		if idx < 0 || idx >= len(questions) {
			break
		}
		qv, err := o.questionView(ctx, questions[idx], false)
		if err != nil {
			return nil, err
		}
		v.Question = &qv
	case models.GameStatusFinished:
		v.Results = make([]QuestionView, 0, len(questions))
		for _, q := range questions {
			qv, err := o.questionView(ctx, q, true)
			if err != nil {
				return nil, err
			}
			v.Results = append(v.Results, qv)
		}
	}
	return v, nil
}

func (o *Observer) questionView(ctx context.Context, q models.Question, reveal bool) (QuestionView, error) {
	n, err := o.src.CountAnswers(ctx, q.ID)
	if err != nil {
		return QuestionView{}, fmt.Errorf("failed to count answers: %w", err)
	}
	qv := QuestionView{
		Index:         q.Order,
		Text:          q.Text,
		Options:       append([]string(nil), q.Options...),
		TimeLimitSec:  q.TimeLimitSec,
		AnsweredCount: n,
	}
	if reveal {
		idx := q.AnswerIndex
		qv.AnswerIndex = &idx
	}
	return qv, nil
}

// Observe streams snapshots of a game until ctx is cancelled. The first view
// is sent immediately; after that a new view follows each burst of changes.
// If the feed drops the subscription the observer resubscribes and starts
// again from a fresh snapshot. The channel is closed when observation ends.
func (o *Observer) Observe(ctx context.Context, gameID uuid.UUID) (<-chan GameView, error) {
	// Subscribe before the first read so no change between the two is lost.
	sub, err := o.src.SubscribeChanges(gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	first, err := o.Snapshot(ctx, gameID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan GameView, 1)
	go o.run(ctx, gameID, sub, first, out)
	return out, nil
}

func (o *Observer) run(ctx context.Context, gameID uuid.UUID, sub store.Subscription, first *GameView, out chan<- GameView) {
	defer close(out)
	defer func() { sub.Close() }()

	var tr tracker
	if v, ok := tr.next(first); ok && !send(ctx, out, v) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				log.Debug().Str("game_id", gameID.String()).Msg("change feed dropped, resubscribing")
				next, err := o.resubscribe(ctx, gameID)
				if err != nil {
					log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to resubscribe")
					return
				}
				sub = next
			}
			drain(sub)
		}

		// The burst is already drained, so a failed read must be retried
		// here; no later event is guaranteed to trigger another refresh.
		snap, err := o.refresh(ctx, gameID)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("game_id", gameID.String()).Msg("giving up refreshing game view")
			}
			return
		}
		if v, ok := tr.next(snap); ok && !send(ctx, out, v) {
			return
		}
	}
}

func (o *Observer) resubscribe(ctx context.Context, gameID uuid.UUID) (store.Subscription, error) {
	return backoff.Retry(ctx, func() (store.Subscription, error) {
		return o.src.SubscribeChanges(gameID)
	}, backoff.WithBackOff(newBackOff()))
}

// refresh takes a snapshot, retrying failed reads. A game that no longer
// exists is not retried.
func (o *Observer) refresh(ctx context.Context, gameID uuid.UUID) (*GameView, error) {
	return backoff.Retry(ctx, func() (*GameView, error) {
		v, err := o.Snapshot(ctx, gameID)
		if errors.Is(err, gameerr.ErrGameNotFound) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithNotify(func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("game_id", gameID.String()).Dur("retry_in", wait).Msg("failed to refresh game view")
	}))
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// drain discards events already queued; the snapshot that follows covers them.
func drain(sub store.Subscription) {
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func send(ctx context.Context, out chan<- GameView, v GameView) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// tracker derives transitions from consecutive snapshots and drops any
// snapshot that would move the game backwards.
type tracker struct {
	seen   bool
	status models.GameStatus
	index  int
}

func (t *tracker) next(v *GameView) (GameView, bool) {
	status := v.Game.Status
	index := v.Game.QuestionIndex()

	if t.seen {
		if status.Rank() < t.status.Rank() || (status == t.status && index < t.index) {
			return GameView{}, false
		}
	}

	var tr Transition
	if t.seen {
		tr.Started = t.status == models.GameStatusLobby && status != models.GameStatusLobby
		tr.Finished = t.status != models.GameStatusFinished && status == models.GameStatusFinished
	}
	// The first view of a running question counts as a change: that is when
	// this observer becomes aware of it.
	tr.QuestionChanged = status == models.GameStatusPlaying &&
		(!t.seen || t.status != models.GameStatusPlaying || index != t.index)

	t.seen = true
	t.status = status
	t.index = index

	out := *v
	out.Transition = tr
	return out, true
}
