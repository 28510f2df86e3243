// Package events holds the wire format shared by the outbox relay and the
// gateway consumer.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// DefaultSubjectPrefix roots every change subject.
const DefaultSubjectPrefix = "quiz.changes"

// Header keys set on published messages.
const (
	HeaderEventID = "Event-ID"
	HeaderGameID  = "Game-ID"
	HeaderEntity  = "Entity"
)

// Envelope is one ChangeEvent on the wire.
type Envelope struct {
	EventID     uuid.UUID         `json:"event_id"`
	GameID      uuid.UUID         `json:"game_id"`
	Entity      models.EntityKind `json:"entity"`
	Op          models.Operation  `json:"op"`
	Before      json.RawMessage   `json:"before,omitempty"`
	After       json.RawMessage   `json:"after"`
	OccurredAt  time.Time         `json:"occurred_at"`
	PublishedAt time.Time         `json:"published_at"`
}

// Wrap builds the envelope for evt.
func Wrap(evt models.ChangeEvent, publishedAt time.Time) Envelope {
	return Envelope{
		EventID:     evt.ID,
		GameID:      evt.GameID,
		Entity:      evt.Entity,
		Op:          evt.Op,
		Before:      evt.Before,
		After:       evt.After,
		OccurredAt:  evt.OccurredAt,
		PublishedAt: publishedAt.UTC(),
	}
}

// Change converts the envelope back into a ChangeEvent.
func (e Envelope) Change() models.ChangeEvent {
	return models.ChangeEvent{
		ID:         e.EventID,
		GameID:     e.GameID,
		Entity:     e.Entity,
		Op:         e.Op,
		Before:     e.Before,
		After:      e.After,
		OccurredAt: e.OccurredAt,
	}
}

// Encode marshals the envelope.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses and sanity-checks an envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if e.EventID == uuid.Nil || e.GameID == uuid.Nil {
		return Envelope{}, fmt.Errorf("envelope missing ids")
	}
	return e, nil
}

// Subject is where changes of one entity kind for one game are published:
// <prefix>.<game_id>.<entity>.
func Subject(prefix string, gameID uuid.UUID, entity models.EntityKind) string {
	return fmt.Sprintf("%s.%s.%s", prefix, gameID, entity)
}

// Wildcard matches every change under prefix.
func Wildcard(prefix string) string {
	return prefix + ".>"
}

// GameFromSubject extracts the game id from a change subject.
func GameFromSubject(prefix, subject string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return uuid.Nil, fmt.Errorf("subject %q outside %q", subject, prefix)
	}
	id, _, _ := strings.Cut(rest, ".")
	return uuid.Parse(id)
}
