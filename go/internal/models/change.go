package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityKind names the row type a change refers to.
type EntityKind string

const (
	EntityGame     EntityKind = "game"
	EntityPlayer   EntityKind = "player"
	EntityQuestion EntityKind = "question"
	EntityAnswer   EntityKind = "answer"
)

// Operation is the kind of mutation applied to a row.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent describes one committed mutation scoped to a game.
type ChangeEvent struct {
	ID         uuid.UUID       `json:"id"`
	GameID     uuid.UUID       `json:"game_id"`
	Entity     EntityKind      `json:"entity"`
	Op         Operation       `json:"op"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewChangeEvent marshals before/after states into a ChangeEvent.
// A nil before is left empty.
func NewChangeEvent(gameID uuid.UUID, entity EntityKind, op Operation, before, after any, at time.Time) (ChangeEvent, error) {
	evt := ChangeEvent{
		ID:         uuid.New(),
		GameID:     gameID,
		Entity:     entity,
		Op:         op,
		OccurredAt: at,
	}
	if before != nil {
		b, err := json.Marshal(before)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("marshal before state: %w", err)
		}
		evt.Before = b
	}
	a, err := json.Marshal(after)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("marshal after state: %w", err)
	}
	evt.After = a
	return evt, nil
}
