package models

import (
	"time"

	"github.com/google/uuid"
)

// Player represents one participant bound to exactly one game.
type Player struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"is_host"`
	Score     int       `json:"score"`
	JoinSeq   int64     `json:"join_seq"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
