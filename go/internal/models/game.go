package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the lifecycle state of a game.
type GameStatus string

const (
	GameStatusLobby    GameStatus = "lobby"
	GameStatusPlaying  GameStatus = "playing"
	GameStatusFinished GameStatus = "finished"
)

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusLobby, GameStatusPlaying, GameStatusFinished:
		return true
	}
	return false
}

// Rank orders statuses along the only legal path lobby -> playing -> finished.
func (s GameStatus) Rank() int {
	switch s {
	case GameStatusLobby:
		return 0
	case GameStatusPlaying:
		return 1
	case GameStatusFinished:
		return 2
	}
	return -1
}

// Game represents one quiz session.
type Game struct {
	ID                   uuid.UUID  `json:"id"`
	Code                 string     `json:"code"`
	HostName             string     `json:"host_name"`
	Topic                string     `json:"topic"`
	Status               GameStatus `json:"status"`
	CurrentQuestionIndex *int       `json:"current_question_index"`
	QuestionStartedAt    *time.Time `json:"question_started_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsActive reports whether the game still holds its code.
func (g *Game) IsActive() bool {
	return g.Status != GameStatusFinished
}

// QuestionIndex returns the current question index, or -1 before start.
func (g *Game) QuestionIndex() int {
	if g.CurrentQuestionIndex == nil {
		return -1
	}
	return *g.CurrentQuestionIndex
}

// Clone returns a deep copy of the game.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	if g.CurrentQuestionIndex != nil {
		idx := *g.CurrentQuestionIndex
		c.CurrentQuestionIndex = &idx
	}
	if g.QuestionStartedAt != nil {
		at := *g.QuestionStartedAt
		c.QuestionStartedAt = &at
	}
	return &c
}
