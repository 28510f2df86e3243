package session

import (
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// Credential is the capability returned by CreateGame and JoinGame. The
// token is only ever held by the caller; the store keeps its hash.
type Credential struct {
	PlayerID uuid.UUID
	Token    string
}

// CreateGameRequest represents the request to host a new game.
type CreateGameRequest struct {
	HostName string
	Topic    string
}

// CreateGameResult carries the new game and the host's credential.
type CreateGameResult struct {
	Game       *models.Game
	Host       *models.Player
	Credential Credential
	Questions  int
}

// JoinGameRequest represents a player joining by code.
type JoinGameRequest struct {
	Code string
	Name string
}

// JoinGameResult carries the joined player and their credential.
type JoinGameResult struct {
	Game       *models.Game
	Player     *models.Player
	Credential Credential
}

// AdvanceRequest moves a playing game to its next question. ExpectedIndex,
// when set, is the index the caller believes is current; a mismatch is a
// conflict rather than a second advance.
type AdvanceRequest struct {
	GameID        uuid.UUID
	Credential    Credential
	ExpectedIndex *int
}

// AdvanceResult reports where the game ended up.
type AdvanceResult struct {
	Game     *models.Game
	Index    int
	Finished bool
}

// Standing is one leaderboard row.
type Standing struct {
	Rank     int       `json:"rank"`
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	IsHost   bool      `json:"is_host"`
}

// Config holds tunables for the state machine.
type Config struct {
	QuestionCount int
	CodeAttempts  int
	MaxNameLength int
}

// DefaultConfig returns the standard game shape.
func DefaultConfig() Config {
	return Config{
		QuestionCount: 5,
		CodeAttempts:  10,
		MaxNameLength: 32,
	}
}
