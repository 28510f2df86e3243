package answer

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// SubmitRequest is one answer attempt for the question the caller is viewing.
type SubmitRequest struct {
	GameID        uuid.UUID
	Credential    session.Credential
	QuestionIndex int
	OptionIndex   int
}

// Result is the recorded outcome. A repeated submission returns the first
// outcome with AlreadyAnswered set.
type Result struct {
	Answer          models.Answer
	Correct         bool
	CorrectIndex    int
	ScoreDelta      int
	Score           int
	AlreadyAnswered bool
}

// Config holds scoring policy.
type Config struct {
	PointsPerCorrect int
	// Grace is added to a question's time limit before the server refuses
	// answers, to absorb network latency.
	Grace time.Duration
}

// DefaultConfig returns the flat 10-point policy.
func DefaultConfig() Config {
	return Config{
		PointsPerCorrect: 10,
		Grace:            2 * time.Second,
	}
}
