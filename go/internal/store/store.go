// Package store defines the narrow row-store contract the session engine
// runs on. Every mutation is atomic per row; multi-row changes go through
// RunInTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrDuplicateCode = errors.New("store: game code already in use")
	ErrDuplicateName = errors.New("store: player name already in use")
	ErrConflict      = errors.New("store: row changed concurrently")
	ErrScoreDecrease = errors.New("store: score may not decrease")
	// ErrUnavailable wraps backend failures that may clear up on retry,
	// such as a lost connection or an exhausted pool.
	ErrUnavailable = errors.New("store: temporarily unavailable")
)

// PlayerOrder selects the ordering of ListPlayers.
type PlayerOrder int

const (
	// OrderByJoin orders players by join sequence.
	OrderByJoin PlayerOrder = iota
	// OrderByScore orders by score descending, ties by join sequence.
	OrderByScore
)

type InsertGameParams struct {
	ID       uuid.UUID
	Code     string
	HostName string
	Topic    string
}

// UpdateGameStatusParams is a compare-and-swap on (status, current index).
type UpdateGameStatusParams struct {
	ID             uuid.UUID
	ExpectedStatus models.GameStatus
	ExpectedIndex  *int

	Status               models.GameStatus
	CurrentQuestionIndex *int
	QuestionStartedAt    *time.Time
}

type InsertPlayerParams struct {
	ID        uuid.UUID
	GameID    uuid.UUID
	Name      string
	IsHost    bool
	TokenHash string
}

// UpdatePlayerScoreParams is a compare-and-swap on score.
type UpdatePlayerScoreParams struct {
	ID            uuid.UUID
	ExpectedScore int
	Score         int
}

type InsertAnswerParams struct {
	ID            uuid.UUID
	PlayerID      uuid.UUID
	QuestionID    uuid.UUID
	SelectedIndex int
	IsCorrect     bool
	AnsweredAt    time.Time
}

// Queries is the set of row operations available both inside and outside
// a transaction.
type Queries interface {
	InsertGame(ctx context.Context, arg InsertGameParams) (*models.Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetGameByCode(ctx context.Context, code string) (*models.Game, error)
	// LockGame reads the game and holds a share lock on it until the
	// surrounding transaction ends.
	LockGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	UpdateGameStatus(ctx context.Context, arg UpdateGameStatusParams) (*models.Game, error)

	InsertPlayer(ctx context.Context, arg InsertPlayerParams) (*models.Player, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID, order PlayerOrder) ([]models.Player, error)
	UpdatePlayerScore(ctx context.Context, arg UpdatePlayerScoreParams) (*models.Player, error)

	InsertQuestionsBatch(ctx context.Context, gameID uuid.UUID, questions []models.Question) error
	ListQuestions(ctx context.Context, gameID uuid.UUID) ([]models.Question, error)

	GetAnswer(ctx context.Context, playerID, questionID uuid.UUID) (*models.Answer, error)
	// InsertAnswerIfAbsent stores the answer unless one already exists for
	// (player, question). It always returns the stored row; inserted is false
	// when an earlier answer won.
	InsertAnswerIfAbsent(ctx context.Context, arg InsertAnswerParams) (answer *models.Answer, inserted bool, err error)
	CountAnswers(ctx context.Context, questionID uuid.UUID) (int, error)
}

// Subscription is a live feed of changes for one game.
type Subscription interface {
	// Events is closed when the subscription ends, either through Close or
	// because the subscriber fell behind. There is no replay; callers must
	// re-snapshot after resubscribing.
	Events() <-chan models.ChangeEvent
	Close()
}

// ChangeFeed delivers committed mutations at least once.
type ChangeFeed interface {
	SubscribeChanges(gameID uuid.UUID, kinds ...models.EntityKind) (Subscription, error)
}

// Store is the full contract consumed by the engine.
type Store interface {
	Queries
	ChangeFeed
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}
