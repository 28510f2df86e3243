// Package session is the authoritative game lifecycle: creation, joining,
// starting and advancing through questions. Every transition is a
// compare-and-swap against the store, so racing callers resolve to exactly
// one winner.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/identity"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/questionbank"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/rs/zerolog/log"
)

// QuestionSource defines what the app needs from the question bank.
type QuestionSource interface {
	Draw(topic string, n int) (string, []questionbank.Question, error)
}

// NameSource defines what the app needs from the identity generator.
type NameSource interface {
	Code() string
	Username() string
}

// App handles game lifecycle business logic.
type App struct {
	store     store.Store
	questions QuestionSource
	names     NameSource
	clock     clockwork.Clock
	cfg       Config
}

// NewApp creates a new session App.
func NewApp(st store.Store, questions QuestionSource, names NameSource, clock clockwork.Clock, cfg Config) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultConfig()
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = def.QuestionCount
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = def.CodeAttempts
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = def.MaxNameLength
	}
	return &App{
		store:     st,
		questions: questions,
		names:     names,
		clock:     clock,
		cfg:       cfg,
	}
}

// CreateGame creates a lobby with its host and a fixed question set in one
// transaction. Code collisions are retried up to the configured budget.
func (a *App) CreateGame(ctx context.Context, req CreateGameRequest) (*CreateGameResult, error) {
	hostName, err := a.displayName(req.HostName)
	if err != nil {
		return nil, err
	}

	topic, pool, err := a.questions.Draw(req.Topic, a.cfg.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gameerr.ErrCreation, err)
	}

	token, tokenHash, err := identity.NewToken()
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= a.cfg.CodeAttempts; attempt++ {
		gameID := uuid.New()
		questions := buildQuestions(gameID, pool)
		if err := validateQuestionSet(questions); err != nil {
			return nil, fmt.Errorf("%w: %w", gameerr.ErrCreation, err)
		}

		code := a.names.Code()
		var (
			game *models.Game
			host *models.Player
		)
		err := a.store.RunInTx(ctx, func(q store.Queries) error {
			g, err := q.InsertGame(ctx, store.InsertGameParams{
				ID:       gameID,
				Code:     code,
				HostName: hostName,
				Topic:    topic,
			})
			if err != nil {
				return err
			}
			p, err := q.InsertPlayer(ctx, store.InsertPlayerParams{
				ID:        uuid.New(),
				GameID:    g.ID,
				Name:      hostName,
				IsHost:    true,
				TokenHash: tokenHash,
			})
			if err != nil {
				return err
			}
			if err := q.InsertQuestionsBatch(ctx, g.ID, questions); err != nil {
				return err
			}
			game, host = g, p
			return nil
		})
		if errors.Is(err, store.ErrDuplicateCode) {
			log.Debug().
				Str("code", code).
				Int("attempt", attempt).
				Msg("game code collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", gameerr.ErrCreation, err)
		}

		log.Info().
			Str("game_id", game.ID.String()).
			Str("code", game.Code).
			Str("topic", game.Topic).
			Int("questions", len(questions)).
			Msg("game created")

		return &CreateGameResult{
			Game:       game,
			Host:       host,
			Credential: Credential{PlayerID: host.ID, Token: token},
			Questions:  len(questions),
		}, nil
	}

	return nil, fmt.Errorf("%w: no free game code after %d attempts", gameerr.ErrCreation, a.cfg.CodeAttempts)
}

// JoinGame adds a non-host player to a lobby. The lobby check runs against
// the locked game row, so a join racing a start either lands before the
// start or fails with ErrGameAlreadyStarted.
func (a *App) JoinGame(ctx context.Context, req JoinGameRequest) (*JoinGameResult, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, fmt.Errorf("game code is required: %w", gameerr.ErrInvalidInput)
	}
	if !identity.ValidCode(code) {
		return nil, fmt.Errorf("game code must be 4 digits: %w", gameerr.ErrInvalidInput)
	}
	name, err := a.displayName(req.Name)
	if err != nil {
		return nil, err
	}
	token, tokenHash, err := identity.NewToken()
	if err != nil {
		return nil, err
	}

	var (
		game   *models.Game
		player *models.Player
	)
	err = a.store.RunInTx(ctx, func(q store.Queries) error {
		g, err := q.GetGameByCode(ctx, code)
		if err != nil {
			return err
		}
		g, err = q.LockGame(ctx, g.ID)
		if err != nil {
			return err
		}
		if g.Status != models.GameStatusLobby {
			return gameerr.ErrGameAlreadyStarted
		}
		p, err := q.InsertPlayer(ctx, store.InsertPlayerParams{
			ID:        uuid.New(),
			GameID:    g.ID,
			Name:      name,
			TokenHash: tokenHash,
		})
		if err != nil {
			return err
		}
		game, player = g, p
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("code %s: %w", code, gameerr.ErrGameNotFound)
	case errors.Is(err, store.ErrDuplicateName):
		return nil, fmt.Errorf("name %q: %w", name, gameerr.ErrNameTaken)
	case err != nil:
		return nil, err
	}

	log.Info().
		Str("game_id", game.ID.String()).
		Str("player_id", player.ID.String()).
		Str("name", player.Name).
		Msg("player joined")

	return &JoinGameResult{
		Game:       game,
		Player:     player,
		Credential: Credential{PlayerID: player.ID, Token: token},
	}, nil
}

// StartGame moves a lobby to its first question. Host only.
func (a *App) StartGame(ctx context.Context, gameID uuid.UUID, cred Credential) (*models.Game, error) {
	if _, err := a.authenticateHost(ctx, gameID, cred); err != nil {
		return nil, err
	}
	game, err := a.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != models.GameStatusLobby {
		return nil, fmt.Errorf("cannot start game in status %s: %w", game.Status, gameerr.ErrInvalidTransition)
	}

	players, err := a.store.ListPlayers(ctx, gameID, store.OrderByJoin)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	if len(players) == 0 {
		return nil, gameerr.ErrEmptyRoster
	}

	now := a.clock.Now()
	first := 0
	updated, err := a.store.UpdateGameStatus(ctx, store.UpdateGameStatusParams{
		ID:                   gameID,
		ExpectedStatus:       models.GameStatusLobby,
		ExpectedIndex:        nil,
		Status:               models.GameStatusPlaying,
		CurrentQuestionIndex: &first,
		QuestionStartedAt:    &now,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("game %s already left the lobby: %w", gameID, gameerr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	log.Info().
		Str("game_id", gameID.String()).
		Int("players", len(players)).
		Msg("game started")
	return updated, nil
}

// AdvanceQuestion moves to the next question, or finishes the game after the
// last one. Host only.
func (a *App) AdvanceQuestion(ctx context.Context, req AdvanceRequest) (*AdvanceResult, error) {
	if _, err := a.authenticateHost(ctx, req.GameID, req.Credential); err != nil {
		return nil, err
	}
	game, err := a.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	if game.Status != models.GameStatusPlaying || game.CurrentQuestionIndex == nil {
		return nil, fmt.Errorf("cannot advance game in status %s: %w", game.Status, gameerr.ErrInvalidTransition)
	}

	current := *game.CurrentQuestionIndex
	if req.ExpectedIndex != nil && *req.ExpectedIndex != current {
		return nil, fmt.Errorf("expected question %d but game is on %d: %w", *req.ExpectedIndex, current, gameerr.ErrConflict)
	}

	questions, err := a.store.ListQuestions(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	params := store.UpdateGameStatusParams{
		ID:             req.GameID,
		ExpectedStatus: models.GameStatusPlaying,
		ExpectedIndex:  &current,
	}
	if next := current + 1; next < len(questions) {
		now := a.clock.Now()
		params.Status = models.GameStatusPlaying
		params.CurrentQuestionIndex = &next
		params.QuestionStartedAt = &now
	} else {
		params.Status = models.GameStatusFinished
		params.CurrentQuestionIndex = &current
	}

	updated, err := a.store.UpdateGameStatus(ctx, params)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("question %d already advanced: %w", current, gameerr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance game: %w", err)
	}

	result := &AdvanceResult{
		Game:     updated,
		Index:    updated.QuestionIndex(),
		Finished: updated.Status == models.GameStatusFinished,
	}
	log.Info().
		Str("game_id", req.GameID.String()).
		Int("question_index", result.Index).
		Bool("finished", result.Finished).
		Msg("game advanced")
	return result, nil
}

// GetGame retrieves a game by ID.
func (a *App) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	game, err := a.store.GetGame(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("game %s: %w", id, gameerr.ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// GetGameByCode retrieves a game by its join code.
func (a *App) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	if !identity.ValidCode(code) {
		return nil, fmt.Errorf("game code must be 4 digits: %w", gameerr.ErrInvalidInput)
	}
	game, err := a.store.GetGameByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("code %s: %w", code, gameerr.ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// Leaderboard returns players by score descending, ties broken by join order.
func (a *App) Leaderboard(ctx context.Context, gameID uuid.UUID) ([]Standing, error) {
	if _, err := a.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	players, err := a.store.ListPlayers(ctx, gameID, store.OrderByScore)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return Standings(players), nil
}

// Standings ranks players that are already in leaderboard order.
func Standings(players []models.Player) []Standing {
	out := make([]Standing, len(players))
	for i, p := range players {
		out[i] = Standing{
			Rank:     i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			IsHost:   p.IsHost,
		}
	}
	return out
}

func (a *App) displayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return a.names.Username(), nil
	}
	if utf8.RuneCountInString(name) > a.cfg.MaxNameLength {
		return "", fmt.Errorf("display name longer than %d characters: %w", a.cfg.MaxNameLength, gameerr.ErrInvalidInput)
	}
	return name, nil
}

func buildQuestions(gameID uuid.UUID, pool []questionbank.Question) []models.Question {
	out := make([]models.Question, len(pool))
	for i, q := range pool {
		out[i] = models.Question{
			ID:           uuid.New(),
			GameID:       gameID,
			Order:        i,
			Text:         q.Text,
			Options:      append([]string(nil), q.Options...),
			AnswerIndex:  q.AnswerIndex,
			TimeLimitSec: q.TimeLimitSec,
		}
	}
	return out
}

// validateQuestionSet rejects sets a game could not be played with.
func validateQuestionSet(questions []models.Question) error {
	if len(questions) == 0 {
		return questionbank.ErrEmptyPool
	}
	for i, q := range questions {
		if q.Order != i {
			return fmt.Errorf("question ordinals not dense: position %d has order %d", i, q.Order)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d has %d options", i, len(q.Options))
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			return fmt.Errorf("question %d answer_index %d out of range", i, q.AnswerIndex)
		}
		if q.TimeLimitSec <= 0 {
			return fmt.Errorf("question %d has no time limit", i)
		}
	}
	return nil
}
