// Package answer records answers exactly once per player and question and
// keeps each player's score in step with their correct answers.
package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/rs/zerolog/log"
)

const maxScoreAttempts = 3

// Authenticator resolves a credential to a player of a game.
type Authenticator interface {
	Authenticate(ctx context.Context, gameID uuid.UUID, cred session.Credential) (*models.Player, error)
}

// App handles answer submission.
type App struct {
	store store.Store
	auth  Authenticator
	clock clockwork.Clock
	cfg   Config
}

// NewApp creates a new answer App.
func NewApp(st store.Store, auth Authenticator, clock clockwork.Clock, cfg Config) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PointsPerCorrect <= 0 {
		cfg.PointsPerCorrect = DefaultConfig().PointsPerCorrect
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &App{store: st, auth: auth, clock: clock, cfg: cfg}
}

// SubmitAnswer records the caller's answer to the current question.
//
// The game row is share-locked for the whole transaction, so the question
// cannot advance between the staleness check and the insert. A repeat
// submission, including the loser of a concurrent race, returns the stored
// answer without touching the score.
func (a *App) SubmitAnswer(ctx context.Context, req SubmitRequest) (*Result, error) {
	player, err := a.auth.Authenticate(ctx, req.GameID, req.Credential)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = a.store.RunInTx(ctx, func(q store.Queries) error {
		game, err := q.LockGame(ctx, req.GameID)
		if errors.Is(err, store.ErrNotFound) {
			return gameerr.ErrGameNotFound
		}
		if err != nil {
			return err
		}
		if game.Status != models.GameStatusPlaying {
			return fmt.Errorf("cannot answer in status %s: %w", game.Status, gameerr.ErrInvalidTransition)
		}
		if req.QuestionIndex != game.QuestionIndex() {
			return fmt.Errorf("question %d is not current (%d): %w", req.QuestionIndex, game.QuestionIndex(), gameerr.ErrStaleQuestion)
		}

		questions, err := q.ListQuestions(ctx, game.ID)
		if err != nil {
			return err
		}
		if req.QuestionIndex < 0 || req.QuestionIndex >= len(questions) {
			return fmt.Errorf("question %d missing: %w", req.QuestionIndex, gameerr.ErrStaleQuestion)
		}
		question := questions[req.QuestionIndex]

		// A repeat returns the recorded result whatever it carries.
		existing, err := q.GetAnswer(ctx, player.ID, question.ID)
		switch {
		case err == nil:
			result, err = a.duplicate(ctx, q, existing, question)
			return err
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if req.OptionIndex < 0 || req.OptionIndex >= len(question.Options) {
			return fmt.Errorf("option %d out of range: %w", req.OptionIndex, gameerr.ErrInvalidInput)
		}

		now := a.clock.Now()
		if game.QuestionStartedAt != nil {
			deadline := game.QuestionStartedAt.Add(question.TimeLimit() + a.cfg.Grace)
			if now.After(deadline) {
				return fmt.Errorf("question %d closed at %s: %w", req.QuestionIndex, deadline.Format("15:04:05"), gameerr.ErrAnswerWindowClosed)
			}
		}

		stored, inserted, err := q.InsertAnswerIfAbsent(ctx, store.InsertAnswerParams{
			ID:            uuid.New(),
			PlayerID:      player.ID,
			QuestionID:    question.ID,
			SelectedIndex: req.OptionIndex,
			IsCorrect:     req.OptionIndex == question.AnswerIndex,
			AnsweredAt:    now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result, err = a.duplicate(ctx, q, stored, question)
			return err
		}

		score := player.Score
		delta := 0
		if stored.IsCorrect {
			delta = a.cfg.PointsPerCorrect
			updated, err := a.addPoints(ctx, q, player.ID, delta)
			if err != nil {
				return err
			}
			score = updated.Score
		} else if current, err := q.GetPlayer(ctx, player.ID); err == nil {
			score = current.Score
		}

		result = &Result{
			Answer:       *stored,
			Correct:      stored.IsCorrect,
			CorrectIndex: question.AnswerIndex,
			ScoreDelta:   delta,
			Score:        score,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("game_id", req.GameID.String()).
		Str("player_id", player.ID.String()).
		Int("question_index", req.QuestionIndex).
		Bool("correct", result.Correct).
		Bool("duplicate", result.AlreadyAnswered).
		Msg("answer recorded")
	return result, nil
}

func (a *App) duplicate(ctx context.Context, q store.Queries, stored *models.Answer, question models.Question) (*Result, error) {
	player, err := q.GetPlayer(ctx, stored.PlayerID)
	if err != nil {
		return nil, err
	}
	delta := 0
	if stored.IsCorrect {
		delta = a.cfg.PointsPerCorrect
	}
	return &Result{
		Answer:          *stored,
		Correct:         stored.IsCorrect,
		CorrectIndex:    question.AnswerIndex,
		ScoreDelta:      delta,
		Score:           player.Score,
		AlreadyAnswered: true,
	}, nil
}

// addPoints raises the score with a compare-and-swap, re-reading on conflict.
func (a *App) addPoints(ctx context.Context, q store.Queries, playerID uuid.UUID, points int) (*models.Player, error) {
	for attempt := 1; ; attempt++ {
		player, err := q.GetPlayer(ctx, playerID)
		if err != nil {
			return nil, err
		}
		updated, err := q.UpdatePlayerScore(ctx, store.UpdatePlayerScoreParams{
			ID:            playerID,
			ExpectedScore: player.Score,
			Score:         player.Score + points,
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxScoreAttempts {
			return nil, fmt.Errorf("failed to update score: %w", err)
		}
	}
}
