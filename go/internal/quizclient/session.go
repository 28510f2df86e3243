package quizclient

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/service"
	"github.com/mcdev12/livequiz/go/internal/game/timer"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Session is one participant's handle on a game.
type Session struct {
	client *Client

	GameID   uuid.UUID
	Code     string
	PlayerID uuid.UUID
	Name     string
	IsHost   bool

	token     string
	countdown *timer.Countdown

	mu       sync.Mutex
	latest   *view.GameView
	watching bool
}

// Countdown is the local, advisory countdown for the current question.
func (s *Session) Countdown() *timer.Countdown {
	return s.countdown
}

// Latest returns the most recent view seen, or nil.
func (s *Session) Latest() *view.GameView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// apply records a view and keeps the countdown in step with it.
func (s *Session) apply(v view.GameView) {
	s.mu.Lock()
	s.latest = &v
	s.mu.Unlock()

	switch {
	case v.Game.Status == models.GameStatusFinished:
		s.countdown.Stop()
	case v.Transition.QuestionChanged && v.Question != nil:
		if s.countdown.Reset(v.Question.Index, v.Question.TimeLimitSec) {
			log.Debug().
				Str("game_id", s.GameID.String()).
				Int("question_index", v.Question.Index).
				Int("time_limit", v.Question.TimeLimitSec).
				Msg("countdown started")
		}
	}
}

// current returns the view to act on: the watched one when a stream is
// open, otherwise a fresh snapshot.
func (s *Session) current(ctx context.Context) (*view.GameView, error) {
	s.mu.Lock()
	latest, watching := s.latest, s.watching
	s.mu.Unlock()
	if watching && latest != nil {
		return latest, nil
	}
	v, err := s.client.GameState(ctx, s.GameID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if !s.watching {
		s.latest = v
	}
	s.mu.Unlock()
	return v, nil
}

// Start begins the game. Host only. When an earlier attempt went through
// but its response was lost, the retry is refused; the game is then checked
// and a running game counts as started.
func (s *Session) Start(ctx context.Context) (*models.Game, error) {
	attempts := 0
	res, err := retry(ctx, s.client, func() (*service.StartGameResponse, error) {
		attempts++
		return s.client.rpc.StartGame(ctx, s.token, &service.StartGameRequest{GameID: s.GameID, PlayerID: s.PlayerID})
	})
	if err == nil {
		return &res.Game, nil
	}
	if attempts < 2 || !(errors.Is(err, gameerr.ErrInvalidTransition) || errors.Is(err, gameerr.ErrConflict)) {
		return nil, err
	}
	v, stateErr := s.client.GameState(ctx, s.GameID)
	if stateErr != nil || v.Game.Status != models.GameStatusPlaying {
		return nil, err
	}
	log.Debug().Str("game_id", s.GameID.String()).Msg("start retried after a lost response, game is running")
	return &v.Game, nil
}

// Advance moves to the next question, or finishes after the last one. The
// request names the question this session last saw, so a double click or a
// second host tab cannot skip a question: a conflict means someone else
// already advanced, and is reported as advanced=false with no error.
func (s *Session) Advance(ctx context.Context) (bool, error) {
	v, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	return s.AdvanceFrom(ctx, v.CurrentIndex())
}

// AdvanceFrom advances only if the game is still on question expected.
func (s *Session) AdvanceFrom(ctx context.Context, expected int) (bool, error) {
	_, err := retry(ctx, s.client, func() (*service.AdvanceQuestionResponse, error) {
		return s.client.rpc.AdvanceQuestion(ctx, s.token, &service.AdvanceQuestionRequest{
			GameID:        s.GameID,
			PlayerID:      s.PlayerID,
			ExpectedIndex: &expected,
		})
	})
	if errors.Is(err, gameerr.ErrConflict) {
		log.Debug().
			Str("game_id", s.GameID.String()).
			Int("expected_index", expected).
			Msg("advance dropped, question already moved on")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Submit answers the current question. Once the local countdown for it has
// run out the answer is refused without a round trip.
func (s *Session) Submit(ctx context.Context, optionIndex int) (*service.SubmitAnswerResponse, error) {
	v, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if v.Question == nil {
		return nil, gameerr.ErrInvalidTransition
	}
	idx := v.Question.Index
	if s.countdown.Index() == idx && s.countdown.Expired() {
		return nil, gameerr.ErrAnswerWindowClosed
	}

	// Safe to repeat: a second submission returns the first answer.
	return retry(ctx, s.client, func() (*service.SubmitAnswerResponse, error) {
		return s.client.rpc.SubmitAnswer(ctx, s.token, &service.SubmitAnswerRequest{
			GameID:        s.GameID,
			PlayerID:      s.PlayerID,
			QuestionIndex: idx,
			OptionIndex:   optionIndex,
		})
	})
}
