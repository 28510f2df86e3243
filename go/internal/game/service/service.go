// Package service exposes the quiz engine as connect RPC procedures.
package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/game/answer"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionApp defines what the service layer needs from the session engine
type SessionApp interface {
	CreateGame(ctx context.Context, req session.CreateGameRequest) (*session.CreateGameResult, error)
	JoinGame(ctx context.Context, req session.JoinGameRequest) (*session.JoinGameResult, error)
	StartGame(ctx context.Context, gameID uuid.UUID, cred session.Credential) (*models.Game, error)
	AdvanceQuestion(ctx context.Context, req session.AdvanceRequest) (*session.AdvanceResult, error)
	Leaderboard(ctx context.Context, gameID uuid.UUID) ([]session.Standing, error)
}

// AnswerApp defines what the service layer needs from the scoring engine
type AnswerApp interface {
	SubmitAnswer(ctx context.Context, req answer.SubmitRequest) (*answer.Result, error)
}

// Snapshotter reads a game's current view.
type Snapshotter interface {
	Snapshot(ctx context.Context, gameID uuid.UUID) (*view.GameView, error)
}

// Options tunes the HTTP surface.
type Options struct {
	RequestTimeout time.Duration
	// JoinRateLimit is the number of joins allowed per IP per minute;
	// zero disables limiting.
	JoinRateLimit int
}

func DefaultOptions() Options {
	return Options{
		RequestTimeout: 10 * time.Second,
		JoinRateLimit:  30,
	}
}

// Service implements the QuizService procedures
type Service struct {
	sessions SessionApp
	answers  AnswerApp
	views    Snapshotter
}

// NewService creates a new quiz service
func NewService(sessions SessionApp, answers AnswerApp, views Snapshotter) *Service {
	return &Service{
		sessions: sessions,
		answers:  answers,
		views:    views,
	}
}

// RegisterRoutes mounts every procedure on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux, opts Options) {
	handlerOpts := []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(timeoutInterceptor(opts.RequestTimeout), loggingInterceptor()),
	}

	join := http.Handler(connect.NewUnaryHandler(JoinGameProcedure, s.JoinGame, handlerOpts...))
	if opts.JoinRateLimit > 0 {
		join = httprate.LimitByIP(opts.JoinRateLimit, time.Minute)(join)
	}

	mux.Handle(CreateGameProcedure, connect.NewUnaryHandler(CreateGameProcedure, s.CreateGame, handlerOpts...))
	mux.Handle(JoinGameProcedure, join)
	mux.Handle(StartGameProcedure, connect.NewUnaryHandler(StartGameProcedure, s.StartGame, handlerOpts...))
	mux.Handle(AdvanceQuestionProcedure, connect.NewUnaryHandler(AdvanceQuestionProcedure, s.AdvanceQuestion, handlerOpts...))
	mux.Handle(SubmitAnswerProcedure, connect.NewUnaryHandler(SubmitAnswerProcedure, s.SubmitAnswer, handlerOpts...))
	mux.Handle(GetLeaderboardProcedure, connect.NewUnaryHandler(GetLeaderboardProcedure, s.GetLeaderboard, handlerOpts...))
	mux.Handle(GetGameStateProcedure, connect.NewUnaryHandler(GetGameStateProcedure, s.GetGameState, handlerOpts...))
}

// CreateGame hosts a new game
func (s *Service) CreateGame(ctx context.Context, req *connect.Request[CreateGameRequest]) (*connect.Response[CreateGameResponse], error) {
	res, err := s.sessions.CreateGame(ctx, session.CreateGameRequest{
		HostName: req.Msg.HostName,
		Topic:    req.Msg.Topic,
	})
	if err != nil {
		return nil, toConnectError(CreateGameProcedure, err)
	}

	return connect.NewResponse(&CreateGameResponse{
		Game:          *res.Game,
		PlayerID:      res.Credential.PlayerID,
		Token:         res.Credential.Token,
		HostName:      res.Host.Name,
		QuestionCount: res.Questions,
	}), nil
}

// JoinGame adds a player to a lobby by code
func (s *Service) JoinGame(ctx context.Context, req *connect.Request[JoinGameRequest]) (*connect.Response[JoinGameResponse], error) {
	res, err := s.sessions.JoinGame(ctx, session.JoinGameRequest{
		Code: req.Msg.Code,
		Name: req.Msg.Name,
	})
	if err != nil {
		return nil, toConnectError(JoinGameProcedure, err)
	}

	return connect.NewResponse(&JoinGameResponse{
		Game:     *res.Game,
		PlayerID: res.Credential.PlayerID,
		Token:    res.Credential.Token,
		Name:     res.Player.Name,
	}), nil
}

// StartGame moves a lobby to its first question
func (s *Service) StartGame(ctx context.Context, req *connect.Request[StartGameRequest]) (*connect.Response[StartGameResponse], error) {
	game, err := s.sessions.StartGame(ctx, req.Msg.GameID, credential(req.Header(), req.Msg.PlayerID))
	if err != nil {
		return nil, toConnectError(StartGameProcedure, err)
	}
	return connect.NewResponse(&StartGameResponse{Game: *game}), nil
}

// AdvanceQuestion moves to the next question or finishes the game
func (s *Service) AdvanceQuestion(ctx context.Context, req *connect.Request[AdvanceQuestionRequest]) (*connect.Response[AdvanceQuestionResponse], error) {
	res, err := s.sessions.AdvanceQuestion(ctx, session.AdvanceRequest{
		GameID:        req.Msg.GameID,
		Credential:    credential(req.Header(), req.Msg.PlayerID),
		ExpectedIndex: req.Msg.ExpectedIndex,
	})
	if err != nil {
		return nil, toConnectError(AdvanceQuestionProcedure, err)
	}

	return connect.NewResponse(&AdvanceQuestionResponse{
		Game:          *res.Game,
		QuestionIndex: res.Index,
		Finished:      res.Finished,
	}), nil
}

// SubmitAnswer records the caller's answer for the current question
func (s *Service) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SubmitAnswerResponse], error) {
	res, err := s.answers.SubmitAnswer(ctx, answer.SubmitRequest{
		GameID:        req.Msg.GameID,
		Credential:    credential(req.Header(), req.Msg.PlayerID),
		QuestionIndex: req.Msg.QuestionIndex,
		OptionIndex:   req.Msg.OptionIndex,
	})
	if err != nil {
		return nil, toConnectError(SubmitAnswerProcedure, err)
	}

	return connect.NewResponse(&SubmitAnswerResponse{
		AnswerID:        res.Answer.ID,
		Correct:         res.Correct,
		CorrectIndex:    res.CorrectIndex,
		ScoreDelta:      res.ScoreDelta,
		Score:           res.Score,
		AlreadyAnswered: res.AlreadyAnswered,
		AnsweredAt:      res.Answer.AnsweredAt,
	}), nil
}

// GetLeaderboard returns standings by score
func (s *Service) GetLeaderboard(ctx context.Context, req *connect.Request[GetLeaderboardRequest]) (*connect.Response[GetLeaderboardResponse], error) {
	standings, err := s.sessions.Leaderboard(ctx, req.Msg.GameID)
	if err != nil {
		return nil, toConnectError(GetLeaderboardProcedure, err)
	}
	return connect.NewResponse(&GetLeaderboardResponse{Standings: standings}), nil
}

// GetGameState returns the current snapshot of a game
func (s *Service) GetGameState(ctx context.Context, req *connect.Request[GetGameStateRequest]) (*connect.Response[GetGameStateResponse], error) {
	v, err := s.views.Snapshot(ctx, req.Msg.GameID)
	if err != nil {
		return nil, toConnectError(GetGameStateProcedure, err)
	}
	return connect.NewResponse(&GetGameStateResponse{View: *v}), nil
}

// credential pairs the bearer token with the claimed player id.
func credential(h http.Header, playerID uuid.UUID) session.Credential {
	token, _ := strings.CutPrefix(h.Get("Authorization"), "Bearer ")
	return session.Credential{PlayerID: playerID, Token: strings.TrimSpace(token)}
}

func timeoutInterceptor(timeout time.Duration) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

func loggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)
			evt := log.Debug()
			if err != nil {
				evt = log.Warn().Str("code", connect.CodeOf(err).String())
				var ce *connect.Error
				if errors.As(err, &ce) {
					evt = evt.Str("reason", ce.Meta().Get(ReasonHeader))
				}
			}
			evt.Str("procedure", req.Spec().Procedure).
				Dur("elapsed", time.Since(start)).
				Msg("rpc")
			return res, err
		}
	}
}
