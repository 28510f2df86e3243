package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// QuizServiceName is the fully-qualified name of the quiz service.
const QuizServiceName = "livequiz.v1.QuizService"

// Procedure paths, relative to the server's base URL.
const (
	CreateGameProcedure      = "/" + QuizServiceName + "/CreateGame"
	JoinGameProcedure        = "/" + QuizServiceName + "/JoinGame"
	StartGameProcedure       = "/" + QuizServiceName + "/StartGame"
	AdvanceQuestionProcedure = "/" + QuizServiceName + "/AdvanceQuestion"
	SubmitAnswerProcedure    = "/" + QuizServiceName + "/SubmitAnswer"
	GetLeaderboardProcedure  = "/" + QuizServiceName + "/GetLeaderboard"
	GetGameStateProcedure    = "/" + QuizServiceName + "/GetGameState"
)

// ReasonHeader carries the gameerr reason on failed calls.
const ReasonHeader = "Quiz-Reason"

type CreateGameRequest struct {
	HostName string `json:"host_name"`
	Topic    string `json:"topic"`
}

type CreateGameResponse struct {
	Game          models.Game `json:"game"`
	PlayerID      uuid.UUID   `json:"player_id"`
	Token         string      `json:"token"`
	HostName      string      `json:"host_name"`
	QuestionCount int         `json:"question_count"`
}

type JoinGameRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type JoinGameResponse struct {
	Game     models.Game `json:"game"`
	PlayerID uuid.UUID   `json:"player_id"`
	Token    string      `json:"token"`
	Name     string      `json:"name"`
}

// The remaining requests are authenticated with the bearer token issued on
// create or join, plus the player id it belongs to.

type StartGameRequest struct {
	GameID   uuid.UUID `json:"game_id"`
	PlayerID uuid.UUID `json:"player_id"`
}

type StartGameResponse struct {
	Game models.Game `json:"game"`
}

type AdvanceQuestionRequest struct {
	GameID        uuid.UUID `json:"game_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	ExpectedIndex *int      `json:"expected_index,omitempty"`
}

type AdvanceQuestionResponse struct {
	Game          models.Game `json:"game"`
	QuestionIndex int         `json:"question_index"`
	Finished      bool        `json:"finished"`
}

type SubmitAnswerRequest struct {
	GameID        uuid.UUID `json:"game_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	QuestionIndex int       `json:"question_index"`
	OptionIndex   int       `json:"option_index"`
}

type SubmitAnswerResponse struct {
	AnswerID        uuid.UUID `json:"answer_id"`
	Correct         bool      `json:"correct"`
	CorrectIndex    int       `json:"correct_index"`
	ScoreDelta      int       `json:"score_delta"`
	Score           int       `json:"score"`
	AlreadyAnswered bool      `json:"already_answered"`
	AnsweredAt      time.Time `json:"answered_at"`
}

type GetLeaderboardRequest struct {
	GameID uuid.UUID `json:"game_id"`
}

type GetLeaderboardResponse struct {
	Standings []session.Standing `json:"standings"`
}

type GetGameStateRequest struct {
	GameID uuid.UUID `json:"game_id"`
}

type GetGameStateResponse struct {
	View view.GameView `json:"view"`
}
