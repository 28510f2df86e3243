package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/answer"
	"github.com/mcdev12/livequiz/go/internal/game/fanout"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/mcdev12/livequiz/go/internal/identity"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/questionbank"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/mcdev12/livequiz/go/internal/store/memstore"
)

type testEnv struct {
	store  *memstore.Store
	client *Client
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	st := memstore.New(fanout.NewHub(0), clock)
	bank, err := questionbank.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	sessions := session.NewApp(st, bank.WithSeed(4), identity.NewSeededGenerator(8), clock, session.DefaultConfig())
	answers := answer.NewApp(st, sessions, clock, answer.DefaultConfig())

	mux := http.NewServeMux()
	NewService(sessions, answers, view.NewObserver(st)).RegisterRoutes(mux, opts)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{store: st, client: NewClient(srv.Client(), srv.URL)}
}

func wantReason(t *testing.T, err error, code connect.Code, sentinel error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", sentinel)
	}
	if got := connect.CodeOf(err); got != code {
		t.Fatalf("code = %v, want %v (err %v)", got, code, err)
	}
	if !errors.Is(FromConnectError(err), sentinel) {
		t.Fatalf("FromConnectError(%v) does not match %v", err, sentinel)
	}
}

func TestQuizServiceGameFlow(t *testing.T) {
	e := newTestEnv(t, DefaultOptions())
	ctx := context.Background()

	created, err := e.client.CreateGame(ctx, &CreateGameRequest{HostName: "Host", Topic: "math"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if created.Game.Status != models.GameStatusLobby || created.Token == "" || created.QuestionCount != 5 {
		t.Fatalf("created = %+v", created)
	}
	gameID := created.Game.ID

	joined, err := e.client.JoinGame(ctx, &JoinGameRequest{Code: created.Game.Code, Name: "Ada"})
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if joined.Game.ID != gameID || joined.Name != "Ada" {
		t.Fatalf("joined = %+v", joined)
	}

	started, err := e.client.StartGame(ctx, created.Token, &StartGameRequest{GameID: gameID, PlayerID: created.PlayerID})
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if started.Game.Status != models.GameStatusPlaying || started.Game.QuestionIndex() != 0 {
		t.Fatalf("started = %+v", started.Game)
	}

	state, err := e.client.GetGameState(ctx, &GetGameStateRequest{GameID: gameID})
	if err != nil {
		t.Fatalf("GetGameState: %v", err)
	}
	if state.View.Question == nil || state.View.Question.AnswerIndex != nil {
		t.Fatalf("state question = %+v", state.View.Question)
	}

	questions, err := e.store.ListQuestions(ctx, gameID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	submit := &SubmitAnswerRequest{GameID: gameID, PlayerID: joined.PlayerID, QuestionIndex: 0, OptionIndex: questions[0].AnswerIndex}
	res, err := e.client.SubmitAnswer(ctx, joined.Token, submit)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !res.Correct || res.Score != 10 || res.AlreadyAnswered {
		t.Fatalf("submit = %+v", res)
	}
	again, err := e.client.SubmitAnswer(ctx, joined.Token, submit)
	if err != nil || !again.AlreadyAnswered || again.AnswerID != res.AnswerID {
		t.Fatalf("resubmit = %+v, %v", again, err)
	}

	board, err := e.client.GetLeaderboard(ctx, &GetLeaderboardRequest{GameID: gameID})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(board.Standings) != 2 || board.Standings[0].PlayerID != joined.PlayerID || board.Standings[0].Rank != 1 {
		t.Fatalf("standings = %+v", board.Standings)
	}

	zero := 0
	adv, err := e.client.AdvanceQuestion(ctx, created.Token, &AdvanceQuestionRequest{GameID: gameID, PlayerID: created.PlayerID, ExpectedIndex: &zero})
	if err != nil || adv.QuestionIndex != 1 || adv.Finished {
		t.Fatalf("advance = %+v, %v", adv, err)
	}
	// The same expected index again is a duplicate, not a second advance.
	_, err = e.client.AdvanceQuestion(ctx, created.Token, &AdvanceQuestionRequest{GameID: gameID, PlayerID: created.PlayerID, ExpectedIndex: &zero})
	wantReason(t, err, connect.CodeAborted, gameerr.ErrConflict)

	_, err = e.client.SubmitAnswer(ctx, joined.Token, submit)
	wantReason(t, err, connect.CodeAborted, gameerr.ErrStaleQuestion)
}

func TestQuizServiceErrorMapping(t *testing.T) {
	e := newTestEnv(t, DefaultOptions())
	ctx := context.Background()

	created, err := e.client.CreateGame(ctx, &CreateGameRequest{HostName: "Host", Topic: "science"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	gameID := created.Game.ID

	_, err = e.client.JoinGame(ctx, &JoinGameRequest{Code: "12", Name: "Ada"})
	wantReason(t, err, connect.CodeInvalidArgument, gameerr.ErrInvalidInput)

	_, err = e.client.JoinGame(ctx, &JoinGameRequest{Code: nextCode(created.Game.Code), Name: "Ada"})
	wantReason(t, err, connect.CodeNotFound, gameerr.ErrGameNotFound)

	joined, err := e.client.JoinGame(ctx, &JoinGameRequest{Code: created.Game.Code, Name: "Ada"})
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	_, err = e.client.JoinGame(ctx, &JoinGameRequest{Code: created.Game.Code, Name: " ada "})
	wantReason(t, err, connect.CodeAlreadyExists, gameerr.ErrNameTaken)

	// A player token cannot start the game, and neither can a missing one.
	_, err = e.client.StartGame(ctx, joined.Token, &StartGameRequest{GameID: gameID, PlayerID: joined.PlayerID})
	wantReason(t, err, connect.CodePermissionDenied, gameerr.ErrNotAuthorized)
	_, err = e.client.StartGame(ctx, "", &StartGameRequest{GameID: gameID, PlayerID: created.PlayerID})
	wantReason(t, err, connect.CodePermissionDenied, gameerr.ErrNotAuthorized)

	_, err = e.client.AdvanceQuestion(ctx, created.Token, &AdvanceQuestionRequest{GameID: gameID, PlayerID: created.PlayerID})
	wantReason(t, err, connect.CodeFailedPrecondition, gameerr.ErrInvalidTransition)

	if _, err := e.client.StartGame(ctx, created.Token, &StartGameRequest{GameID: gameID, PlayerID: created.PlayerID}); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	_, err = e.client.JoinGame(ctx, &JoinGameRequest{Code: created.Game.Code, Name: "Late"})
	wantReason(t, err, connect.CodeFailedPrecondition, gameerr.ErrGameAlreadyStarted)

	_, err = e.client.GetGameState(ctx, &GetGameStateRequest{GameID: uuid.New()})
	wantReason(t, err, connect.CodeNotFound, gameerr.ErrGameNotFound)
}

// downSessions and downViews fail every read as a lost database would.
type downSessions struct{ SessionApp }

func (downSessions) Leaderboard(ctx context.Context, gameID uuid.UUID) ([]session.Standing, error) {
	return nil, fmt.Errorf("failed to list players: %w", fmt.Errorf("%w: connection reset", store.ErrUnavailable))
}

type downViews struct{}

func (downViews) Snapshot(ctx context.Context, gameID uuid.UUID) (*view.GameView, error) {
	return nil, fmt.Errorf("failed to get game: %w", store.ErrUnavailable)
}

func TestQuizServiceReportsStoreOutageAsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	NewService(downSessions{}, nil, downViews{}).RegisterRoutes(mux, DefaultOptions())
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := NewClient(srv.Client(), srv.URL)
	ctx := context.Background()

	_, err := client.GetLeaderboard(ctx, &GetLeaderboardRequest{GameID: uuid.New()})
	if got := connect.CodeOf(err); got != connect.CodeUnavailable {
		t.Fatalf("GetLeaderboard code = %v, want Unavailable (err %v)", got, err)
	}
	_, err = client.GetGameState(ctx, &GetGameStateRequest{GameID: uuid.New()})
	if got := connect.CodeOf(err); got != connect.CodeUnavailable {
		t.Fatalf("GetGameState code = %v, want Unavailable (err %v)", got, err)
	}
}

func TestJoinRateLimitedPerIP(t *testing.T) {
	e := newTestEnv(t, Options{JoinRateLimit: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.client.JoinGame(ctx, &JoinGameRequest{Code: "0000", Name: "x"})
		if connect.CodeOf(err) != connect.CodeNotFound {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	_, err := e.client.JoinGame(ctx, &JoinGameRequest{Code: "0000", Name: "x"})
	if connect.CodeOf(err) != connect.CodeUnavailable {
		t.Fatalf("third join err = %v, want rate limited", err)
	}
}

// nextCode returns a different valid code.
func nextCode(code string) string {
	if code == "9999" {
		return "0000"
	}
	b := []byte(code)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			break
		}
		b[i] = '0'
	}
	return string(b)
}
