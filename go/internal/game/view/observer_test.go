package view

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/answer"
	"github.com/mcdev12/livequiz/go/internal/game/fanout"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/identity"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/questionbank"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/mcdev12/livequiz/go/internal/store/memstore"
)

type env struct {
	hub      *fanout.Hub
	store    *memstore.Store
	sessions *session.App
	answers  *answer.App
	observer *Observer
}

func newEnv(t *testing.T, bufferSize int) *env {
	t.Helper()
	clock := clockwork.NewFakeClock()
	hub := fanout.NewHub(bufferSize)
	st := memstore.New(hub, clock)
	bank, err := questionbank.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	sessions := session.NewApp(st, bank.WithSeed(3), identity.NewSeededGenerator(9), clock, session.DefaultConfig())
	return &env{
		hub:      hub,
		store:    st,
		sessions: sessions,
		answers:  answer.NewApp(st, sessions, clock, answer.DefaultConfig()),
		observer: NewObserver(st),
	}
}

// await reads views until one satisfies pred.
func await(t *testing.T, views <-chan GameView, what string, pred func(GameView) bool) GameView {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-views:
			if !ok {
				t.Fatalf("view stream closed waiting for %s", what)
			}
			if pred(v) {
				return v
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestObserveFollowsGameLifecycle(t *testing.T) {
	e := newEnv(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, err := e.sessions.CreateGame(ctx, session.CreateGameRequest{HostName: "Host", Topic: "science"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	gameID := created.Game.ID

	views, err := e.observer.Observe(ctx, gameID)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}

	first := await(t, views, "lobby view", func(v GameView) bool { return true })
	if first.Game.Status != models.GameStatusLobby || len(first.Players) != 1 || first.Question != nil {
		t.Fatalf("first view = %+v", first)
	}
	if first.Transition.Any() {
		t.Fatalf("lobby view has transition %+v", first.Transition)
	}

	joined, err := e.sessions.JoinGame(ctx, session.JoinGameRequest{Code: created.Game.Code, Name: "Ada"})
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	await(t, views, "second player", func(v GameView) bool { return len(v.Players) == 2 })

	if _, err := e.sessions.StartGame(ctx, gameID, created.Credential); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	started := await(t, views, "start", func(v GameView) bool { return v.Transition.Started })
	if !started.Transition.QuestionChanged || started.Question == nil || started.Question.Index != 0 {
		t.Fatalf("started view = %+v", started)
	}
	if started.Question.AnswerIndex != nil {
		t.Fatal("answer index visible while question is live")
	}

	if _, err := e.answers.SubmitAnswer(ctx, answer.SubmitRequest{
		GameID: gameID, Credential: joined.Credential, QuestionIndex: 0, OptionIndex: 0,
	}); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	counted := await(t, views, "answer count", func(v GameView) bool {
		return v.Question != nil && v.Question.AnsweredCount == 1
	})
	if counted.Transition.QuestionChanged {
		t.Fatal("answer count update flagged as question change")
	}

	if _, err := e.sessions.AdvanceQuestion(ctx, session.AdvanceRequest{GameID: gameID, Credential: created.Credential}); err != nil {
		t.Fatalf("AdvanceQuestion: %v", err)
	}
	next := await(t, views, "question 1", func(v GameView) bool { return v.Transition.QuestionChanged })
	if next.CurrentIndex() != 1 || next.Question.AnsweredCount != 0 {
		t.Fatalf("advanced view = %+v", next.Question)
	}

	for i := 1; i < created.Questions; i++ {
		if _, err := e.sessions.AdvanceQuestion(ctx, session.AdvanceRequest{GameID: gameID, Credential: created.Credential}); err != nil {
			t.Fatalf("AdvanceQuestion: %v", err)
		}
	}
	done := await(t, views, "finish", func(v GameView) bool { return v.Transition.Finished })
	if done.Question != nil || len(done.Results) != created.Questions {
		t.Fatalf("finished view question=%v results=%d", done.Question, len(done.Results))
	}
	for _, r := range done.Results {
		if r.AnswerIndex == nil {
			t.Fatalf("result %d hides its answer", r.Index)
		}
	}
	if done.Results[0].AnsweredCount != 1 {
		t.Fatalf("results[0].AnsweredCount = %d, want 1", done.Results[0].AnsweredCount)
	}
}

func TestObserveUnknownGame(t *testing.T) {
	e := newEnv(t, 0)
	_, err := e.observer.Observe(context.Background(), uuid.New())
	if !errors.Is(err, gameerr.ErrGameNotFound) {
		t.Fatalf("err = %v, want ErrGameNotFound", err)
	}
	if _, subs := e.hub.Stats(); subs != 0 {
		t.Fatalf("subscription leaked: %d", subs)
	}
}

func TestObserveRecoversFromDroppedSubscription(t *testing.T) {
	// A one-slot buffer overflows as soon as the observer falls behind.
	e := newEnv(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, err := e.sessions.CreateGame(ctx, session.CreateGameRequest{HostName: "Host"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	views, err := e.observer.Observe(ctx, created.Game.ID)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}

	// Nobody reads while the roster fills up.
	for i := 0; i < 8; i++ {
		if _, err := e.sessions.JoinGame(ctx, session.JoinGameRequest{Code: created.Game.Code, Name: fmt.Sprintf("p%d", i)}); err != nil {
			t.Fatalf("JoinGame: %v", err)
		}
	}

	v := await(t, views, "full roster", func(v GameView) bool { return len(v.Players) == 9 })
	if v.Game.Status != models.GameStatusLobby {
		t.Fatalf("status = %s", v.Game.Status)
	}
}

// flakySource fails the next ListPlayers call once armed.
type flakySource struct {
	*memstore.Store
	failNext atomic.Bool
}

func (f *flakySource) ListPlayers(ctx context.Context, gameID uuid.UUID, order store.PlayerOrder) ([]models.Player, error) {
	if f.failNext.CompareAndSwap(true, false) {
		return nil, errors.New("connection reset")
	}
	return f.Store.ListPlayers(ctx, gameID, order)
}

func TestObserveRetriesFailedRefresh(t *testing.T) {
	e := newEnv(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, err := e.sessions.CreateGame(ctx, session.CreateGameRequest{HostName: "Host"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	src := &flakySource{Store: e.store}
	views, err := NewObserver(src).Observe(ctx, created.Game.ID)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	await(t, views, "lobby view", func(v GameView) bool { return v.Game.Status == models.GameStatusLobby })

	// The start is the last change; the refresh it triggers fails once.
	src.failNext.Store(true)
	if _, err := e.sessions.StartGame(ctx, created.Game.ID, created.Credential); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	v := await(t, views, "started game", func(v GameView) bool { return v.Game.Status == models.GameStatusPlaying })
	if !v.Transition.Started || v.Question == nil {
		t.Fatalf("started view = %+v", v)
	}
	if src.failNext.Load() {
		t.Fatal("refresh never hit the failing read")
	}
}

func TestObserveStopsOnCancel(t *testing.T) {
	e := newEnv(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	created, err := e.sessions.CreateGame(ctx, session.CreateGameRequest{HostName: "Host"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	views, err := e.observer.Observe(ctx, created.Game.ID)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	<-views
	cancel()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-views:
			if !ok {
				if _, subs := e.hub.Stats(); subs != 0 {
					t.Fatalf("subscriptions after cancel = %d", subs)
				}
				return
			}
		case <-timeout:
			t.Fatal("view stream not closed after cancel")
		}
	}
}

func TestTrackerTransitions(t *testing.T) {
	at := func(status models.GameStatus, idx int) *GameView {
		g := models.Game{Status: status}
		if idx >= 0 {
			g.CurrentQuestionIndex = &idx
		}
		return &GameView{Game: g}
	}

	tests := []struct {
		name  string
		steps []*GameView
		want  []Transition
		kept  []bool
	}{
		{
			name:  "lobby to finish",
			steps: []*GameView{at(models.GameStatusLobby, -1), at(models.GameStatusPlaying, 0), at(models.GameStatusPlaying, 1), at(models.GameStatusFinished, 1)},
			want:  []Transition{{}, {Started: true, QuestionChanged: true}, {QuestionChanged: true}, {Finished: true}},
			kept:  []bool{true, true, true, true},
		},
		{
			name:  "join mid question",
			steps: []*GameView{at(models.GameStatusPlaying, 2), at(models.GameStatusPlaying, 2)},
			want:  []Transition{{QuestionChanged: true}, {}},
			kept:  []bool{true, true},
		},
		{
			name:  "stale snapshot dropped",
			steps: []*GameView{at(models.GameStatusPlaying, 2), at(models.GameStatusPlaying, 1), at(models.GameStatusLobby, -1), at(models.GameStatusPlaying, 3)},
			want:  []Transition{{QuestionChanged: true}, {}, {}, {QuestionChanged: true}},
			kept:  []bool{true, false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr tracker
			for i, step := range tt.steps {
				got, ok := tr.next(step)
				if ok != tt.kept[i] {
					t.Fatalf("step %d kept = %v, want %v", i, ok, tt.kept[i])
				}
				if !ok {
					continue
				}
				if diff := cmp.Diff(tt.want[i], got.Transition); diff != "" {
					t.Errorf("step %d transition mismatch (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}
