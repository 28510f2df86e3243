package answer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/fanout"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/identity"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/questionbank"
	"github.com/mcdev12/livequiz/go/internal/store/memstore"
)

type fixture struct {
	clock    *clockwork.FakeClock
	store    *memstore.Store
	sessions *session.App
	answers  *App

	game      *models.Game
	host      session.Credential
	alice     session.Credential
	bob       session.Credential
	questions []models.Question
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	st := memstore.New(fanout.NewHub(0), clock)
	bank, err := questionbank.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	sessions := session.NewApp(st, bank.WithSeed(11), identity.NewSeededGenerator(5), clock, session.DefaultConfig())

	created, err := sessions.CreateGame(ctx, session.CreateGameRequest{HostName: "Host", Topic: "math"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	alice, err := sessions.JoinGame(ctx, session.JoinGameRequest{Code: created.Game.Code, Name: "Alice"})
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	bob, err := sessions.JoinGame(ctx, session.JoinGameRequest{Code: created.Game.Code, Name: "Bob"})
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	questions, err := st.ListQuestions(ctx, created.Game.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}

	return &fixture{
		clock:     clock,
		store:     st,
		sessions:  sessions,
		answers:   NewApp(st, sessions, clock, DefaultConfig()),
		game:      created.Game,
		host:      created.Credential,
		alice:     alice.Credential,
		bob:       bob.Credential,
		questions: questions,
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.sessions.StartGame(context.Background(), f.game.ID, f.host); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
}

func (f *fixture) advance(t *testing.T) *session.AdvanceResult {
	t.Helper()
	out, err := f.sessions.AdvanceQuestion(context.Background(), session.AdvanceRequest{GameID: f.game.ID, Credential: f.host})
	if err != nil {
		t.Fatalf("AdvanceQuestion: %v", err)
	}
	return out
}

func (f *fixture) submit(cred session.Credential, index, option int) (*Result, error) {
	return f.answers.SubmitAnswer(context.Background(), SubmitRequest{
		GameID: f.game.ID, Credential: cred, QuestionIndex: index, OptionIndex: option,
	})
}

func (f *fixture) right(index int) int { return f.questions[index].AnswerIndex }

func (f *fixture) wrong(index int) int {
	return (f.questions[index].AnswerIndex + 1) % len(f.questions[index].Options)
}

func TestSubmitCorrectAnswerScores(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	res, err := f.submit(f.alice, 0, f.right(0))
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !res.Correct || res.ScoreDelta != 10 || res.Score != 10 || res.AlreadyAnswered {
		t.Fatalf("result = %+v", res)
	}

	res, err = f.submit(f.bob, 0, f.wrong(0))
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if res.Correct || res.ScoreDelta != 0 || res.Score != 0 || res.CorrectIndex != f.right(0) {
		t.Fatalf("result = %+v", res)
	}
}

func TestSubmitTwiceReturnsFirstAnswer(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	first, err := f.submit(f.alice, 0, f.right(0))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.submit(f.alice, 0, f.wrong(0))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.AlreadyAnswered {
		t.Fatal("second submission should be flagged as already answered")
	}
	if second.Answer != first.Answer {
		t.Fatalf("stored answer changed: %+v vs %+v", first.Answer, second.Answer)
	}
	if second.Score != 10 {
		t.Fatalf("score = %d after duplicate, want 10", second.Score)
	}
}

func TestRepeatWithBadOptionReturnsFirstAnswer(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	first, err := f.submit(f.alice, 0, f.right(0))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	for _, option := range []int{-1, len(f.questions[0].Options)} {
		again, err := f.submit(f.alice, 0, option)
		if err != nil {
			t.Fatalf("repeat with option %d: %v", option, err)
		}
		if !again.AlreadyAnswered || again.Answer != first.Answer || again.Score != 10 {
			t.Fatalf("repeat with option %d = %+v", option, again)
		}
	}

	// Without a recorded answer the option is still validated.
	if _, err := f.submit(f.bob, 0, -1); !errors.Is(err, gameerr.ErrInvalidInput) {
		t.Fatalf("bad option err = %v, want ErrInvalidInput", err)
	}
}

func TestConcurrentSubmissionsRecordOneAnswer(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	const racers = 10
	var wg sync.WaitGroup
	results := make(chan *Result, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			option := f.right(0)
			if i%2 == 1 {
				option = f.wrong(0)
			}
			res, err := f.submit(f.alice, 0, option)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)

	var first *models.Answer
	fresh := 0
	for res := range results {
		if !res.AlreadyAnswered {
			fresh++
		}
		if first == nil {
			a := res.Answer
			first = &a
		} else if res.Answer != *first {
			t.Fatalf("divergent answers: %+v vs %+v", res.Answer, *first)
		}
	}
	if fresh != 1 {
		t.Fatalf("fresh inserts = %d, want 1", fresh)
	}

	player, _ := f.store.GetPlayer(context.Background(), f.alice.PlayerID)
	want := 0
	if first.IsCorrect {
		want = 10
	}
	if player.Score != want {
		t.Fatalf("score = %d, want %d", player.Score, want)
	}
}

func TestSubmitStaleQuestion(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	if _, err := f.submit(f.alice, 1, 0); !errors.Is(err, gameerr.ErrStaleQuestion) {
		t.Fatalf("future question err = %v, want ErrStaleQuestion", err)
	}
	f.advance(t)
	if _, err := f.submit(f.alice, 0, f.right(0)); !errors.Is(err, gameerr.ErrStaleQuestion) {
		t.Fatalf("past question err = %v, want ErrStaleQuestion", err)
	}
}

func TestSubmitRequiresPlaying(t *testing.T) {
	f := newFixture(t)
	if _, err := f.submit(f.alice, 0, 0); !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Fatalf("lobby err = %v, want ErrInvalidTransition", err)
	}

	f.start(t)
	for i := 0; i < len(f.questions); i++ {
		f.advance(t)
	}
	if _, err := f.submit(f.alice, len(f.questions)-1, 0); !errors.Is(err, gameerr.ErrInvalidTransition) {
		t.Fatalf("finished err = %v, want ErrInvalidTransition", err)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	if _, err := f.submit(f.alice, 0, 99); !errors.Is(err, gameerr.ErrInvalidInput) {
		t.Fatalf("option out of range err = %v, want ErrInvalidInput", err)
	}
	bad := session.Credential{PlayerID: f.alice.PlayerID, Token: "nope"}
	if _, err := f.submit(bad, 0, 0); !errors.Is(err, gameerr.ErrNotAuthorized) {
		t.Fatalf("bad token err = %v, want ErrNotAuthorized", err)
	}
}

func TestSubmitAfterWindowCloses(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	if _, err := f.submit(f.bob, 0, f.right(0)); err != nil {
		t.Fatalf("in-window submit: %v", err)
	}

	limit := f.questions[0].TimeLimit()
	f.clock.Advance(limit + DefaultConfig().Grace + time.Second)

	if _, err := f.submit(f.alice, 0, f.right(0)); !errors.Is(err, gameerr.ErrAnswerWindowClosed) {
		t.Fatalf("late submit err = %v, want ErrAnswerWindowClosed", err)
	}

	// A retry of an answer recorded in time still resolves after the window.
	res, err := f.submit(f.bob, 0, f.wrong(0))
	if err != nil {
		t.Fatalf("retry after window: %v", err)
	}
	if !res.AlreadyAnswered || !res.Correct {
		t.Fatalf("retry result = %+v", res)
	}
}

func TestSubmitWithinGraceAccepted(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.clock.Advance(f.questions[0].TimeLimit() + time.Second)
	if _, err := f.submit(f.alice, 0, f.right(0)); err != nil {
		t.Fatalf("submit inside grace: %v", err)
	}
}

func TestScoreEqualsTenPerCorrectAnswer(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	correct := 0
	prev := 0
	for i := range f.questions {
		option := f.right(i)
		if i == 2 {
			option = f.wrong(i)
		} else {
			correct++
		}
		res, err := f.submit(f.alice, i, option)
		if err != nil {
			t.Fatalf("question %d: %v", i, err)
		}
		if res.Score < prev {
			t.Fatalf("score decreased from %d to %d", prev, res.Score)
		}
		prev = res.Score
		f.advance(t)
	}

	player, _ := f.store.GetPlayer(ctx, f.alice.PlayerID)
	if player.Score != 10*correct {
		t.Fatalf("score = %d, want %d", player.Score, 10*correct)
	}
}

func TestFullGameScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if len(f.questions) != 5 {
		t.Fatalf("questions = %d, want 5", len(f.questions))
	}
	for i, q := range f.questions {
		if q.Order != i {
			t.Fatalf("ordinal %d at position %d", q.Order, i)
		}
	}

	f.start(t)
	game, _ := f.sessions.GetGame(ctx, f.game.ID)
	if game.QuestionIndex() != 0 {
		t.Fatalf("index after start = %d", game.QuestionIndex())
	}

	res, err := f.submit(f.alice, 0, f.right(0))
	if err != nil || res.Score != 10 {
		t.Fatalf("alice answer = %+v, %v", res, err)
	}

	var last *session.AdvanceResult
	for i := 0; i < 5; i++ {
		last = f.advance(t)
	}
	if !last.Finished {
		t.Fatalf("game not finished after 5 advances: %+v", last)
	}

	board, err := f.sessions.Leaderboard(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if board[0].PlayerID != f.alice.PlayerID || board[0].Score != 10 {
		t.Fatalf("leader = %+v, want alice with 10", board[0])
	}
}
