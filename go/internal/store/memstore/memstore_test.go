package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/fanout"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store"
)

func newTestStore(t *testing.T) (*Store, *fanout.Hub) {
	t.Helper()
	hub := fanout.NewHub(256)
	return New(hub, clockwork.NewFakeClock()), hub
}

func insertGame(t *testing.T, s *Store, code string) *models.Game {
	t.Helper()
	g, err := s.InsertGame(context.Background(), store.InsertGameParams{
		ID: uuid.New(), Code: code, HostName: "host", Topic: "math",
	})
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	return g
}

func intp(v int) *int { return &v }

func TestInsertGameRejectsActiveDuplicateCode(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "1234")

	_, err := s.InsertGame(ctx, store.InsertGameParams{ID: uuid.New(), Code: "1234"})
	if !errors.Is(err, store.ErrDuplicateCode) {
		t.Fatalf("err = %v, want ErrDuplicateCode", err)
	}

	// Finishing the game releases the code.
	if _, err := s.UpdateGameStatus(ctx, store.UpdateGameStatusParams{
		ID: g.ID, ExpectedStatus: models.GameStatusLobby, Status: models.GameStatusFinished,
	}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	reused := insertGame(t, s, "1234")

	got, err := s.GetGameByCode(ctx, "1234")
	if err != nil {
		t.Fatalf("GetGameByCode: %v", err)
	}
	if got.ID != reused.ID {
		t.Fatalf("GetGameByCode returned %s, want active game %s", got.ID, reused.ID)
	}
}

func TestUpdateGameStatusCompareAndSwap(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "2000")

	started, err := s.UpdateGameStatus(ctx, store.UpdateGameStatusParams{
		ID: g.ID, ExpectedStatus: models.GameStatusLobby,
		Status: models.GameStatusPlaying, CurrentQuestionIndex: intp(0),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.QuestionIndex() != 0 {
		t.Fatalf("index = %d, want 0", started.QuestionIndex())
	}

	// Second start with the stale expectation loses.
	_, err = s.UpdateGameStatus(ctx, store.UpdateGameStatusParams{
		ID: g.ID, ExpectedStatus: models.GameStatusLobby,
		Status: models.GameStatusPlaying, CurrentQuestionIndex: intp(0),
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Regression is refused even when the expectation matches.
	_, err = s.UpdateGameStatus(ctx, store.UpdateGameStatusParams{
		ID: g.ID, ExpectedStatus: models.GameStatusPlaying, ExpectedIndex: intp(0),
		Status: models.GameStatusLobby,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("regression err = %v, want ErrConflict", err)
	}
}

func TestConcurrentAdvanceSingleWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "3000")
	if _, err := s.UpdateGameStatus(ctx, store.UpdateGameStatusParams{
		ID: g.ID, ExpectedStatus: models.GameStatusLobby,
		Status: models.GameStatusPlaying, CurrentQuestionIndex: intp(0),
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateGameStatus(ctx, store.UpdateGameStatusParams{
				ID: g.ID, ExpectedStatus: models.GameStatusPlaying, ExpectedIndex: intp(0),
				Status: models.GameStatusPlaying, CurrentQuestionIndex: intp(1),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	got, _ := s.GetGame(ctx, g.ID)
	if got.QuestionIndex() != 1 {
		t.Fatalf("index = %d, want 1", got.QuestionIndex())
	}
}

func TestInsertPlayerNameUniqueness(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "4000")

	if _, err := s.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: g.ID, Name: "Ada"}); err != nil {
		t.Fatalf("InsertPlayer: %v", err)
	}
	_, err := s.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: g.ID, Name: " ada "})
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}

	other := insertGame(t, s, "4001")
	if _, err := s.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: other.ID, Name: "Ada"}); err != nil {
		t.Fatalf("same name in another game should be allowed: %v", err)
	}
}

func TestListPlayersOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "5000")

	var ids []uuid.UUID
	for _, name := range []string{"a", "b", "c"} {
		p, err := s.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: g.ID, Name: name})
		if err != nil {
			t.Fatalf("InsertPlayer: %v", err)
		}
		ids = append(ids, p.ID)
	}
	// c scores 10, a and b tie at 0 so join order decides.
	if _, err := s.UpdatePlayerScore(ctx, store.UpdatePlayerScoreParams{ID: ids[2], ExpectedScore: 0, Score: 10}); err != nil {
		t.Fatalf("UpdatePlayerScore: %v", err)
	}

	players, err := s.ListPlayers(ctx, g.ID, store.OrderByScore)
	if err != nil {
		t.Fatalf("ListPlayers: %v", err)
	}
	var names []string
	for _, p := range players {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, names); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePlayerScoreGuards(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "6000")
	p, _ := s.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: g.ID, Name: "p"})

	if _, err := s.UpdatePlayerScore(ctx, store.UpdatePlayerScoreParams{ID: p.ID, ExpectedScore: 5, Score: 15}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if _, err := s.UpdatePlayerScore(ctx, store.UpdatePlayerScoreParams{ID: p.ID, ExpectedScore: 0, Score: -10}); !errors.Is(err, store.ErrScoreDecrease) {
		t.Fatalf("err = %v, want ErrScoreDecrease", err)
	}
}

func TestRunInTxRollsBackEverything(t *testing.T) {
	s, hub := newTestStore(t)
	ctx := context.Background()
	gameID := uuid.New()
	sub := hub.Subscribe(gameID)
	defer sub.Close()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(q store.Queries) error {
		if _, err := q.InsertGame(ctx, store.InsertGameParams{ID: gameID, Code: "7000"}); err != nil {
			return err
		}
		if _, err := q.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: gameID, Name: "h", IsHost: true}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := s.GetGame(ctx, gameID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("game visible after rollback: %v", err)
	}
	if _, err := s.GetGameByCode(ctx, "7000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("code visible after rollback: %v", err)
	}
	select {
	case evt := <-sub.Events():
		t.Fatalf("event published for rolled back tx: %+v", evt)
	default:
	}
}

func TestRunInTxPublishesInCommitOrder(t *testing.T) {
	s, hub := newTestStore(t)
	ctx := context.Background()
	gameID := uuid.New()
	sub := hub.Subscribe(gameID)
	defer sub.Close()

	err := s.RunInTx(ctx, func(q store.Queries) error {
		if _, err := q.InsertGame(ctx, store.InsertGameParams{ID: gameID, Code: "7100"}); err != nil {
			return err
		}
		_, err := q.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: gameID, Name: "h", IsHost: true})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	var kinds []models.EntityKind
	for i := 0; i < 2; i++ {
		kinds = append(kinds, (<-sub.Events()).Entity)
	}
	if diff := cmp.Diff([]models.EntityKind{models.EntityGame, models.EntityPlayer}, kinds); diff != "" {
		t.Fatalf("event order (-want +got):\n%s", diff)
	}
}

func TestInsertAnswerIfAbsentFirstWriteWins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "8000")
	p, _ := s.InsertPlayer(ctx, store.InsertPlayerParams{ID: uuid.New(), GameID: g.ID, Name: "p"})
	q := models.Question{ID: uuid.New(), Order: 0, Text: "?", Options: []string{"a", "b"}, AnswerIndex: 1, TimeLimitSec: 15}
	if err := s.InsertQuestionsBatch(ctx, g.ID, []models.Question{q}); err != nil {
		t.Fatalf("InsertQuestionsBatch: %v", err)
	}

	first, inserted, err := s.InsertAnswerIfAbsent(ctx, store.InsertAnswerParams{
		ID: uuid.New(), PlayerID: p.ID, QuestionID: q.ID, SelectedIndex: 1, IsCorrect: true,
	})
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	second, inserted, err := s.InsertAnswerIfAbsent(ctx, store.InsertAnswerParams{
		ID: uuid.New(), PlayerID: p.ID, QuestionID: q.ID, SelectedIndex: 0,
	})
	if err != nil || inserted {
		t.Fatalf("second insert: inserted=%v err=%v", inserted, err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("stored answer changed (-first +second):\n%s", diff)
	}
	if n, _ := s.CountAnswers(ctx, q.ID); n != 1 {
		t.Fatalf("CountAnswers = %d, want 1", n)
	}
}

func TestInsertQuestionsBatchRejectsDuplicateOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := insertGame(t, s, "9000")
	qs := []models.Question{
		{ID: uuid.New(), Order: 0, Options: []string{"a", "b"}},
		{ID: uuid.New(), Order: 0, Options: []string{"a", "b"}},
	}
	if err := s.InsertQuestionsBatch(ctx, g.ID, qs); err == nil {
		t.Fatal("expected duplicate order to be rejected")
	}
	got, _ := s.ListQuestions(ctx, g.ID)
	if len(got) != 0 {
		t.Fatalf("questions stored after failed batch: %d", len(got))
	}
}
