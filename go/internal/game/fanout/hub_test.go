package fanout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
)

func event(gameID uuid.UUID, kind models.EntityKind) models.ChangeEvent {
	return models.ChangeEvent{ID: uuid.New(), GameID: gameID, Entity: kind, Op: models.OpUpdate, OccurredAt: time.Now()}
}

func TestHubDeliversToGameSubscribersOnly(t *testing.T) {
	h := NewHub(4)
	gameA, gameB := uuid.New(), uuid.New()

	subA := h.Subscribe(gameA)
	defer subA.Close()
	subB := h.Subscribe(gameB)
	defer subB.Close()

	evt := event(gameA, models.EntityGame)
	h.Publish(evt)

	select {
	case got := <-subA.Events():
		if got.ID != evt.ID {
			t.Fatalf("got event %s, want %s", got.ID, evt.ID)
		}
	default:
		t.Fatal("subscriber of game A received nothing")
	}

	select {
	case got := <-subB.Events():
		t.Fatalf("subscriber of game B received %v", got)
	default:
	}
}

func TestHubFiltersByKind(t *testing.T) {
	h := NewHub(4)
	gameID := uuid.New()
	sub := h.Subscribe(gameID, models.EntityPlayer)
	defer sub.Close()

	h.Publish(event(gameID, models.EntityGame))
	h.Publish(event(gameID, models.EntityPlayer))

	got := <-sub.Events()
	if got.Entity != models.EntityPlayer {
		t.Fatalf("got entity %s, want player", got.Entity)
	}
	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected extra event %v", extra)
	default:
	}
}

func TestHubCloseIsIdempotentAndReleases(t *testing.T) {
	h := NewHub(4)
	gameID := uuid.New()
	sub := h.Subscribe(gameID)

	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("events channel should be closed")
	}
	if games, subs := h.Stats(); games != 0 || subs != 0 {
		t.Fatalf("stats = (%d, %d), want (0, 0)", games, subs)
	}

	// Publishing after close must not panic.
	h.Publish(event(gameID, models.EntityGame))
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(2)
	gameID := uuid.New()
	slow := h.Subscribe(gameID)
	fast := h.Subscribe(gameID)
	defer fast.Close()

	for i := 0; i < 3; i++ {
		h.Publish(event(gameID, models.EntityGame))
		if i < 2 {
			<-fast.Events()
		}
	}

	n := 0
	for range slow.Events() {
		n++
	}
	if n != 2 {
		t.Fatalf("slow subscriber drained %d events before close, want 2", n)
	}
	if _, subs := h.Stats(); subs != 1 {
		t.Fatalf("subscribers = %d, want 1", subs)
	}
}
