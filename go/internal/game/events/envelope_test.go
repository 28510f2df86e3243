package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
)

func TestEnvelopePreservesChange(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	evt := models.ChangeEvent{
		ID:         uuid.New(),
		GameID:     uuid.New(),
		Entity:     models.EntityPlayer,
		Op:         models.OpUpdate,
		Before:     json.RawMessage(`{"score":0}`),
		After:      json.RawMessage(`{"score":10}`),
		OccurredAt: at,
	}

	data, err := Wrap(evt, at.Add(time.Second)).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(evt, env.Change()); diff != "" {
		t.Errorf("change mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsMissingIDs(t *testing.T) {
	if _, err := Decode([]byte(`{"entity":"game"}`)); err == nil {
		t.Fatal("expected error for envelope without ids")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for garbage")
	}
}

func TestSubjectRoundTrip(t *testing.T) {
	gameID := uuid.New()
	subject := Subject(DefaultSubjectPrefix, gameID, models.EntityAnswer)
	if want := "quiz.changes." + gameID.String() + ".answer"; subject != want {
		t.Fatalf("Subject = %q, want %q", subject, want)
	}
	got, err := GameFromSubject(DefaultSubjectPrefix, subject)
	if err != nil || got != gameID {
		t.Fatalf("GameFromSubject = %v, %v", got, err)
	}
	if _, err := GameFromSubject(DefaultSubjectPrefix, "other.thing"); err == nil {
		t.Fatal("expected error for foreign subject")
	}
	if Wildcard(DefaultSubjectPrefix) != "quiz.changes.>" {
		t.Fatalf("Wildcard = %q", Wildcard(DefaultSubjectPrefix))
	}
}
