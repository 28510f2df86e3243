package sqlutil

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPgInt4RoundTrip(t *testing.T) {
	if FromPgInt4(ToPgInt4(nil)) != nil {
		t.Fatal("nil int should stay nil")
	}
	v := 3
	got := FromPgInt4(ToPgInt4(&v))
	if got == nil || *got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
}

func TestPgTimestamptzRoundTrip(t *testing.T) {
	if FromPgTimestamptz(ToPgTimestamptz(nil)) != nil {
		t.Fatal("nil time should stay nil")
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := FromPgTimestamptz(ToPgTimestamptz(&now))
	if got == nil || !got.Equal(now) {
		t.Fatalf("got %v, want %v", got, now)
	}
}

func TestNullRawMessage(t *testing.T) {
	if ToNullRawMessage(nil).Valid {
		t.Fatal("empty JSON should be NULL")
	}
	raw := json.RawMessage(`{"a":1}`)
	m := ToNullRawMessage(raw)
	if !m.Valid || string(FromNullRawMessage(m)) != `{"a":1}` {
		t.Fatalf("unexpected %+v", m)
	}
}
