package gameerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestReasonRoundTrip(t *testing.T) {
	for _, r := range reasons {
		wrapped := fmt.Errorf("outer: %w", r.err)
		got := Reason(wrapped)
		if got != r.reason {
			t.Fatalf("Reason(%v) = %q, want %q", r.err, got, r.reason)
		}
		if back := FromReason(got); !errors.Is(back, r.err) {
			t.Fatalf("FromReason(%q) = %v, want %v", got, back, r.err)
		}
	}
}

func TestReasonUnknown(t *testing.T) {
	if got := Reason(errors.New("boom")); got != "" {
		t.Fatalf("Reason(unknown) = %q, want empty", got)
	}
	if FromReason("nope") != nil {
		t.Fatal("FromReason(unknown) should be nil")
	}
}

func TestClassification(t *testing.T) {
	if !IsUserError(fmt.Errorf("join: %w", ErrGameAlreadyStarted)) {
		t.Fatal("already started should be a user error")
	}
	if IsUserError(ErrConflict) {
		t.Fatal("conflict is not a user error")
	}
	if !IsConflict(ErrStaleQuestion) || !IsConflict(ErrConflict) {
		t.Fatal("stale and conflict should both classify as conflicts")
	}
}
