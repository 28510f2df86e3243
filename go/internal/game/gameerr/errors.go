// Package gameerr holds the error taxonomy shared by the session engine,
// its RPC surface and the client SDK.
package gameerr

import "errors"

// User input errors. Surfaced verbatim and never retried automatically.
var (
	ErrGameNotFound       = errors.New("game not found")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNameTaken          = errors.New("display name already taken in this game")
	ErrInvalidInput       = errors.New("invalid input")
)

// State machine and authorization errors.
var (
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrEmptyRoster        = errors.New("game has no players")
	ErrAnswerWindowClosed = errors.New("answer window closed")
)

// Conflict errors. The caller's operation is obsolete.
var (
	ErrConflict      = errors.New("conflicting update")
	ErrStaleQuestion = errors.New("stale question")
)

// ErrCreation is returned when a game cannot be created consistently.
var ErrCreation = errors.New("game creation failed")

var reasons = []struct {
	err    error
	reason string
}{
	{ErrGameNotFound, "game_not_found"},
	{ErrGameAlreadyStarted, "game_already_started"},
	{ErrNameTaken, "name_taken"},
	{ErrInvalidInput, "invalid_input"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrNotAuthorized, "not_authorized"},
	{ErrEmptyRoster, "empty_roster"},
	{ErrAnswerWindowClosed, "answer_window_closed"},
	{ErrConflict, "conflict"},
	{ErrStaleQuestion, "stale_question"},
	{ErrCreation, "creation_failed"},
}

// Reason returns the wire reason for err, or "" if err is not part of the taxonomy.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ""
}

// FromReason maps a wire reason back to its sentinel. Unknown reasons return nil.
func FromReason(reason string) error {
	for _, r := range reasons {
		if r.reason == reason {
			return r.err
		}
	}
	return nil
}

// IsUserError reports whether err should be shown to the user as-is.
func IsUserError(err error) bool {
	return errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrGameAlreadyStarted) ||
		errors.Is(err, ErrNameTaken) ||
		errors.Is(err, ErrInvalidInput)
}

// IsConflict reports whether err means another actor already made the change.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStaleQuestion)
}
