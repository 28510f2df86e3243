package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	errInternal    = errors.New("internal error")
	errUnavailable = errors.New("service temporarily unavailable")
)

// toConnectError maps an engine error to a connect error carrying its
// reason header. Errors outside the taxonomy are logged and hidden.
func toConnectError(procedure string, err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, gameerr.ErrGameNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, gameerr.ErrGameAlreadyStarted),
		errors.Is(err, gameerr.ErrInvalidTransition),
		errors.Is(err, gameerr.ErrEmptyRoster),
		errors.Is(err, gameerr.ErrAnswerWindowClosed):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, gameerr.ErrNotAuthorized):
		code = connect.CodePermissionDenied
	case errors.Is(err, gameerr.ErrConflict), errors.Is(err, gameerr.ErrStaleQuestion):
		code = connect.CodeAborted
	case errors.Is(err, gameerr.ErrNameTaken):
		code = connect.CodeAlreadyExists
	case errors.Is(err, gameerr.ErrInvalidInput):
		code = connect.CodeInvalidArgument
	case errors.Is(err, gameerr.ErrCreation):
		code = connect.CodeInternal
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, store.ErrUnavailable):
		log.Warn().Err(err).Str("procedure", procedure).Msg("store unavailable")
		return connect.NewError(connect.CodeUnavailable, errUnavailable)
	default:
		log.Error().Err(err).Str("procedure", procedure).Msg("unexpected error")
		return connect.NewError(connect.CodeInternal, errInternal)
	}

	ce := connect.NewError(code, err)
	ce.Meta().Set(ReasonHeader, gameerr.Reason(err))
	return ce
}

// FromConnectError recovers the gameerr sentinel from a call error. Errors
// without a known reason are returned unchanged.
func FromConnectError(err error) error {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return err
	}
	if sentinel := gameerr.FromReason(ce.Meta().Get(ReasonHeader)); sentinel != nil {
		return &reasonError{sentinel: sentinel, cause: ce}
	}
	return err
}

// reasonError matches its sentinel with errors.Is and keeps the connect
// error reachable with errors.As.
type reasonError struct {
	sentinel error
	cause    *connect.Error
}

func (e *reasonError) Error() string { return e.cause.Message() }

func (e *reasonError) Unwrap() []error { return []error{e.sentinel, e.cause} }
