package pgstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/livequiz/go/internal/store"
)

const (
	pgConnectionExceptionClass = "08"
	pgTooManyConnections       = "53300"
	pgAdminShutdown            = "57P01"
	pgCannotConnectNow         = "57P03"
)

// transient reports driver failures worth retrying: the statement never
// reached the server, the connection broke, or the server is refusing
// connections for now.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgTooManyConnections, pgAdminShutdown, pgCannotConnectNow:
			return true
		}
		return strings.HasPrefix(pgErr.Code, pgConnectionExceptionClass)
	}
	return false
}

// unavailable marks transient errors with store.ErrUnavailable and returns
// everything else unchanged.
func unavailable(err error) error {
	if errors.Is(err, store.ErrUnavailable) || !transient(err) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}
