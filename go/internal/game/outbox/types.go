package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// ErrNotPending is returned for an outbox row that is missing or already sent.
var ErrNotPending = errors.New("outbox event not found or already sent")

// Publisher delivers one change to the fan-out transport.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// OutboxRepository defines what the app layer needs from the repository
type OutboxRepository interface {
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]models.ChangeEvent, error)
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.ChangeEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	CountUnsentOutbox(ctx context.Context) (int64, error)
}
