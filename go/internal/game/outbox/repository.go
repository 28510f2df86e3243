package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store/pgstore/db"
)

// Repository reads the game_outbox table.
type Repository struct {
	queries *db.Queries
}

func NewRepository(queries *db.Queries) *Repository {
	return &Repository{
		queries: queries,
	}
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]models.ChangeEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	events := make([]models.ChangeEvent, len(rows))
	for i, row := range rows {
		events[i] = dbOutboxToModel(row)
	}
	return events, nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.ChangeEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotPending
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	evt := dbOutboxToModel(row)
	return &evt, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) CountUnsentOutbox(ctx context.Context) (int64, error) {
	n, err := r.queries.CountUnsentOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

func dbOutboxToModel(row db.GameOutbox) models.ChangeEvent {
	return models.ChangeEvent{
		ID:         row.ID,
		GameID:     row.GameID,
		Entity:     models.EntityKind(row.Entity),
		Op:         models.Operation(row.Op),
		Before:     row.Before,
		After:      row.After,
		OccurredAt: row.OccurredAt,
	}
}
