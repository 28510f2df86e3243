// Package outbox relays committed game changes from the game_outbox table
// to the fan-out transport.
package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

// App handles outbox business logic
type App struct {
	repo OutboxRepository
}

// NewApp creates a new outbox App
func NewApp(repo OutboxRepository) *App {
	return &App{
		repo: repo,
	}
}

// FetchUnsentEvents fetches unsent outbox events in commit order
func (a *App) FetchUnsentEvents(ctx context.Context, limit int32) ([]models.ChangeEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	events, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	if len(events) > 0 {
		log.Debug().
			Int("count", len(events)).
			Msg("fetched unsent outbox events")
	}
	return events, nil
}

// MarkEventSent marks an outbox event as sent
func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	log.Debug().
		Str("event_id", eventID.String()).
		Msg("marked outbox event as sent")
	return nil
}

// GetEventByID fetches a pending outbox event by ID
func (a *App) GetEventByID(ctx context.Context, eventID uuid.UUID) (*models.ChangeEvent, error) {
	event, err := a.repo.FetchOutboxByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event by ID: %w", err)
	}
	return event, nil
}

// PendingCount reports how many events await relay.
func (a *App) PendingCount(ctx context.Context) (int64, error) {
	return a.repo.CountUnsentOutbox(ctx)
}

// ProcessUnsentEvents hands one batch of unsent events to processor in
// order and marks each one it accepts. It returns how many were sent.
// Processing stops at the first failure so later events of the same game
// are not sent ahead of it.
func (a *App) ProcessUnsentEvents(ctx context.Context, batchSize int32, processor func(event models.ChangeEvent) error) (int, error) {
	events, err := a.FetchUnsentEvents(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, event := range events {
		if err := processor(event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("game_id", event.GameID.String()).
				Msg("failed to process event")
			return processed, err
		}

		if err := a.MarkEventSent(ctx, event.ID); err != nil {
			return processed, err
		}
		processed++
	}

	if processed > 0 {
		log.Info().
			Int("processed", processed).
			Int("total", len(events)).
			Msg("processed unsent events batch")
	}
	return processed, nil
}
