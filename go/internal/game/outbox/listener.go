package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store/pgstore"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int32 // Max events to fetch per batch
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    pgstore.NotifyChannel,
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Notifier is the subset of *pq.Listener the relay drives.
type Notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listen opens a pq listener on cfg.NotifyChannel.
func Listen(cfg ListenerConfig) (*pq.Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")
	return l, nil
}

// Listener relays outbox rows as they are notified, with a periodic sweep
// for anything a notification missed.
type Listener struct {
	app       *App
	notifier  Notifier
	publisher Publisher
	clock     clockwork.Clock
	cfg       ListenerConfig

	mu        sync.Mutex
	running   bool
	processed uint64
	lastSent  time.Time
}

func NewListener(app *App, notifier Notifier, publisher Publisher, clock clockwork.Clock, cfg ListenerConfig) *Listener {
	return &Listener{
		app:       app,
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
	}
}

// Start blocks until ctx is done. Unsent rows are swept once up front.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	l.setRunning(true)
	defer l.setRunning(false)

	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed initial sweep of unsent events")
	}

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	notes := l.notifier.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			if err := l.notifier.Close(); err != nil {
				log.Error().Err(err).Msg("close notifier")
			}
			return ctx.Err()
		case note := <-notes:
			if note == nil {
				// The connection was re-established; notifications may have
				// been lost in between.
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events after reconnect")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.Chan():
			if err := l.notifier.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Stats reports how many events were relayed and when the last one went out.
func (l *Listener) Stats() (uint64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed, l.lastSent
}

// Running reports whether Start is active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}

func (l *Listener) recordSent() {
	l.mu.Lock()
	l.processed++
	l.lastSent = l.clock.Now()
	l.mu.Unlock()
}

// handleNotification publishes the outbox row named by the payload. A row
// already relayed by a sweep is skipped.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.app.GetEventByID(ctx, id)
	if errors.Is(err, ErrNotPending) {
		log.Debug().Str("event_id", id.String()).Msg("event already relayed")
		return nil
	}
	if err != nil {
		return err
	}

	if err := l.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if err := l.app.MarkEventSent(ctx, id); err != nil {
		return err
	}
	l.recordSent()

	log.Info().Str("event_id", id.String()).Msg("published and marked event as sent")
	return nil
}

// processUnsent drains the outbox in batches until it is empty or a
// publish fails.
func (l *Listener) processUnsent(ctx context.Context) error {
	for {
		n, err := l.app.ProcessUnsentEvents(ctx, l.cfg.BatchSize, func(event models.ChangeEvent) error {
			return l.publishWithRetry(ctx, event)
		})
		for i := 0; i < n; i++ {
			l.recordSent()
		}
		if err != nil {
			return err
		}
		if n < int(l.cfg.BatchSize) {
			return nil
		}
	}
}

// publishWithRetry publishes with exponential backoff, giving up after
// MaxRetries retries.
func (l *Listener) publishWithRetry(ctx context.Context, event models.ChangeEvent) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.RetryDelay
	b.MaxInterval = 20 * l.cfg.RetryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, l.publisher.Publish(ctx, event)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(l.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Dur("retry_in", next).
				Msg("failed to publish, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, err)
	}
	return nil
}
