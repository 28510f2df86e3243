package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/game/answer"
	"github.com/mcdev12/livequiz/go/internal/game/fanout"
	"github.com/mcdev12/livequiz/go/internal/game/gateway"
	"github.com/mcdev12/livequiz/go/internal/game/outbox"
	"github.com/mcdev12/livequiz/go/internal/game/service"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/mcdev12/livequiz/go/internal/identity"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/mcdev12/livequiz/go/internal/store/memstore"
	"github.com/mcdev12/livequiz/go/internal/store/pgstore"
	"github.com/mcdev12/livequiz/go/internal/store/pgstore/db"
)

// relayStallThreshold is how long a non-empty outbox may go without a
// successful publish before /health/relay reports unhealthy.
const relayStallThreshold = 2 * time.Minute

type Services struct {
	Quiz    *service.Service
	Gateway *gateway.Service
	Hub     *fanout.Hub

	// Relay and RelayHealth are nil with the in-memory store.
	Relay       *outbox.Listener
	RelayHealth http.Handler

	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupServices(ctx context.Context, cfg Config, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Session/Answer apps → View observer → RPC service + gateway
	svc := &Services{Hub: fanout.NewHub(0)}

	var (
		st store.Store
		js jetstream.JetStream
	)
	switch cfg.Store {
	case storePostgres:
		pgStore, stream, err := setupPostgres(ctx, cfg, clock, svc)
		if err != nil {
			svc.Close()
			return nil, err
		}
		st, js = pgStore, stream
	default:
		st = memstore.New(svc.Hub, clock)
		log.Info().Msg("using in-memory store")
	}

	bank, err := loadQuestionBank(cfg.QuestionBank)
	if err != nil {
		svc.Close()
		return nil, err
	}

	// Sessions
	sessions := session.NewApp(st, bank, identity.NewGenerator(), clock, session.Config{
		QuestionCount: cfg.QuestionCount,
		CodeAttempts:  cfg.CodeAttempts,
	})

	// Answers
	answerCfg := answer.DefaultConfig()
	answerCfg.Grace = cfg.AnswerGrace
	answers := answer.NewApp(st, sessions, clock, answerCfg)

	// Views
	observer := view.NewObserver(st)

	svc.Quiz = service.NewService(sessions, answers, observer)
	svc.Gateway = gateway.NewService(gateway.DefaultConfig(), observer, clock, js, svc.Hub)
	return svc, nil
}

// setupPostgres builds the Postgres store and the outbox relay that feeds
// the hub, either directly or through JetStream and the gateway consumer.
func setupPostgres(ctx context.Context, cfg Config, clock clockwork.Clock, svc *Services) (*pgstore.Store, jetstream.JetStream, error) {
	pool, dbCfg, err := setupDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc.closers = append(svc.closers, pool.Close)

	var (
		publisher outbox.Publisher
		nc        *nats.Conn
		js        jetstream.JetStream
	)
	switch cfg.Fanout {
	case fanoutNATS:
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		nc, err = outbox.ConnectNATS(jsCfg.URL, jsCfg.MaxReconnects, jsCfg.ReconnectWait)
		if err != nil {
			return nil, nil, err
		}
		svc.closers = append(svc.closers, nc.Close)

		jsPub, err := outbox.NewJetStreamPublisher(ctx, nc, clock, jsCfg)
		if err != nil {
			return nil, nil, err
		}
		js, err = jetstream.New(nc)
		if err != nil {
			return nil, nil, fmt.Errorf("create JetStream context: %w", err)
		}
		publisher = jsPub
		log.Info().Str("url", jsCfg.URL).Str("stream", jsCfg.StreamName).Msg("relaying changes through JetStream")
	default:
		publisher = outbox.NewHubPublisher(svc.Hub)
		log.Info().Msg("relaying changes to the local hub")
	}

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dbCfg.DSN()
	notifier, err := outbox.Listen(ltCfg)
	if err != nil {
		return nil, nil, err
	}

	app := outbox.NewApp(outbox.NewRepository(db.New(pool)))
	svc.Relay = outbox.NewListener(app, notifier, publisher, clock, ltCfg)
	svc.RelayHealth = outbox.NewHealthChecker(svc.Relay, app, pool, nc, clock, relayStallThreshold)

	return pgstore.New(pool, svc.Hub, clock), js, nil
}
