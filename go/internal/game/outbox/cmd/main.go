package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/livequiz/go/internal/dbconfig"
	"github.com/mcdev12/livequiz/go/internal/game/outbox"
	"github.com/mcdev12/livequiz/go/internal/store/pgstore/db"
)

type relayConfig struct {
	NATSURL          string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	StreamName       string        `env:"QUIZ_STREAM" envDefault:"QUIZ_CHANGES"`
	FallbackInterval time.Duration `env:"FALLBACK_INTERVAL" envDefault:"30s"`
	HealthAddr       string        `env:"HEALTH_ADDR" envDefault:":8082"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"debug"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"json"`
}

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := env.ParseAs[relayConfig]()
	if err != nil {
		log.Fatal().Err(err).Msg("parse relay config")
	}

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("database config")
	}
	dsn := dbCfg.DSN()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")

	clock := clockwork.NewRealClock()

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	jsCfg.StreamName = cfg.StreamName
	nc, err := outbox.ConnectNATS(jsCfg.URL, jsCfg.MaxReconnects, jsCfg.ReconnectWait)
	if err != nil {
		log.Fatal().Err(err).Msg("connect NATS")
	}
	defer nc.Close()
	publisher, err := outbox.NewJetStreamPublisher(ctx, nc, clock, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.FallbackInterval = cfg.FallbackInterval
	notifier, err := outbox.Listen(ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	app := outbox.NewApp(outbox.NewRepository(db.New(pool)))
	listener := outbox.NewListener(app, notifier, publisher, clock, ltCfg)

	mux := http.NewServeMux()
	mux.Handle("/health", outbox.NewHealthChecker(listener, app, pool, nc, clock, 2*time.Minute))
	srv := &http.Server{Addr: cfg.HealthAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msg("starting outbox relay")
		return listener.Start(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HealthAddr).Msg("health endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("relay exited unexpectedly")
		os.Exit(1)
	}
	log.Info().Msg("graceful shutdown complete")
}
