package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcdev12/livequiz/go/internal/questionbank"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"

	fanoutLocal = "local"
	fanoutNATS  = "nats"
)

type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Store          string        `env:"QUIZ_STORE" envDefault:"memory"`
	QuestionCount  int           `env:"QUIZ_QUESTION_COUNT" envDefault:"5"`
	CodeAttempts   int           `env:"QUIZ_CODE_ATTEMPTS" envDefault:"10"`
	AnswerGrace    time.Duration `env:"QUIZ_ANSWER_GRACE" envDefault:"2s"`
	RequestTimeout time.Duration `env:"QUIZ_REQUEST_TIMEOUT" envDefault:"10s"`
	QuestionBank   string        `env:"QUIZ_QUESTION_BANK"`
	Fanout         string        `env:"QUIZ_FANOUT" envDefault:"local"`
	NATSURL        string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	JoinRateLimit  int           `env:"JOIN_RATE_LIMIT" envDefault:"30"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
}

func loadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Fanout = strings.ToLower(strings.TrimSpace(cfg.Fanout))

	switch cfg.Store {
	case storeMemory, storePostgres:
	default:
		return Config{}, fmt.Errorf("unknown QUIZ_STORE %q", cfg.Store)
	}
	switch cfg.Fanout {
	case fanoutLocal, fanoutNATS:
	default:
		return Config{}, fmt.Errorf("unknown QUIZ_FANOUT %q", cfg.Fanout)
	}
	// Changes only reach NATS through the Postgres outbox.
	if cfg.Fanout == fanoutNATS && cfg.Store != storePostgres {
		return Config{}, fmt.Errorf("QUIZ_FANOUT=nats requires QUIZ_STORE=postgres")
	}
	return cfg, nil
}

func setupLogging(cfg Config) {
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func loadQuestionBank(path string) (*questionbank.Bank, error) {
	if path == "" {
		return questionbank.Builtin()
	}
	bank, err := questionbank.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("loaded question bank")
	return bank, nil
}
