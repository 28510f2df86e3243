package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/livequiz/go/internal/dbconfig"
	"github.com/mcdev12/livequiz/go/internal/store/pgstore"
	"github.com/rs/zerolog/log"
)

// setupDatabase opens the pool and applies the schema.
func setupDatabase(ctx context.Context) (*pgxpool.Pool, dbconfig.Config, error) {
	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		return nil, dbconfig.Config{}, err
	}

	poolCfg, err := pgxpool.ParseConfig(dbCfg.DSN())
	if err != nil {
		return nil, dbconfig.Config{}, fmt.Errorf("failed to parse database config: %w", err)
	}
	if dbCfg.MaxConns > 0 {
		poolCfg.MaxConns = dbCfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, dbconfig.Config{}, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, dbconfig.Config{}, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := pgstore.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, dbconfig.Config{}, err
	}

	log.Info().
		Str("user", dbCfg.User).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return pool, dbCfg, nil
}
