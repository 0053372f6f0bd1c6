package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-gateway/internal/config"
)

const (
	defaultConnectAttempts = 5
	defaultConnectDelay    = 500 * time.Millisecond
)

// Connect builds a connection pool from cfg and waits until the database answers
// a ping, retrying with exponential backoff. With dynamic auth every new
// connection authenticates with a fresh token.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}
	tokens, err := newTokenFunc(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up dynamic database auth: %w", err)
	}
	if tokens != nil {
		poolConfig.BeforeConnect = tokens.beforeConnect
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = defaultConnectDelay
	expBackoff.MaxInterval = 10 * defaultConnectDelay
	expBackoff.Reset()

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(defaultConnectAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			slog.WarnContext(ctx, "Database not reachable, retrying", "error", err, "retry_in", d)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.InfoContext(ctx, "Database connection pool created",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return pool, nil
}
