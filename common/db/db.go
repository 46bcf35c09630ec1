// Package db provides a standalone Postgres connectivity check and
// health probe, independent of the pool internal/store/pgstore owns.
// A devharness process uses it to fail fast on a bad DSN before
// constructing the store. Health is not wired to the devharness
// /health endpoint, which uses server.HealthHandler.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/journeyengine/common/config"
	"github.com/lyzr/journeyengine/common/logger"
)

// DB wraps a pgxpool used only for the preflight check / health probe.
type DB struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// New opens a connection pool against cfg.Store.PostgresDSN and pings it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Store.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Store.MaxConns)
	poolConfig.MinConns = int32(cfg.Store.MinConns)
	poolConfig.MaxConnLifetime = cfg.Store.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Store.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database reachable", "dsn_set", cfg.Store.PostgresDSN != "")

	return &DB{pool: pool, log: log}, nil
}

// Close closes the preflight connection pool.
func (db *DB) Close() {
	db.log.Info("closing preflight database connection")
	db.pool.Close()
}

// Health checks database reachability.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.pool.Ping(ctx)
}
