// Package postgres stores completion reports in PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/report"
)

// defaultDSN points at a local server without TLS.
const defaultDSN = "host=localhost port=5432 dbname=itinerary user=postgres sslmode=disable"

// Config is how the report store reaches PostgreSQL and sizes its pool.
type Config struct {
	// DSN is a keyword/value string or a postgres:// URL.
	DSN string

	// Schema holds the reports table.
	Schema string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns the pool sizing used when the storage section only
// names a DSN.
func DefaultConfig() Config {
	return Config{
		DSN:             defaultDSN,
		Schema:          "public",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  10 * time.Second,
	}
}

// FromStorage overlays the storage section on DefaultConfig.
func FromStorage(sc config.StorageConfig) Config {
	c := DefaultConfig()
	if sc.DSN != "" {
		c.DSN = sc.DSN
	}
	if sc.Schema != "" {
		c.Schema = sc.Schema
	}
	return c
}

// Connect opens the pool described by cfg and pings the server.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(report.ErrConnectionFailed, err)
	}
	return pool, nil
}
