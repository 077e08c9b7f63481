// Package storage opens the completion report store selected by
// configuration.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/report"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/badger"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/memory"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/redis"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open returns the store for cfg.Driver and the closer releasing it. The
// none driver yields a nil store.
func Open(ctx context.Context, cfg config.StorageConfig) (report.Store, io.Closer, error) {
	var (
		store  report.Store
		closer io.Closer = nopCloser{}
	)

	switch cfg.Driver {
	case config.StorageNone:
		return nil, closer, nil

	case "", config.StorageMemory:
		store = memory.NewReportStore()

	case config.StorageBadger:
		s, err := badger.NewReportStore(badger.FromStorage(cfg))
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s

	case config.StorageSQLite:
		s, err := sqlite.NewReportStore(sqlite.FromStorage(cfg))
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s

	case config.StoragePostgres:
		pgCfg := postgres.FromStorage(cfg)
		pool, err := postgres.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.NewReportStore(pool, pgCfg.Schema)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store = s
		closer = closerFunc(func() error {
			pool.Close()
			return nil
		})

	case config.StorageRedis:
		s, err := redis.NewReportStore(ctx, redis.FromStorage(cfg))
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s

	default:
		return nil, nil, fmt.Errorf("%w: %q", report.ErrUnknownDriver, cfg.Driver)
	}

	logging.Debug().
		Add(logging.Component("storage")).
		Add(logging.Str("driver", cfg.Driver)).
		Msg("report store opened")

	return store, closer, nil
}
