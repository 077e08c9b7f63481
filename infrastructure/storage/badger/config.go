// Package badger keeps completion reports in an embedded BadgerDB, on disk or
// in memory.
package badger

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/report"
)

// ErrCorruptReport is returned for a stored value that does not decode.
var ErrCorruptReport = errors.New("badger: corrupt report")

// Config selects where the database lives and how it is compacted.
type Config struct {
	// Dir holds the database files. An empty Dir keeps everything in memory.
	Dir string

	SyncWrites bool

	// KeyPrefix namespaces every key; reports live under KeyPrefix+"report:".
	KeyPrefix string

	// GCInterval between value log collections. Zero disables collection.
	GCInterval     time.Duration
	GCDiscardRatio float64

	ValueLogFileSize int64
}

// DefaultConfig is an in-memory database with the itinerary key namespace.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:        "itinerary:",
		GCInterval:       10 * time.Minute,
		GCDiscardRatio:   0.5,
		ValueLogFileSize: 64 << 20,
	}
}

// FromStorage overlays the storage section on DefaultConfig.
func FromStorage(sc config.StorageConfig) Config {
	c := DefaultConfig()
	c.Dir = sc.Dir
	c.SyncWrites = sc.SyncWrites
	if ns := sc.KeyNamespace(); ns != "" {
		c.KeyPrefix = ns
	}
	return c
}

func (c Config) inMemory() bool { return c.Dir == "" }

func openDB(c Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(c.Dir).
		WithInMemory(c.inMemory()).
		WithSyncWrites(c.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if c.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(c.ValueLogFileSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(report.ErrConnectionFailed, err)
	}
	return db, nil
}
