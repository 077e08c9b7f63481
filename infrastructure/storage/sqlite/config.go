// Package sqlite keeps completion reports in a single SQLite file through
// database/sql and go-sqlite3.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/report"
)

// ErrMigrationFailed is returned when the reports table cannot be created.
var ErrMigrationFailed = errors.New("sqlite: migration failed")

// Config names the database file and the pragmas applied on open.
type Config struct {
	DSN          string
	MaxOpenConns int

	// JournalMode is ignored for in-memory databases.
	JournalMode string
	BusyTimeout time.Duration
}

// DefaultConfig writes itinerary.db in the working directory.
func DefaultConfig() Config {
	return Config{
		DSN:          "file:itinerary.db?cache=shared&mode=rwc",
		MaxOpenConns: 4,
		JournalMode:  "WAL",
		BusyTimeout:  5 * time.Second,
	}
}

// FromStorage overlays the storage section on DefaultConfig.
func FromStorage(sc config.StorageConfig) Config {
	c := DefaultConfig()
	if sc.DSN != "" {
		c.DSN = sc.DSN
	}
	return c
}

func (c Config) pragmas() []string {
	var out []string
	if c.JournalMode != "" && !strings.Contains(c.DSN, "mode=memory") {
		out = append(out, "PRAGMA journal_mode="+c.JournalMode)
	}
	if c.BusyTimeout > 0 {
		out = append(out, fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()))
	}
	return out
}

func openDB(c Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", c.DSN)
	if err != nil {
		return nil, errors.Join(report.ErrConnectionFailed, err)
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}

	for _, p := range c.pragmas() {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.Join(ErrMigrationFailed, err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(report.ErrConnectionFailed, err)
	}
	return db, nil
}
