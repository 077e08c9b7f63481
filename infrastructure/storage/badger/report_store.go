package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/itinerary/domain/report"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// ReportStore is a BadgerDB-backed implementation of report.Store.
type ReportStore struct {
	db        *badger.DB
	keyPrefix string
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
	closeOnce sync.Once
}

// NewReportStore opens the database described by cfg. Collection runs only
// for on-disk databases.
func NewReportStore(cfg Config) (*ReportStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := NewReportStoreFromDB(db, cfg.KeyPrefix)
	if cfg.GCInterval > 0 && !cfg.inMemory() {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// NewReportStoreFromDB creates a report store over an existing database.
func NewReportStoreFromDB(db *badger.DB, keyPrefix string) *ReportStore {
	return &ReportStore{
		db:        db,
		keyPrefix: keyPrefix,
		gcStop:    make(chan struct{}),
	}
}

// startGC runs value log garbage collection every interval.
func (s *ReportStore) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				// Collect until nothing is left to rewrite
				for s.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

// Key format: prefix:report:id
func (s *ReportStore) reportKey(id string) []byte {
	return []byte(s.keyPrefix + "report:" + id)
}

func (s *ReportStore) reportPrefix() []byte {
	return []byte(s.keyPrefix + "report:")
}

// Save persists a new report.
func (s *ReportStore) Save(ctx context.Context, r *report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.ID == "" {
		return report.ErrInvalidReportID
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := s.reportKey(r.ID)
		if _, err := txn.Get(key); err == nil {
			return report.ErrReportExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// Get retrieves a report by ID.
func (s *ReportStore) Get(ctx context.Context, id string) (*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if id == "" {
		return nil, report.ErrInvalidReportID
	}

	var r *report.Report
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.reportKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return report.ErrReportNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r, err = decode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a report by ID.
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if id == "" {
		return report.ErrInvalidReportID
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := s.reportKey(id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return report.ErrReportNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// List returns reports matching the filter, most recent first.
func (s *ReportStore) List(ctx context.Context, filter report.ListFilter) ([]*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []*report.Report
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.reportPrefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r, err := decode(val)
				if err != nil {
					logging.Warn().
						Add(logging.Component("badger")).
						Add(logging.Str("key", string(it.Item().Key()))).
						Add(logging.ErrorField(err)).
						Msg("skipping unreadable report")
					return nil
				}
				all = append(all, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report.Select(all, filter), nil
}

// Count returns the number of reports matching the filter.
func (s *ReportStore) Count(ctx context.Context, filter report.ListFilter) (int64, error) {
	filter.Limit = 0
	matched, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Close stops garbage collection and closes the database.
func (s *ReportStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()
		err = s.db.Close()
	})
	return err
}

func decode(data []byte) (*report.Report, error) {
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Join(ErrCorruptReport, err)
	}
	return &r, nil
}

var _ report.Store = (*ReportStore)(nil)
