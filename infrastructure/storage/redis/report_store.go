package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/itinerary/domain/report"
)

// ReportStore keeps each report as a JSON string and indexes ids in a
// sorted set scored by completion time.
type ReportStore struct {
	client *redis.Client
	prefix string
	cfg    Config
	once   sync.Once
}

// NewReportStore connects to Redis and pings it.
func NewReportStore(ctx context.Context, cfg Config) (*ReportStore, error) {
	client := redis.NewClient(cfg.options())

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(report.ErrConnectionFailed, err)
	}

	return NewReportStoreFromClient(client, cfg), nil
}

// NewReportStoreFromClient wraps an existing client.
func NewReportStoreFromClient(client *redis.Client, cfg Config) *ReportStore {
	return &ReportStore{
		client: client,
		prefix: cfg.KeyPrefix,
		cfg:    cfg,
	}
}

func (s *ReportStore) reportKey(id string) string {
	return s.prefix + "report:" + id
}

func (s *ReportStore) indexKey() string {
	return s.prefix + "reports"
}

// Save persists a new report.
func (s *ReportStore) Save(ctx context.Context, r *report.Report) error {
	if r.ID == "" {
		return report.ErrInvalidReportID
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.reportKey(r.ID), data, s.cfg.TTL).Result()
	if err != nil {
		return errors.Join(report.ErrConnectionFailed, err)
	}
	if !ok {
		return report.ErrReportExists
	}

	score := float64(r.CompletedAt.UnixNano())
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: r.ID}).Err(); err != nil {
		return errors.Join(report.ErrConnectionFailed, err)
	}

	return nil
}

// Get retrieves a report by ID.
func (s *ReportStore) Get(ctx context.Context, id string) (*report.Report, error) {
	if id == "" {
		return nil, report.ErrInvalidReportID
	}

	data, err := s.client.Get(ctx, s.reportKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, report.ErrReportNotFound
	}
	if err != nil {
		return nil, errors.Join(report.ErrConnectionFailed, err)
	}

	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}

// Delete removes a report by ID.
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return report.ErrInvalidReportID
	}

	n, err := s.client.Del(ctx, s.reportKey(id)).Result()
	if err != nil {
		return errors.Join(report.ErrConnectionFailed, err)
	}
	if err := s.client.ZRem(ctx, s.indexKey(), id).Err(); err != nil {
		return errors.Join(report.ErrConnectionFailed, err)
	}
	if n == 0 {
		return report.ErrReportNotFound
	}
	return nil
}

// List returns reports matching the filter, most recent first. Index
// members whose report has expired are pruned.
func (s *ReportStore) List(ctx context.Context, filter report.ListFilter) ([]*report.Report, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Join(report.ErrConnectionFailed, err)
	}

	reports := make([]*report.Report, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if errors.Is(err, report.ErrReportNotFound) {
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	return report.Select(reports, filter), nil
}

// Count returns the number of reports matching the filter.
func (s *ReportStore) Count(ctx context.Context, filter report.ListFilter) (int64, error) {
	filter.Limit = 0
	reports, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(reports)), nil
}

// Close closes the client.
func (s *ReportStore) Close() error {
	var err error
	s.once.Do(func() {
		err = s.client.Close()
	})
	return err
}

var _ report.Store = (*ReportStore)(nil)
