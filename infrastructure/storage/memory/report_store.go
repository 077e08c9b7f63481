// Package memory provides an in-memory report store.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/itinerary/domain/report"
)

// ReportStore is an in-memory implementation of report.Store. Reports are
// held as JSON so callers never share memory with the store.
type ReportStore struct {
	reports map[string][]byte
	mu      sync.RWMutex
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[string][]byte),
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[r.ID]; exists {
		return report.ErrReportExists
	}
	s.reports[r.ID] = data
	return nil
}

// Get retrieves a report by ID.
func (s *ReportStore) Get(ctx context.Context, id string) (*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if id == "" {
		return nil, report.ErrInvalidReportID
	}

	s.mu.RLock()
	data, ok := s.reports[id]
	s.mu.RUnlock()

	if !ok {
		return nil, report.ErrReportNotFound
	}
	return decode(data)
}

// Delete removes a report by ID.
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if id == "" {
		return report.ErrInvalidReportID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[id]; !ok {
		return report.ErrReportNotFound
	}
	delete(s.reports, id)
	return nil
}

// List returns reports matching the filter, most recent first.
func (s *ReportStore) List(ctx context.Context, filter report.ListFilter) ([]*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.all()
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

// Len returns the number of stored reports.
func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

func (s *ReportStore) all() ([]*report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*report.Report, 0, len(s.reports))
	for _, data := range s.reports {
		r, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func decode(data []byte) (*report.Report, error) {
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

var _ report.Store = (*ReportStore)(nil)
