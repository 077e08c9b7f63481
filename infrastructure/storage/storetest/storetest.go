// Package storetest provides the behavior every report.Store must satisfy.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/report"
)

// Run exercises a store created by newStore. Each subtest gets a fresh
// store.
func Run(t *testing.T, newStore func(t *testing.T) report.Store) {
	t.Helper()

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := sample("r-1", "invoice", time.Now().UTC().Truncate(time.Millisecond))
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := s.Get(ctx, "r-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ShortName != "invoice" || got.AgentID != r.AgentID {
			t.Errorf("Get() = %+v, want %+v", got, r)
		}
		if len(got.History) != 2 || got.History[1] != r.History[1] {
			t.Errorf("History = %v, want %v", got.History, r.History)
		}
		if !got.CompletedAt.Equal(r.CompletedAt) {
			t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, r.CompletedAt)
		}
	})

	t.Run("duplicate save", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := sample("r-1", "invoice", time.Now().UTC())
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := s.Save(ctx, r); !errors.Is(err, report.ErrReportExists) {
			t.Errorf("second Save() error = %v, want ErrReportExists", err)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Save(ctx, &report.Report{}); !errors.Is(err, report.ErrInvalidReportID) {
			t.Errorf("Save() error = %v, want ErrInvalidReportID", err)
		}
		if _, err := s.Get(ctx, ""); !errors.Is(err, report.ErrInvalidReportID) {
			t.Errorf("Get() error = %v, want ErrInvalidReportID", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Get(ctx, "missing"); !errors.Is(err, report.ErrReportNotFound) {
			t.Errorf("Get() error = %v, want ErrReportNotFound", err)
		}
		if err := s.Delete(ctx, "missing"); !errors.Is(err, report.ErrReportNotFound) {
			t.Errorf("Delete() error = %v, want ErrReportNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Save(ctx, sample("r-1", "invoice", time.Now().UTC())); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := s.Delete(ctx, "r-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, "r-1"); !errors.Is(err, report.ErrReportNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrReportNotFound", err)
		}
	})

	t.Run("list and count", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		failed := sample("r-2", "invoice-2", base.Add(time.Minute))
		failed.Forms = []string{"ERROR"}
		for _, r := range []*report.Report{
			sample("r-1", "invoice-1", base),
			failed,
			sample("r-3", "memo", base.Add(2*time.Minute)),
		} {
			if err := s.Save(ctx, r); err != nil {
				t.Fatalf("Save(%s) error = %v", r.ID, err)
			}
		}

		all, err := s.List(ctx, report.ListFilter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(all) != 3 || all[0].ID != "r-3" || all[2].ID != "r-1" {
			t.Errorf("List() = %v, want newest first", ids(all))
		}

		limited, _ := s.List(ctx, report.ListFilter{Limit: 2})
		if len(limited) != 2 || limited[0].ID != "r-3" {
			t.Errorf("List(limit 2) = %v", ids(limited))
		}

		prefixed, _ := s.List(ctx, report.ListFilter{ShortNamePrefix: "invoice"})
		if len(prefixed) != 2 || prefixed[0].ID != "r-2" {
			t.Errorf("List(prefix) = %v", ids(prefixed))
		}

		errs, _ := s.List(ctx, report.ListFilter{ErrorsOnly: true})
		if len(errs) != 1 || errs[0].ID != "r-2" {
			t.Errorf("List(errors) = %v", ids(errs))
		}

		n, err := s.Count(ctx, report.ListFilter{ShortNamePrefix: "invoice"})
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Count() = %d, want 2", n)
		}
	})
}

func sample(id, shortName string, at time.Time) *report.Report {
	return &report.Report{
		ID:          id,
		AgentID:     "Agent-0000abcd-" + shortName,
		RunID:       "run-" + id,
		ShortName:   shortName,
		Forms:       []string{"DONE"},
		History:     []string{"*.*.<SPROUT>.http://localhost:8001/Pickup$0", "UNKNOWN.IDENT.ID.http://localhost:8001/IdentPlace$5050"},
		Batch:       1,
		CompletedAt: at,
	}
}

func ids(rs []*report.Report) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
