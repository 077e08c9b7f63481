package sqlite

import (
	"strings"
	"testing"

	"github.com/felixgeelhaar/itinerary/domain/report"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/storetest"
)

func newTestReportStore(t *testing.T) *ReportStore {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := DefaultConfig()
	cfg.DSN = "file:" + name + "?mode=memory&cache=shared"
	store, err := NewReportStore(cfg)
	if err != nil {
		t.Fatalf("NewReportStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestReportStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) report.Store {
		return newTestReportStore(t)
	})
}

func TestBuildListQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filter   report.ListFilter
		count    bool
		want     string
		wantArgs int
	}{
		{
			name: "no filter",
			want: "SELECT data FROM reports ORDER BY completed_at DESC, id ASC",
		},
		{
			name:     "prefix and limit",
			filter:   report.ListFilter{ShortNamePrefix: "inv", Limit: 5},
			want:     `SELECT data FROM reports WHERE short_name LIKE ? ESCAPE '\' ORDER BY completed_at DESC, id ASC LIMIT ?`,
			wantArgs: 2,
		},
		{
			name:   "count errors",
			filter: report.ListFilter{ErrorsOnly: true, Limit: 5},
			count:  true,
			want:   "SELECT COUNT(*) FROM reports WHERE has_errors = 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, args := buildListQuery(tt.filter, tt.count)
			if got != tt.want {
				t.Errorf("query = %q, want %q", got, tt.want)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike() = %q", got)
	}
}

func TestConfig_pragmas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dsn  string
		want int
	}{
		{"file", "file:reports.db", 2},
		{"memory skips journal", "file:x?mode=memory", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.DSN = tt.dsn
			if got := cfg.pragmas(); len(got) != tt.want {
				t.Errorf("pragmas() = %v, want %d", got, tt.want)
			}
		})
	}
}
