package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/report"
	infradir "github.com/felixgeelhaar/itinerary/infrastructure/directory"
	"github.com/felixgeelhaar/itinerary/infrastructure/namespace"
	"github.com/felixgeelhaar/itinerary/infrastructure/station"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/memory"
)

const waitTimeout = 5 * time.Second

// fixture is a namespace and directory with a pickup station bound locally
// but not advertised.
type fixture struct {
	ns     *namespace.Namespace
	dir    *infradir.Static
	store  *memory.ReportStore
	pickup *station.Scripted
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ns:    namespace.New(),
		dir:   infradir.NewStatic(),
		store: memory.NewReportStore(),
		pickup: station.New(config.StationConfig{
			Name:        "Pickup",
			DataType:    "UNKNOWN",
			ServiceName: "PICKUP",
			ServiceType: "INPUT",
		}),
	}
	if err := f.ns.Bind(f.pickup.Location(), f.pickup); err != nil {
		t.Fatalf("Bind(pickup) error = %v", err)
	}
	return f
}

// station registers a scripted station in the namespace and the directory.
func (f *fixture) station(t *testing.T, cfg config.StationConfig) *station.Scripted {
	t.Helper()
	s := station.New(cfg)
	if err := station.Register(s, f.dir, f.ns); err != nil {
		t.Fatalf("Register(%s) error = %v", cfg.Name, err)
	}
	return s
}

// local binds a scripted station in the namespace without advertising it.
func (f *fixture) local(t *testing.T, cfg config.StationConfig) *station.Scripted {
	t.Helper()
	s := station.New(cfg)
	if err := f.ns.Bind(s.Location(), s); err != nil {
		t.Fatalf("Bind(%s) error = %v", cfg.Name, err)
	}
	return s
}

// pipeline advertises ID, TRANSFORM and IO stations turning UNKNOWN into
// DONE.
func (f *fixture) pipeline(t *testing.T) []*station.Scripted {
	t.Helper()
	return []*station.Scripted{
		f.station(t, config.StationConfig{Name: "IdPlace", DataType: "UNKNOWN", ServiceName: "IDENT", ServiceType: "ID", SetForm: "TEXT"}),
		f.station(t, config.StationConfig{Name: "LowerPlace", DataType: "TEXT", ServiceName: "LOWER", ServiceType: "TRANSFORM", SetForm: "LOWER_TEXT"}),
		f.station(t, config.StationConfig{Name: "Output", DataType: "LOWER_TEXT", ServiceName: "WRITE", ServiceType: "IO", SetForm: "DONE"}),
	}
}

func (f *fixture) agent(t *testing.T, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{
		WithOracle(f.dir),
		WithNamespace(f.ns),
		WithReportStore(f.store),
	}, opts...)
	a, err := NewAgent("MobileAgent-01", opts...)
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(a.Kill)
	return a
}

func (f *fixture) batchAgent(t *testing.T, opts ...Option) *BatchAgent {
	t.Helper()
	opts = append([]Option{
		WithOracle(f.dir),
		WithNamespace(f.ns),
		WithReportStore(f.store),
	}, opts...)
	b, err := NewBatchAgent("MobileAgent-01", opts...)
	if err != nil {
		t.Fatalf("NewBatchAgent() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Kill)
	return b
}

// reports waits for n reports and returns them.
func (f *fixture) reports(t *testing.T, n int) []*report.Report {
	t.Helper()
	waitFor(t, "reports", func() bool { return f.store.Len() >= n })
	rs, err := f.store.List(context.Background(), report.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rs) != n {
		t.Fatalf("len(reports) = %d, want %d", len(rs), n)
	}
	return rs
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitIdle waits until c has finished its run.
func waitIdle(t *testing.T, c Carrier) {
	t.Helper()
	waitFor(t, c.Name()+" idle", func() bool { return !c.InUse() })
}

// newPayload returns a payload with the given forms, last on top.
func newPayload(name string, forms ...string) *payload.DataObject {
	return payload.New(name, []byte(name), forms...)
}

// recordingPlace wraps a scripted station and records the batches it sees.
type recordingPlace struct {
	*station.Scripted

	mu      sync.Mutex
	batches [][]string
	sizes   []int
}

func (r *recordingPlace) Process(ctx context.Context, p payload.Payload) ([]payload.Payload, error) {
	r.mu.Lock()
	r.batches = append(r.batches, []string{p.ShortName()})
	r.sizes = append(r.sizes, p.History().Size(true))
	r.mu.Unlock()
	return r.Scripted.Process(ctx, p)
}

func (r *recordingPlace) ProcessBatch(ctx context.Context, ps []payload.Payload) ([]payload.Payload, error) {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.ShortName())
	}
	r.mu.Lock()
	r.batches = append(r.batches, names)
	r.mu.Unlock()

	var sprouts []payload.Payload
	for _, p := range ps {
		out, err := r.Scripted.Process(ctx, p)
		if err != nil {
			return sprouts, err
		}
		sprouts = append(sprouts, out...)
	}
	return sprouts, nil
}

func (r *recordingPlace) Batches() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func (r *recordingPlace) HistorySizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.sizes...)
}

// recording advertises a recording station built from cfg.
func (f *fixture) recording(t *testing.T, cfg config.StationConfig) *recordingPlace {
	t.Helper()
	r := &recordingPlace{Scripted: station.New(cfg)}
	if err := f.ns.Bind(r.Location(), r); err != nil {
		t.Fatalf("Bind(%s) error = %v", cfg.Name, err)
	}
	f.dir.Register(r.Entry())
	return r
}
