// Package watcher provides the execution guard that cancels station
// invocations overrunning their allowed time.
package watcher

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/place"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
	"github.com/felixgeelhaar/itinerary/infrastructure/telemetry"
)

// Guard defaults.
const (
	DefaultLimit        = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Guard starts guarded station invocations.
type Guard interface {
	Starting(ctx context.Context, agentName string, p place.Place, count int) (context.Context, Handle)
}

// ResourceWatcher polls open invocations and cancels those that overrun.
type ResourceWatcher struct {
	defaultLimit atomic.Int64
	pollInterval time.Duration
	timings      *telemetry.PlaceTimings

	mu       sync.Mutex
	limits   map[string]time.Duration
	tracking map[*TimedResource]struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a ResourceWatcher.
type Option func(*ResourceWatcher)

// WithDefaultLimit sets the limit of stations that declare none.
func WithDefaultLimit(d time.Duration) Option {
	return func(w *ResourceWatcher) {
		if d > 0 {
			w.defaultLimit.Store(int64(d))
		}
	}
}

// WithPollInterval sets the monitor tick.
func WithPollInterval(d time.Duration) Option {
	return func(w *ResourceWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithTimings shares a timing table with the watcher.
func WithTimings(t *telemetry.PlaceTimings) Option {
	return func(w *ResourceWatcher) {
		w.timings = t
	}
}

// New creates a stopped watcher.
func New(opts ...Option) *ResourceWatcher {
	w := &ResourceWatcher{
		pollInterval: DefaultPollInterval,
		limits:       make(map[string]time.Duration),
		tracking:     make(map[*TimedResource]struct{}),
	}
	w.defaultLimit.Store(int64(DefaultLimit))

	for _, opt := range opts {
		opt(w)
	}

	if w.timings == nil {
		t, err := telemetry.NewPlaceTimings()
		if err != nil {
			logging.Warn().
				Add(logging.Component("watcher")).
				Add(logging.ErrorField(err)).
				Msg("place timings unavailable")
		}
		w.timings = t
	}
	return w
}

// Start runs the monitor until Stop is called or ctx is done.
func (w *ResourceWatcher) Start(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.monitor(ctx, w.done)
}

// Stop halts the monitor and waits for it to exit.
func (w *ResourceWatcher) Stop() {
	w.runMu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *ResourceWatcher) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.check(now)
		}
	}
}

func (w *ResourceWatcher) check(now time.Time) {
	w.mu.Lock()
	resources := make([]*TimedResource, 0, len(w.tracking))
	for r := range w.tracking {
		resources = append(resources, r)
	}
	w.mu.Unlock()

	for _, r := range resources {
		wasExpired := r.Expired()
		if !r.checkState(now) {
			continue
		}
		if !wasExpired && r.Expired() {
			logging.Warn().
				Add(logging.Component("watcher")).
				Add(logging.Str("agent", r.agentName)).
				Add(logging.Place(r.place)).
				Add(logging.Count(r.count)).
				Add(logging.Duration(r.Limit())).
				Msg("station exceeded its time limit, interrupting")
		}
		w.mu.Lock()
		delete(w.tracking, r)
		w.mu.Unlock()
	}
}

// Starting guards one invocation of p by agentName over count payloads.
// The returned context is cancelled with agent.ErrDeadlineExceeded when the
// invocation overruns. Coordinators are not guarded.
func (w *ResourceWatcher) Starting(ctx context.Context, agentName string, p place.Place, count int) (context.Context, Handle) {
	if place.IsCoordinator(p) {
		return ctx, noopHandle{}
	}
	if count < 1 {
		count = 1
	}

	ictx, cancel := context.WithCancelCause(ctx)
	r := &TimedResource{
		agentName: agentName,
		place:     p.Name(),
		allowed:   w.limitFor(p),
		count:     count,
		started:   time.Now(),
		cancel:    cancel,
		timings:   w.timings,
	}

	w.mu.Lock()
	w.tracking[r] = struct{}{}
	w.mu.Unlock()

	return ictx, r
}

// limitFor resolves and caches the per-payload limit of p. A station
// declaring zero or a negative duration gets the default limit.
func (w *ResourceWatcher) limitFor(p place.Place) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := p.Name()
	if d, ok := w.limits[name]; ok {
		return d
	}
	d := p.AllowedDuration()
	if d <= 0 {
		d = time.Duration(w.defaultLimit.Load())
	}
	w.limits[name] = d
	return d
}

// SetDefaultLimit changes the default limit and drops cached limits.
func (w *ResourceWatcher) SetDefaultLimit(d time.Duration) {
	if d <= 0 {
		return
	}
	w.defaultLimit.Store(int64(d))

	w.mu.Lock()
	w.limits = make(map[string]time.Duration)
	w.mu.Unlock()
}

// DefaultLimit returns the current default limit.
func (w *ResourceWatcher) DefaultLimit() time.Duration {
	return time.Duration(w.defaultLimit.Load())
}

// Tracking returns the number of open invocations.
func (w *ResourceWatcher) Tracking() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracking)
}

// Timings returns the timing table.
func (w *ResourceWatcher) Timings() *telemetry.PlaceTimings {
	return w.timings
}

// DumpStats writes the per-station timing table.
func (w *ResourceWatcher) DumpStats(out io.Writer) error {
	if w.timings == nil {
		_, err := io.WriteString(out, "Place Timings: unavailable\n")
		return err
	}
	return w.timings.Dump(context.Background(), out)
}

// LogStats logs one line per timed station.
func (w *ResourceWatcher) LogStats(ctx context.Context) {
	if w.timings == nil {
		return
	}
	stats, err := w.timings.Snapshot(ctx)
	if err != nil {
		logging.Warn().Add(logging.Component("watcher")).Add(logging.ErrorField(err)).Msg("cannot read timings")
		return
	}
	for _, s := range stats {
		logging.Info().
			Add(logging.Component("watcher")).
			Add(logging.Place(s.Place)).
			Add(logging.Int("count", int(s.Count))).
			Add(logging.Duration(s.Average())).
			Msg("place timing")
	}
}

// ResetStats clears the timing table.
func (w *ResourceWatcher) ResetStats() {
	if w.timings == nil {
		return
	}
	if err := w.timings.Reset(); err != nil {
		logging.Warn().Add(logging.Component("watcher")).Add(logging.ErrorField(err)).Msg("cannot reset timings")
	}
}

// Noop is a guard that never interrupts.
type Noop struct{}

// Starting returns ctx unchanged.
func (Noop) Starting(ctx context.Context, _ string, _ place.Place, _ int) (context.Context, Handle) {
	return ctx, noopHandle{}
}

var (
	_ Guard = (*ResourceWatcher)(nil)
	_ Guard = Noop{}
)
