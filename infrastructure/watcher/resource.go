package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/infrastructure/telemetry"
)

// ErrReleased is the cancellation cause of an invocation context whose
// station returned in time.
var ErrReleased = errors.New("timed resource released")

// Handle ends a guarded station invocation.
type Handle interface {
	Close()
}

// TimedResource tracks one guarded station invocation.
type TimedResource struct {
	mu sync.Mutex

	agentName string
	place     string
	allowed   time.Duration
	count     int
	started   time.Time
	cancel    context.CancelCauseFunc
	timings   *telemetry.PlaceTimings

	released bool
	expired  bool
}

// Close releases the resource and records its elapsed time. It is
// idempotent and safe against a concurrent expiry.
func (r *TimedResource) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return
	}
	r.released = true
	r.cancel(ErrReleased)

	if r.timings != nil {
		r.timings.Record(context.Background(), r.place, time.Since(r.started))
	}
}

// Expired reports whether the resource overran its limit.
func (r *TimedResource) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

// Limit returns the total time the invocation may take.
func (r *TimedResource) Limit() time.Duration {
	return r.allowed * time.Duration(r.count)
}

// checkState cancels the invocation if it overran and reports whether the
// resource no longer needs tracking.
func (r *TimedResource) checkState(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released || r.expired {
		return true
	}
	if now.Sub(r.started) > r.Limit() {
		r.expired = true
		r.cancel(agent.ErrDeadlineExceeded)
		return true
	}
	return false
}

type noopHandle struct{}

func (noopHandle) Close() {}
