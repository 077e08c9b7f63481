// Package place defines the station contract agents invoke and the optional
// capabilities a station may declare.
package place

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
)

// DefaultDuration asks the execution guard to apply its default time limit.
const DefaultDuration time.Duration = -1

// ErrNilPlace indicates a nil station was handed to an agent.
var ErrNilPlace = errors.New("place is nil")

// Place is a unit of business logic routed to by the oracle.
//
// Process must observe ctx at blocking points: the execution guard and
// agent shutdown cancel it.
type Place interface {
	// Key returns the full station key, expense included.
	Key() string

	// Name returns the station name used for timing and time limits.
	Name() string

	// Process handles one payload and returns any sprouted payloads.
	Process(ctx context.Context, p payload.Payload) ([]payload.Payload, error)

	// AllowedDuration returns the time limit for one invocation, or
	// DefaultDuration.
	AllowedDuration() time.Duration
}

// EmptyFormTolerant is implemented by stations that may legitimately leave
// a payload without forms.
type EmptyFormTolerant interface {
	AllowsEmptyForm() bool
}

// BatchProcessor is implemented by stations that handle several payloads in
// one invocation.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, payloads []payload.Payload) ([]payload.Payload, error)
}

// Coordinator is implemented by stations that dispatch to other stations
// themselves. They time their children individually and are not guarded.
type Coordinator interface {
	Coordinates() bool
}

// AllowsEmptyForm reports whether p tolerates an empty form stack.
func AllowsEmptyForm(p Place) bool {
	t, ok := p.(EmptyFormTolerant)
	return ok && t.AllowsEmptyForm()
}

// IsCoordinator reports whether p coordinates other stations.
func IsCoordinator(p Place) bool {
	c, ok := p.(Coordinator)
	return ok && c.Coordinates()
}

// Entry returns the directory entry for p's key.
func Entry(p Place) (*directory.Entry, error) {
	return directory.ParseEntry(p.Key())
}

// ProcessAll invokes p once for the whole batch when it is a
// BatchProcessor, and once per payload otherwise. Sprouts are concatenated.
func ProcessAll(ctx context.Context, p Place, payloads []payload.Payload) ([]payload.Payload, error) {
	if bp, ok := p.(BatchProcessor); ok {
		return bp.ProcessBatch(ctx, payloads)
	}

	var sprouts []payload.Payload
	for _, d := range payloads {
		if err := ctx.Err(); err != nil {
			return sprouts, err
		}
		out, err := p.Process(ctx, d)
		if err != nil {
			return sprouts, err
		}
		sprouts = append(sprouts, out...)
	}
	return sprouts, nil
}
