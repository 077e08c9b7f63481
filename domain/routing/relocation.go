package routing

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
)

// Relocation errors.
var (
	// ErrUnknownHost indicates a relocation to a host nobody serves.
	ErrUnknownHost = errors.New("unknown host")

	// ErrRateLimited indicates a relocation was refused by the rate limiter.
	ErrRateLimited = errors.New("relocation rate limit exceeded")
)

// Relocation is the agent state handed to another host.
type Relocation struct {
	// AgentID identifies the carrier that gave the payloads up.
	AgentID string

	// Payloads travel together; index 0 is the primary.
	Payloads []payload.Payload

	// Target is the station to continue at.
	Target *directory.Entry

	// MoveErrors is the number of failed relocations so far.
	MoveErrors int

	// Queue holds the remaining itinerary entries.
	Queue []*directory.Entry
}

// Host returns the host URL of the target, or "".
func (r Relocation) Host() string {
	if r.Target == nil {
		return ""
	}
	return r.Target.HostURL()
}

// Mover relocates agent state to the host of Relocation.Target. A nil error
// means the payloads are now owned by the receiving side.
type Mover interface {
	Move(ctx context.Context, r Relocation) error
}

// MoverFunc adapts a function to the Mover interface.
type MoverFunc func(ctx context.Context, r Relocation) error

// Move calls f.
func (f MoverFunc) Move(ctx context.Context, r Relocation) error {
	return f(ctx, r)
}
