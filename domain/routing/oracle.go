// Package routing defines the contract of the routing oracle agents consult
// for their next station.
package routing

import (
	"context"

	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
)

// Oracle is the routing directory consulted by agents.
type Oracle interface {
	// NextKeys returns the ranked candidates for dataID given the last
	// station visited, which may be nil. An empty result means no route.
	NextKeys(ctx context.Context, dataID string, p payload.Payload, last *directory.Entry) ([]*directory.Entry, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, dataID string, p payload.Payload, last *directory.Entry) ([]*directory.Entry, error)

// NextKeys calls f.
func (f OracleFunc) NextKeys(ctx context.Context, dataID string, p payload.Payload, last *directory.Entry) ([]*directory.Entry, error) {
	return f(ctx, dataID, p, last)
}
