// Package transport provides the relocation movers agents use to hand
// payloads to stations on other hosts.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/routing"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// Disabled refuses every relocation. Agents degrade the form and keep
// routing locally.
type Disabled struct{}

// Move always fails with agent.ErrMoveFailed.
func (Disabled) Move(_ context.Context, r routing.Relocation) error {
	return fmt.Errorf("%w: relocation disabled, cannot reach %s", agent.ErrMoveFailed, r.Host())
}

// Node receives relocated payloads. A pool is a node.
type Node interface {
	Arrive(ctx context.Context, r routing.Relocation) error
}

// Loopback is an in-process hub connecting nodes by host URL.
type Loopback struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

// NewLoopback creates an empty hub.
func NewLoopback() *Loopback {
	return &Loopback{nodes: make(map[string]Node)}
}

// Register attaches node under hostURL, replacing any previous node.
func (l *Loopback) Register(hostURL string, node Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes[hostURL] = node
}

// Unregister detaches the node under hostURL.
func (l *Loopback) Unregister(hostURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.nodes, hostURL)
}

// Hosts returns the number of registered nodes.
func (l *Loopback) Hosts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.nodes)
}

// Move hands r to the node serving the target host.
func (l *Loopback) Move(ctx context.Context, r routing.Relocation) error {
	host := r.Host()

	l.mu.RLock()
	node, ok := l.nodes[host]
	l.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %w: %s", agent.ErrMoveFailed, routing.ErrUnknownHost, host)
	}

	if err := node.Arrive(ctx, r); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrMoveFailed, err)
	}

	logging.Debug().
		Add(logging.AgentID(r.AgentID)).
		Add(logging.Place(r.Target.FullKey())).
		Add(logging.Count(len(r.Payloads))).
		Msg("relocated")
	return nil
}

var (
	_ routing.Mover = Disabled{}
	_ routing.Mover = (*Loopback)(nil)
)
