package application

import (
	"github.com/felixgeelhaar/itinerary/domain/report"
	"github.com/felixgeelhaar/itinerary/domain/routing"
	"github.com/felixgeelhaar/itinerary/domain/stage"
	"github.com/felixgeelhaar/itinerary/infrastructure/namespace"
	"github.com/felixgeelhaar/itinerary/infrastructure/telemetry"
	"github.com/felixgeelhaar/itinerary/infrastructure/transport"
	"github.com/felixgeelhaar/itinerary/infrastructure/watcher"
)

// Mover relocates agent state to another host.
type Mover = routing.Mover

// Relocation is the agent state handed to a Mover.
type Relocation = routing.Relocation

// Defaults applied by NewAgent and NewBatchAgent.
const (
	DefaultMaxMoveErrors     = 3
	DefaultMaxItinerarySteps = 100
)

// AgentConfig contains the collaborators of an agent.
type AgentConfig struct {
	Oracle            routing.Oracle
	Namespace         *namespace.Namespace
	Guard             watcher.Guard
	Mover             Mover
	Stages            *stage.Table
	MaxMoveErrors     int
	MaxItinerarySteps int
	Store             report.Store
	Metrics           telemetry.Metrics
	Pool              *Pool
}

// Option configures an agent.
type Option func(*AgentConfig)

// WithOracle sets the routing oracle.
func WithOracle(o routing.Oracle) Option {
	return func(c *AgentConfig) {
		c.Oracle = o
	}
}

// WithNamespace sets the registry local stations are resolved from.
func WithNamespace(ns *namespace.Namespace) Option {
	return func(c *AgentConfig) {
		c.Namespace = ns
	}
}

// WithGuard sets the timed execution guard.
func WithGuard(g watcher.Guard) Option {
	return func(c *AgentConfig) {
		c.Guard = g
	}
}

// WithMover sets the relocation transport.
func WithMover(m Mover) Option {
	return func(c *AgentConfig) {
		c.Mover = m
	}
}

// WithStages sets the stage table.
func WithStages(t *stage.Table) Option {
	return func(c *AgentConfig) {
		c.Stages = t
	}
}

// WithMaxMoveErrors sets the number of failed relocations tolerated per run.
func WithMaxMoveErrors(n int) Option {
	return func(c *AgentConfig) {
		c.MaxMoveErrors = n
	}
}

// WithMaxItinerarySteps caps the transform history of a payload.
func WithMaxItinerarySteps(n int) Option {
	return func(c *AgentConfig) {
		c.MaxItinerarySteps = n
	}
}

// WithReportStore sets where completion reports are written.
func WithReportStore(s report.Store) Option {
	return func(c *AgentConfig) {
		c.Store = s
	}
}

// WithMetrics sets the fleet metrics.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *AgentConfig) {
		c.Metrics = m
	}
}

// WithPool sets the pool the agent returns itself to and hands sprouts to.
func WithPool(p *Pool) Option {
	return func(c *AgentConfig) {
		c.Pool = p
	}
}

func (c *AgentConfig) applyDefaults() {
	if c.Guard == nil {
		c.Guard = watcher.Noop{}
	}
	if c.Mover == nil {
		c.Mover = transport.Disabled{}
	}
	if c.Stages == nil {
		c.Stages = stage.Default()
	}
	if c.MaxMoveErrors == 0 {
		c.MaxMoveErrors = DefaultMaxMoveErrors
	}
	if c.MaxItinerarySteps == 0 {
		c.MaxItinerarySteps = DefaultMaxItinerarySteps
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NoopMetrics{}
	}
}
