package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/place"
	"github.com/felixgeelhaar/itinerary/domain/routing"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
	"github.com/felixgeelhaar/itinerary/infrastructure/namespace"
	"github.com/felixgeelhaar/itinerary/infrastructure/telemetry"
	"github.com/felixgeelhaar/itinerary/infrastructure/transport"
)

// PoolName is the namespace binding of the agent pool.
const PoolName = "AgentPool"

// Pool sizing bounds.
const (
	MinPoolSize = 5
	MaxPoolSize = 50

	// defaultMemoryBudget sizes the pool when no memory limit is set.
	defaultMemoryBudget = 1 << 30
)

// Pool errors.
var (
	// ErrPoolClosed indicates work was handed to a pool after Shutdown.
	ErrPoolClosed = errors.New("agent pool closed")

	// ErrNoFactory indicates a pool was built without an agent factory.
	ErrNoFactory = errors.New("agent factory is required")

	// ErrNoSuchPlace indicates a relocation targets a station that is not
	// bound locally.
	ErrNoSuchPlace = errors.New("no such place")
)

// Factory builds the agent registered as name for pool.
type Factory func(name string, pool *Pool) (Carrier, error)

// AgentFactory returns a Factory building single-payload agents with opts.
func AgentFactory(opts ...Option) Factory {
	return func(name string, pool *Pool) (Carrier, error) {
		return NewAgent(name, append(slices.Clone(opts), WithPool(pool))...)
	}
}

// BatchAgentFactory returns a Factory building batch agents with opts.
func BatchAgentFactory(opts ...Option) Factory {
	return func(name string, pool *Pool) (Carrier, error) {
		return NewBatchAgent(name, append(slices.Clone(opts), WithPool(pool))...)
	}
}

// PoolOption configures a pool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	size    int
	metrics telemetry.Metrics
}

// WithSize sets the number of agents. Zero sizes the pool from the memory
// limit.
func WithSize(n int) PoolOption {
	return func(o *poolOptions) {
		o.size = n
	}
}

// WithPoolMetrics sets the fleet metrics.
func WithPoolMetrics(m telemetry.Metrics) PoolOption {
	return func(o *poolOptions) {
		o.metrics = m
	}
}

// Pool lends idle agents to callers. Agents return themselves when their run
// ends.
type Pool struct {
	ns      *namespace.Namespace
	metrics telemetry.Metrics
	agents  []Carrier

	idle     chan Carrier
	active   atomic.Int64
	sprouts  atomic.Int64
	closed   atomic.Bool
	closeCh  chan struct{}
	closeOne sync.Once

	mu  sync.Mutex
	ctx context.Context
}

// NewPool builds the agents with factory and binds them and the pool into
// ns.
func NewPool(ns *namespace.Namespace, factory Factory, opts ...PoolOption) (*Pool, error) {
	if factory == nil {
		return nil, ErrNoFactory
	}
	o := poolOptions{metrics: telemetry.NoopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	size := ComputePoolSize(memoryLimit(), o.size)

	p := &Pool{
		ns:      ns,
		metrics: o.metrics,
		idle:    make(chan Carrier, size),
		closeCh: make(chan struct{}),
		ctx:     context.Background(),
	}

	for i := range size {
		name := fmt.Sprintf("%s-%02d", agent.NamePrefix, i+1)
		w, err := factory(name, p)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		if err := ns.Bind(name, w); err != nil {
			return nil, err
		}
		p.agents = append(p.agents, w)
	}
	if err := ns.Bind(PoolName, p); err != nil {
		return nil, err
	}

	logging.Info().
		Add(logging.Component("pool")).
		Add(logging.Count(size)).
		Msg("agent pool created")
	return p, nil
}

// ComputePoolSize returns override when positive, otherwise five agents per
// GiB of memory beyond the first plus twenty, kept within
// [MinPoolSize, MaxPoolSize].
func ComputePoolSize(memBytes uint64, override int) int {
	if override > 0 {
		return override
	}
	gb := int64(memBytes >> 30)
	size := (gb-1)*5 + 20
	if size > MaxPoolSize {
		size = MaxPoolSize
	}
	if size < MinPoolSize {
		size = MinPoolSize
	}
	return int(size)
}

func memoryLimit() uint64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return defaultMemoryBudget
	}
	return uint64(limit)
}

// Start starts every agent and makes it available.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	for _, w := range p.agents {
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", w.Name(), err)
		}
		p.idle <- w
	}
	return nil
}

// borrow waits for an idle agent.
func (p *Pool) borrow(ctx context.Context) (Carrier, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	select {
	case w := <-p.idle:
		p.active.Add(1)
		return w, nil
	case <-p.closeCh:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// giveBack returns an agent whose assignment failed.
func (p *Pool) giveBack(w Carrier) {
	p.active.Add(-1)
	if !p.closed.Load() && w.State() != agent.StateZombie {
		p.idle <- w
	}
}

// Dispatch hands p to an idle agent, waiting for one to return when all are
// busy.
func (p *Pool) Dispatch(ctx context.Context, pl payload.Payload, at place.Place) error {
	w, err := p.borrow(ctx)
	if err != nil {
		return err
	}
	if err := w.Go(pl, at); err != nil {
		p.giveBack(w)
		return err
	}
	p.metrics.RecordDispatch(ctx, 1)
	return nil
}

// DispatchBatch hands ps to one batch agent. Pools of single-payload agents
// dispatch each payload separately.
func (p *Pool) DispatchBatch(ctx context.Context, ps []payload.Payload, at place.Place) error {
	if len(ps) == 0 {
		return agent.ErrNoPayload
	}
	w, err := p.borrow(ctx)
	if err != nil {
		return err
	}
	bw, ok := w.(BatchCarrier)
	if !ok {
		p.giveBack(w)
		var errs []error
		for _, pl := range ps {
			errs = append(errs, p.Dispatch(ctx, pl, at))
		}
		return errors.Join(errs...)
	}
	if err := bw.GoBatch(ps, at); err != nil {
		p.giveBack(w)
		return err
	}
	p.metrics.RecordDispatch(ctx, len(ps))
	return nil
}

// Sprout dispatches ps from at in the background.
func (p *Pool) Sprout(ps []payload.Payload, at place.Place) {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()

	p.sprouts.Add(int64(len(ps)))
	for _, pl := range ps {
		go func() {
			defer p.sprouts.Add(-1)
			if err := p.Dispatch(ctx, pl, at); err != nil {
				logging.Warn().
					Add(logging.ShortName(pl.ShortName())).
					Add(logging.Place(at.Key())).
					Add(logging.ErrorField(err)).
					Msg("dropping sprouted payload")
			}
		}()
	}
}

// Arrive implements transport.Node: the relocated payloads continue at the
// target station on one of the pool's agents.
func (p *Pool) Arrive(ctx context.Context, r routing.Relocation) error {
	if len(r.Payloads) == 0 {
		return agent.ErrNoPayload
	}
	if r.Target == nil {
		return place.ErrNilPlace
	}
	at, err := namespace.LookupAs[place.Place](p.ns, r.Target.ServiceLocation)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoSuchPlace, err)
	}

	w, err := p.borrow(ctx)
	if err != nil {
		return err
	}
	if bw, ok := w.(BatchCarrier); ok {
		err = bw.ArriveBatch(r.Payloads, at, r.MoveErrors, r.Queue)
	} else {
		err = w.Arrive(r.Payloads[0], at, r.MoveErrors, r.Queue)
	}
	if err != nil {
		p.giveBack(w)
		return err
	}
	p.metrics.RecordDispatch(ctx, len(r.Payloads))

	if _, ok := w.(BatchCarrier); !ok {
		var errs []error
		for _, pl := range r.Payloads[1:] {
			errs = append(errs, p.arriveOne(ctx, pl, at, r))
		}
		return errors.Join(errs...)
	}
	return nil
}

func (p *Pool) arriveOne(ctx context.Context, pl payload.Payload, at place.Place, r routing.Relocation) error {
	w, err := p.borrow(ctx)
	if err != nil {
		return err
	}
	if err := w.Arrive(pl, at, r.MoveErrors, slices.Clone(r.Queue)); err != nil {
		p.giveBack(w)
		return err
	}
	p.metrics.RecordDispatch(ctx, 1)
	return nil
}

// ReturnAgent makes w available again.
func (p *Pool) ReturnAgent(w Carrier) {
	p.active.Add(-1)
	if p.closed.Load() {
		return
	}
	p.idle <- w
}

// Size returns the configured number of agents.
func (p *Pool) Size() int { return len(p.agents) }

// Idle returns the number of agents waiting for work.
func (p *Pool) Idle() int { return len(p.idle) }

// Active returns the number of agents carrying work.
func (p *Pool) Active() int { return int(p.active.Load()) }

// CurrentPoolSize returns idle plus active agents.
func (p *Pool) CurrentPoolSize() int { return p.Idle() + p.Active() }

// Agents returns the pooled agents in name order.
func (p *Pool) Agents() []Carrier { return slices.Clone(p.agents) }

// Wait blocks until no agent carries work and no sprout is pending.
func (p *Pool) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.Active() == 0 && p.sprouts.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// Shutdown kills every agent and unbinds the pool. Forced shutdown cancels
// running stations; otherwise each agent finishes its station first.
func (p *Pool) Shutdown(force bool) {
	p.closed.Store(true)
	p.closeOne.Do(func() { close(p.closeCh) })

	var wg sync.WaitGroup
	for _, w := range p.agents {
		if force {
			w.KillAsync()
		} else {
			wg.Go(w.Kill)
		}
	}
	wg.Wait()

	for _, w := range p.agents {
		p.ns.Unbind(w.Name())
	}
	p.ns.Unbind(PoolName)

	logging.Info().
		Add(logging.Component("pool")).
		Add(logging.Bool("force", force)).
		Msg("agent pool shut down")
}

var _ transport.Node = (*Pool)(nil)
