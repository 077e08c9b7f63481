// Package application runs payloads through stations with a pool of agents
// and watches the fleet for stalls.
package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/place"
	"github.com/felixgeelhaar/itinerary/domain/report"
	"github.com/felixgeelhaar/itinerary/domain/stage"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
	"github.com/felixgeelhaar/itinerary/infrastructure/namespace"
	"github.com/felixgeelhaar/itinerary/infrastructure/observability"
	"github.com/felixgeelhaar/itinerary/infrastructure/statemachine"
	"github.com/felixgeelhaar/itinerary/infrastructure/watcher"
)

// Errors returned by agents.
var (
	// ErrNoOracle indicates an agent was built without a routing oracle.
	ErrNoOracle = errors.New("oracle is required")

	// ErrStationPanic wraps a panic raised by a station.
	ErrStationPanic = errors.New("station panicked")
)

// safetyWake bounds how long an idle agent sleeps without a signal.
const safetyWake = 60 * time.Second

// History keys recorded when error handling discards forms.
const (
	errorBypassKey = "ERROR.SKIP.*.http://Previous_Error_Bypass$99999"
	skipSuffix     = ".SKIP.*.http://Previous_Error_Bypass$100"
)

const loopingMessage = "Agent stopped due to larger than max transform history size (looping?)"

// Carrier is an agent a pool can hand work to.
type Carrier interface {
	agent.Observed

	// Start spawns the agent goroutine.
	Start(ctx context.Context) error

	// Go routes p starting from the directory view of at.
	Go(p payload.Payload, at place.Place) error

	// Arrive continues a relocated run by processing p at at first.
	Arrive(p payload.Payload, at place.Place, moveErrors int, queue []*directory.Entry) error

	// Interrupt cancels the running station invocation.
	Interrupt()

	// Kill stops the agent after the running station returns and waits
	// for the goroutine to exit.
	Kill()

	// KillAsync cancels the running station and returns immediately.
	KillAsync()

	// IsIdle reports whether the agent can take work.
	IsIdle() bool

	// State returns the lifecycle state.
	State() agent.State
}

// BatchCarrier is a Carrier that accepts several payloads at once.
type BatchCarrier interface {
	Carrier
	GoBatch(ps []payload.Payload, at place.Place) error
	ArriveBatch(ps []payload.Payload, at place.Place, moveErrors int, queue []*directory.Entry) error
}

// core holds what single and batch agents share: the lifecycle, the
// goroutine, the itinerary queue and the observed status.
type core struct {
	name string
	cfg  AgentConfig
	lc   *statemachine.Lifecycle
	self Carrier

	signal  chan struct{}
	done    chan struct{}
	started atomic.Bool
	killed  atomic.Bool
	inUse   atomic.Bool

	// mu serializes assignment and guards the stop func and the cancel
	// func of the running invocation.
	mu     sync.Mutex
	stop   context.CancelCauseFunc
	cancel context.CancelCauseFunc

	status    sync.RWMutex
	agentID   string
	runID     string
	shortName string
	count     int
	lastPlace string

	pending atomic.Pointer[[]*directory.Entry]

	// Owned by the agent goroutine while in use.
	arrival      place.Place
	processFirst bool
	moveErrors   int
	queue        []*directory.Entry
	visited      map[string]struct{}
}

func newCore(name string, opts []Option) (*core, error) {
	var cfg AgentConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Oracle == nil {
		return nil, ErrNoOracle
	}
	cfg.applyDefaults()

	lc, err := statemachine.NewLifecycle(name)
	if err != nil {
		return nil, err
	}

	c := &core{
		name:    name,
		cfg:     cfg,
		lc:      lc,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		agentID: agent.NoAgentID,
		visited: make(map[string]struct{}),
	}
	return c, nil
}

// Name returns the registered agent name.
func (c *core) Name() string { return c.name }

// AgentID returns the id of the current run's carrier.
func (c *core) AgentID() string {
	c.status.RLock()
	defer c.status.RUnlock()
	return c.agentID
}

// RunID returns the id of the current run.
func (c *core) RunID() string {
	c.status.RLock()
	defer c.status.RUnlock()
	return c.runID
}

// InUse reports whether the agent is carrying work.
func (c *core) InUse() bool { return c.inUse.Load() }

// IsInUse is an alias of InUse.
func (c *core) IsInUse() bool { return c.inUse.Load() }

// IsIdle reports whether the agent is started, alive and not carrying work.
func (c *core) IsIdle() bool {
	return c.lc.State() == agent.StateIdle && !c.inUse.Load()
}

// State returns the lifecycle state.
func (c *core) State() agent.State { return c.lc.State() }

// LastPlaceProcessed returns the key of the last station invoked.
func (c *core) LastPlaceProcessed() string {
	c.status.RLock()
	defer c.status.RUnlock()
	return c.lastPlace
}

// PendingItinerary returns a copy of the queued itinerary entries.
func (c *core) PendingItinerary() []*directory.Entry {
	if q := c.pending.Load(); q != nil {
		return slices.Clone(*q)
	}
	return nil
}

// MoveErrors returns the failed relocations of the current run.
func (c *core) MoveErrors() int {
	c.status.RLock()
	defer c.status.RUnlock()
	return c.moveErrors
}

// Status returns a one-line description of what the agent is doing.
func (c *core) Status() string {
	if c.lc.IsTerminal() {
		return agent.StatusClosed
	}
	if !c.inUse.Load() {
		return agent.StatusIdle
	}
	c.status.RLock()
	defer c.status.RUnlock()
	sn := c.shortName
	if sn == "" {
		sn = agent.StatusMissingPayload
	}
	return fmt.Sprintf("%s(%d) - %s", sn, c.count, c.lastPlace)
}

func (c *core) start(ctx context.Context, control func(context.Context)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lc.Start(); err != nil {
		return err
	}
	runCtx, stop := context.WithCancelCause(ctx)
	c.stop = stop
	c.started.Store(true)
	go c.run(runCtx, control)
	return nil
}

func (c *core) run(ctx context.Context, control func(context.Context)) {
	defer close(c.done)

	timer := time.NewTimer(safetyWake)
	defer timer.Stop()

	for !c.killed.Load() {
		if !c.inUse.Load() {
			select {
			case <-ctx.Done():
				c.killed.Store(true)
				_ = c.lc.Kill()
				return
			case <-c.signal:
			case <-timer.C:
			}
			timer.Reset(safetyWake)
		}
		if c.killed.Load() {
			return
		}
		if c.inUse.Load() {
			c.work(ctx, control)
		}
	}
}

func (c *core) work(ctx context.Context, control func(context.Context)) {
	c.cfg.Metrics.IncrementBusy(ctx)
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Add(logging.AgentID(c.AgentID())).
				Add(logging.ErrorField(fmt.Errorf("%v", r))).
				Msg("problem with agent")
		}
		c.cfg.Metrics.DecrementBusy(ctx)
		if !c.killed.Load() {
			c.agentReturn()
		}
	}()

	logging.Debug().
		Add(logging.AgentID(c.AgentID())).
		Add(logging.RunID(c.RunID())).
		Msg("starting work")
	control(ctx)
}

// claim moves the agent to busy and starts a new run. Callers hold c.mu.
func (c *core) claim(shortName string, count int, at place.Place, processFirst bool, moveErrors int, queue []*directory.Entry) error {
	if err := c.lc.Assign(); err != nil {
		return err
	}

	c.resetRun()
	c.arrival = at
	c.processFirst = processFirst
	c.queue = append(c.queue, queue...)
	c.publishQueue()

	c.status.Lock()
	c.agentID = fmt.Sprintf("Agent-%s-%s", uuid.New().String()[:8], shortName)
	c.runID = uuid.New().String()
	c.shortName = shortName
	c.count = count
	c.moveErrors = moveErrors
	c.status.Unlock()
	return nil
}

// wake marks the agent in use and signals its goroutine.
func (c *core) wake() {
	c.inUse.Store(true)
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *core) resetRun() {
	c.arrival = nil
	c.processFirst = false
	c.queue = nil
	clear(c.visited)
	c.publishQueue()

	c.status.Lock()
	c.agentID = agent.NoAgentID
	c.runID = ""
	c.shortName = ""
	c.count = 0
	c.lastPlace = ""
	c.moveErrors = 0
	c.status.Unlock()
}

// agentReturn releases the lifecycle and clears inUse under c.mu, the lock
// claim holds, so a new claim cannot land between the two.
func (c *core) agentReturn() {
	c.mu.Lock()
	c.resetRun()
	if err := c.lc.Release(); err != nil {
		logging.Warn().
			Add(logging.Component(c.name)).
			Add(logging.ErrorField(err)).
			Msg("release agent")
	}
	c.inUse.Store(false)
	c.mu.Unlock()

	if c.cfg.Pool != nil {
		c.cfg.Pool.ReturnAgent(c.self)
	}
}

// Interrupt cancels the running station invocation with agent.ErrInterrupted.
func (c *core) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel(agent.ErrInterrupted)
	}
}

// Kill stops the agent once the running station returns and waits for its
// goroutine to exit.
func (c *core) Kill() {
	c.killed.Store(true)
	_ = c.lc.Kill()
	select {
	case c.signal <- struct{}{}:
	default:
	}
	if c.started.Load() {
		<-c.done
	}
	c.mu.Lock()
	if c.stop != nil {
		c.stop(agent.ErrShutdown)
	}
	c.mu.Unlock()
}

// KillAsync cancels the running station with agent.ErrShutdown and returns
// without waiting.
func (c *core) KillAsync() {
	c.killed.Store(true)
	_ = c.lc.Kill()
	c.mu.Lock()
	if c.stop != nil {
		c.stop(agent.ErrShutdown)
	}
	c.mu.Unlock()
}

func (c *core) setLastPlace(key string) {
	c.status.Lock()
	c.lastPlace = key
	c.status.Unlock()
}

func (c *core) setCount(n int) {
	c.status.Lock()
	c.count = n
	c.status.Unlock()
}

func (c *core) setShortName(name string) {
	c.status.Lock()
	c.shortName = name
	c.status.Unlock()
}

func (c *core) publishQueue() {
	q := slices.Clone(c.queue)
	c.pending.Store(&q)
}

func (c *core) dequeue() *directory.Entry {
	if len(c.queue) == 0 {
		return nil
	}
	e := c.queue[0]
	c.queue = c.queue[1:]
	c.publishQueue()
	return e
}

// localPlace resolves the station serving e in this process.
func (c *core) localPlace(e *directory.Entry) (place.Place, bool) {
	if c.cfg.Namespace == nil {
		return nil, false
	}
	p, err := namespace.LookupAs[place.Place](c.cfg.Namespace, e.ServiceLocation)
	if err != nil {
		return nil, false
	}
	return p, true
}

// invoke runs fn as one guarded, traced invocation of at over batch. Faults
// are folded into payload state; sprouts are returned without nils.
func (c *core) invoke(ctx context.Context, at place.Place, batch []payload.Payload, fn func(context.Context) ([]payload.Payload, error)) []payload.Payload {
	gctx, handle := c.cfg.Guard.Starting(ctx, c.name, at, len(batch))
	ictx, cancel := context.WithCancelCause(gctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.setLastPlace(at.Key())
	if c.moveErrors > 0 {
		for _, p := range batch {
			p.SetParameter(payload.ParamMoveErrors, fmt.Sprint(c.moveErrors))
		}
	}

	sctx, span := observability.StartPlaceSpan(ictx, at.Key(), c.AgentID(), len(batch))
	sprouts, err := call(sctx, fn)
	observability.EndSpan(span, err)

	if c.moveErrors > 0 {
		for _, p := range batch {
			p.DeleteParameter(payload.ParamMoveErrors)
		}
	}

	if err != nil {
		logging.Warn().
			Add(logging.AgentID(c.AgentID())).
			Add(logging.Place(at.Key())).
			Add(logging.Count(len(batch))).
			Add(logging.ErrorField(err)).
			Msg("place caught problem")
		for _, p := range batch {
			p.AddProcessingError(fmt.Sprintf("atPlace(%s): %v", at.Key(), err))
			p.ReplaceCurrentForm(payload.FormError)
		}
		c.cfg.Metrics.RecordStationFault(ctx, at.Name())
	}

	if !place.AllowsEmptyForm(at) {
		for _, p := range batch {
			if p.CurrentFormSize() == 0 {
				logging.Error().
					Add(logging.Place(at.Key())).
					Add(logging.ShortName(p.ShortName())).
					Msg("place left an empty form stack, changing it to ERROR")
				p.AddProcessingError(at.Key() + " left an empty form stack")
				p.PushCurrentForm(payload.FormError)
			}
		}
	}

	handle.Close()
	c.checkInterrupt(ictx, at)

	c.mu.Lock()
	c.cancel = nil
	c.mu.Unlock()
	cancel(nil)

	out := sprouts[:0]
	for _, s := range sprouts {
		if s == nil {
			logging.Error().
				Add(logging.Place(at.Key())).
				Msg("place violated contract and returned null")
			continue
		}
		out = append(out, s)
	}
	return out
}

func call(ctx context.Context, fn func(context.Context) ([]payload.Payload, error)) (out []payload.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStationPanic, r)
		}
	}()
	return fn(ctx)
}

func (c *core) checkInterrupt(ctx context.Context, at place.Place) {
	cause := context.Cause(ctx)
	switch {
	case cause == nil, errors.Is(cause, watcher.ErrReleased):
	case errors.Is(cause, agent.ErrDeadlineExceeded):
		logging.Warn().
			Add(logging.AgentID(c.AgentID())).
			Add(logging.Place(at.Key())).
			Msg("place was interrupted by the resource watcher, adjust time out")
	case errors.Is(cause, agent.ErrShutdown):
		logging.Info().
			Add(logging.AgentID(c.AgentID())).
			Add(logging.Place(at.Key())).
			Msg("place interrupted during shutdown")
	default:
		logging.Info().
			Add(logging.AgentID(c.AgentID())).
			Add(logging.Place(at.Key())).
			Add(logging.ErrorField(cause)).
			Msg("place interrupted")
	}
}

// nextKey picks the next station for p, or nil when routing is finished.
func (c *core) nextKey(ctx context.Context, p payload.Payload) *directory.Entry {
	if p.History().Size(false) > c.cfg.MaxItinerarySteps && p.CurrentForm() != payload.FormError {
		p.ReplaceCurrentForm(payload.FormError)
		p.AddProcessingError(loopingMessage)
	}

	if e := c.dequeue(); e != nil {
		return e
	}

	if p.CurrentFormSize() < 1 {
		return nil
	}

	cur := p.CurrentForm()
	if strings.HasPrefix(cur, payload.FormDone) {
		return nil
	}

	if cur == payload.FormError {
		if p.CurrentFormSize() > 1 && p.CurrentFormAt(1) == payload.FormError {
			logging.Error().
				Add(logging.ShortName(p.ShortName())).
				Msg("ERROR handling place produced an error, purging all current forms")
			for p.CurrentFormSize() > 0 {
				p.PopCurrentForm()
			}
			p.AppendHistory(errorBypassKey, false)
		} else {
			purgeNonFinalForms(p)
		}
	}

	if directory.IsComplete(cur) {
		if e, err := directory.ParseEntry(cur); err == nil {
			return e
		}
	}

	last, _ := p.LastPlaceVisited()
	stages := c.cfg.Stages
	lastType := stages.Name(0)
	if last != nil {
		lastType = last.ServiceType
	}
	start := stages.Index(lastType)
	if last != nil && start != 0 && last.ServiceType == stage.Transform {
		start = 0
	}

	forms := p.AllCurrentForms()
	for st := start; st < stages.Len(); st++ {
		stageName := stages.Name(st)
		for _, form := range forms {
			if directory.IsComplete(form) {
				if directory.ServiceType(form) == stageName {
					if e, err := directory.ParseEntry(form); err == nil {
						p.PullFormToTop(form)
						return e
					}
				}
				continue
			}

			e := c.fromDirectory(ctx, directory.DataID(form, stageName), p, last)
			if e != nil && stages.IsParallel(st) {
				for {
					rejected := false
					if len(c.visited) == 0 || stageName == lastType {
						if _, seen := c.visited[e.ServiceName]; seen {
							last = e.WithDataType(form)
							rejected = true
							e = c.fromDirectory(ctx, last.DataID(), p, last)
						} else {
							c.visited[e.ServiceName] = struct{}{}
						}
					} else {
						clear(c.visited)
					}
					if !rejected || e == nil {
						break
					}
				}
			}

			if e != nil {
				p.PullFormToTop(form)
				return e
			}
		}
	}
	return nil
}

// fromDirectory queues every entry the oracle returns for dataID and pops
// the first.
func (c *core) fromDirectory(ctx context.Context, dataID string, p payload.Payload, last *directory.Entry) *directory.Entry {
	entries, err := c.cfg.Oracle.NextKeys(ctx, dataID, p, last)
	if err != nil {
		logging.Warn().
			Add(logging.DataID(dataID)).
			Add(logging.ShortName(p.ShortName())).
			Add(logging.ErrorField(err)).
			Msg("cannot get key")
	}
	for _, e := range entries {
		if e != nil {
			c.queue = append(c.queue, e)
		}
	}
	return c.dequeue()
}

// setParallelTrackingFor rebuilds the visit set from the tail of p's history
// while the tail stays in one parallel stage.
func (c *core) setParallelTrackingFor(p payload.Payload) {
	clear(c.visited)

	keys := p.History().Keys(true)
	lastParallel := -1
	for i := len(keys) - 1; i >= 0; i-- {
		t := c.cfg.Stages.Index(directory.ServiceType(keys[i]))
		if lastParallel == -1 && c.cfg.Stages.IsParallel(t) {
			lastParallel = t
		}
		if t != lastParallel {
			break
		}
		c.visited[directory.ServiceName(keys[i])] = struct{}{}
	}
}

// move hands payloads to the host of target.
func (c *core) move(ctx context.Context, payloads []payload.Payload, target *directory.Entry) error {
	r := Relocation{
		AgentID:    c.AgentID(),
		Payloads:   payloads,
		Target:     target,
		MoveErrors: c.moveErrors,
		Queue:      slices.Clone(c.queue),
	}
	if err := c.cfg.Mover.Move(ctx, r); err != nil {
		c.cfg.Metrics.RecordMoveFailure(ctx, r.Host())
		return err
	}
	c.queue = nil
	c.publishQueue()
	return nil
}

// moveFailed counts a failed relocation to target and reports whether the
// run must stop. A stopped run leaves the failure on every carried payload.
func (c *core) moveFailed(p payload.Payload, target *directory.Entry, err error, carried []payload.Payload) bool {
	c.status.Lock()
	c.moveErrors++
	n := c.moveErrors
	c.status.Unlock()

	logging.Warn().
		Add(logging.AgentID(c.AgentID())).
		Add(logging.MoveErrors(n)).
		Add(logging.ErrorField(err)).
		Msg("move failed")

	if n > c.cfg.MaxMoveErrors || p.History().Size(true) > c.cfg.MaxItinerarySteps {
		logging.Error().
			Add(logging.AgentID(c.AgentID())).
			Add(logging.MoveErrors(n)).
			Msg("too many move errors, giving up")
		msg := fmt.Sprintf("move(%s) failed %d times: %v", target.FullKey(), n, err)
		for _, q := range carried {
			q.AddProcessingError(msg)
		}
		return true
	}
	return false
}

// complete logs and reports the end of a run for every payload.
func (c *core) complete(ctx context.Context, payloads []payload.Payload) {
	for _, p := range payloads {
		steps := p.History().Size(true)
		c.cfg.Metrics.RecordItinerarySteps(ctx, steps)
		logging.Info().
			Add(logging.AgentID(c.AgentID())).
			Add(logging.ShortName(p.ShortName())).
			Add(logging.Form(p.CurrentForm())).
			Add(logging.Count(steps)).
			Msg("agent completed")
	}

	if c.cfg.Store == nil {
		return
	}
	for _, p := range payloads {
		r := report.New(c.AgentID(), c.RunID(), p.ShortName())
		r.Forms = p.AllCurrentForms()
		r.History = p.History().Keys(true)
		r.ProcessingError = p.ProcessingError()
		r.MoveErrors = c.moveErrors
		r.Batch = len(payloads)
		if err := c.cfg.Store.Save(ctx, r); err != nil {
			logging.Warn().
				Add(logging.AgentID(r.AgentID)).
				Add(logging.ShortName(r.ShortName)).
				Add(logging.ErrorField(err)).
				Msg("save report")
		}
	}
}

// recordHistory appends the key p is routed to at e.
func recordHistory(e *directory.Entry, p payload.Payload) {
	cf := p.CurrentForm()

	var key string
	switch {
	case !directory.IsComplete(cf):
		key = e.WithDataType(cf).FullKey()
	case !p.BeforeStart():
		key = cf
		if last, ok := p.LastPlaceVisited(); ok {
			exp := last.Expense
			if directory.HostURL(cf) != last.HostURL() && exp > directory.RemoteExpenseOverhead {
				exp -= directory.RemoteExpenseOverhead
			}
			if exp > 0 {
				key = directory.AddExpense(cf, exp)
			}
		}
	default:
		key = e.FullKey()
	}

	p.AppendHistory(key, false)
}

// purgeNonFinalForms drops every form but ERROR, logging a bypass key for
// each.
func purgeNonFinalForms(p payload.Payload) {
	for i := 0; i < p.CurrentFormSize(); {
		f := p.CurrentFormAt(i)
		if f == payload.FormError {
			i++
			continue
		}
		p.AppendHistory(f+skipSuffix, false)
		p.DeleteCurrentFormAt(i)
	}
}

// degrade rewrites the form stack of p after a failed relocation.
func degrade(p payload.Payload) {
	if !directory.IsComplete(p.CurrentForm()) {
		purgeNonFinalForms(p)
		p.ReplaceCurrentForm(payload.FormError)
		return
	}
	p.PopCurrentForm()
	if p.CurrentFormSize() == 0 {
		p.ReplaceCurrentForm(payload.FormError)
	}
}

func serviceType(at place.Place) string {
	return directory.ServiceType(at.Key())
}
