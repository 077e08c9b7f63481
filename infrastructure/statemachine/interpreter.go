package statemachine

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/itinerary/domain/agent"
)

// Interpreter wraps the statekit interpreter with a transition table check.
// It is safe for concurrent use.
type Interpreter struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*Context]
	ctx    *Context
	table  transitionTable
}

func newInterpreter(machine *statekit.MachineConfig[*Context], table transitionTable, name string) *Interpreter {
	ctx := &Context{Name: name}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	interp.Start()
	ctx.Current = interp.State().Value

	return &Interpreter{
		interp: interp,
		ctx:    ctx,
		table:  table,
	}
}

// Fire sends event if the current state allows it.
func (i *Interpreter) Fire(event statekit.EventType) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.interp.State().Value
	to, ok := i.table[from][event]
	if !ok {
		return fmt.Errorf("%w: %s in state %s", agent.ErrInvalidTransition, event, from)
	}

	i.interp.Send(statekit.Event{
		Type:    event,
		Payload: TransitionPayload{From: from, To: to},
	})

	if got := i.interp.State().Value; got != to {
		return fmt.Errorf("%w: %s in state %s rejected", agent.ErrInvalidTransition, event, from)
	}
	return nil
}

// Can reports whether event is allowed in the current state.
func (i *Interpreter) Can(event statekit.EventType) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.table[i.interp.State().Value][event]
	return ok
}

// Current returns the current state ID.
func (i *Interpreter) Current() statekit.StateID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.interp.State().Value
}

// Matches checks if the current state matches the given state ID.
func (i *Interpreter) Matches(id statekit.StateID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.interp.Matches(id)
}

// IsTerminal returns true if the interpreter is in a final state.
func (i *Interpreter) IsTerminal() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.interp.Done()
}

// Transitions returns the number of transitions taken.
func (i *Interpreter) Transitions() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ctx.Transitions
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interp.Stop()
}

// Lifecycle drives an agent through NOT_RUNNING, IDLE, BUSY and ZOMBIE.
type Lifecycle struct {
	*Interpreter
}

// NewLifecycle creates a started lifecycle for the named agent.
func NewLifecycle(name string) (*Lifecycle, error) {
	machine, err := NewAgentMachine()
	if err != nil {
		return nil, fmt.Errorf("build agent machine: %w", err)
	}
	return &Lifecycle{Interpreter: newInterpreter(machine, agentTransitions, name)}, nil
}

// State returns the current agent state.
func (l *Lifecycle) State() agent.State {
	return agent.State(l.Current())
}

// Start moves NOT_RUNNING to IDLE.
func (l *Lifecycle) Start() error { return l.Fire(EventStart) }

// Assign moves IDLE to BUSY.
func (l *Lifecycle) Assign() error {
	if l.IsTerminal() {
		return agent.ErrAgentTerminated
	}
	if l.Matches(stateBusy) {
		return agent.ErrAgentBusy
	}
	if l.Matches(stateNotRunning) {
		return agent.ErrAgentNotStarted
	}
	return l.Fire(EventAssign)
}

// Release moves BUSY to IDLE.
func (l *Lifecycle) Release() error { return l.Fire(EventRelease) }

// Kill moves any live state to ZOMBIE. Killing a zombie is a no-op.
func (l *Lifecycle) Kill() error {
	if l.IsTerminal() {
		return nil
	}
	return l.Fire(EventKill)
}

// SentinelLifecycle drives the watchdog through IDLE, RUNNING and STOPPED.
type SentinelLifecycle struct {
	*Interpreter
}

// NewSentinelLifecycle creates a started watchdog lifecycle.
func NewSentinelLifecycle() (*SentinelLifecycle, error) {
	machine, err := NewSentinelMachine()
	if err != nil {
		return nil, fmt.Errorf("build sentinel machine: %w", err)
	}
	return &SentinelLifecycle{Interpreter: newInterpreter(machine, sentinelTransitions, "sentinel")}, nil
}

// Run moves IDLE to RUNNING.
func (s *SentinelLifecycle) Run() error { return s.Fire(EventRun) }

// Halt moves to STOPPED. Halting a stopped watchdog is a no-op.
func (s *SentinelLifecycle) Halt() error {
	if s.IsTerminal() {
		return nil
	}
	return s.Fire(EventHalt)
}

// Running reports whether the watchdog is polling.
func (s *SentinelLifecycle) Running() bool {
	return s.Matches(SentinelRunning)
}
