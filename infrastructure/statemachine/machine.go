// Package statemachine provides the statekit integration for agent and
// watchdog lifecycles.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/itinerary/domain/agent"
)

// Context carries lifecycle bookkeeping through the state machine.
type Context struct {
	Name        string
	Current     statekit.StateID
	Transitions int
}

// Agent lifecycle states as statekit IDs.
const (
	stateNotRunning statekit.StateID = statekit.StateID(agent.StateNotRunning)
	stateIdle       statekit.StateID = statekit.StateID(agent.StateIdle)
	stateBusy       statekit.StateID = statekit.StateID(agent.StateBusy)
	stateZombie     statekit.StateID = statekit.StateID(agent.StateZombie)
)

// Agent lifecycle events.
const (
	EventStart   statekit.EventType = "START"
	EventAssign  statekit.EventType = "ASSIGN"
	EventRelease statekit.EventType = "RELEASE"
	EventKill    statekit.EventType = "KILL"
)

// transitionTable maps a state and event to the target state. Interpreters
// consult it before sending since statekit ignores unknown events silently.
type transitionTable map[statekit.StateID]map[statekit.EventType]statekit.StateID

var agentTransitions = transitionTable{
	stateNotRunning: {EventStart: stateIdle, EventKill: stateZombie},
	stateIdle:       {EventAssign: stateBusy, EventKill: stateZombie},
	stateBusy:       {EventRelease: stateIdle, EventKill: stateZombie},
}

// NewAgentMachine creates the agent lifecycle statechart.
func NewAgentMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("agent").
		WithInitial(stateNotRunning).
		WithContext(&Context{}).
		WithAction("logEntry", logStateEntry).
		WithAction("recordTransition", recordTransition).
		WithGuard("alive", guardAlive).
		State(stateNotRunning).
			OnEntry("logEntry").
			On(EventStart).Target(stateIdle).Do("recordTransition").
			On(EventKill).Target(stateZombie).Do("recordTransition").
			Done().
		State(stateIdle).
			OnEntry("logEntry").
			On(EventAssign).Target(stateBusy).Guard("alive").Do("recordTransition").
			On(EventKill).Target(stateZombie).Do("recordTransition").
			Done().
		State(stateBusy).
			OnEntry("logEntry").
			On(EventRelease).Target(stateIdle).Guard("alive").Do("recordTransition").
			On(EventKill).Target(stateZombie).Do("recordTransition").
			Done().
		State(stateZombie).
			Final().
			OnEntry("logEntry").
			Done().
		Build()
}

// Watchdog lifecycle states.
const (
	SentinelIdle    statekit.StateID = "IDLE"
	SentinelRunning statekit.StateID = "RUNNING"
	SentinelStopped statekit.StateID = "STOPPED"
)

// Watchdog lifecycle events.
const (
	EventRun  statekit.EventType = "RUN"
	EventHalt statekit.EventType = "HALT"
)

var sentinelTransitions = transitionTable{
	SentinelIdle:    {EventRun: SentinelRunning, EventHalt: SentinelStopped},
	SentinelRunning: {EventHalt: SentinelStopped},
}

// NewSentinelMachine creates the watchdog lifecycle statechart.
func NewSentinelMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("sentinel").
		WithInitial(SentinelIdle).
		WithContext(&Context{}).
		WithAction("logEntry", logStateEntry).
		WithAction("recordTransition", recordTransition).
		State(SentinelIdle).
			OnEntry("logEntry").
			On(EventRun).Target(SentinelRunning).Do("recordTransition").
			On(EventHalt).Target(SentinelStopped).Do("recordTransition").
			Done().
		State(SentinelRunning).
			OnEntry("logEntry").
			On(EventHalt).Target(SentinelStopped).Do("recordTransition").
			Done().
		State(SentinelStopped).
			Final().
			OnEntry("logEntry").
			Done().
		Build()
}
