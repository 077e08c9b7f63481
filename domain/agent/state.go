// Package agent provides the lifecycle vocabulary shared by agents, the pool
// and the fleet watchdog.
package agent

// State is the lifecycle state of a reusable agent.
type State string

// Lifecycle states. An agent starts NOT_RUNNING, alternates between IDLE and
// BUSY, and ends as ZOMBIE once terminated.
const (
	StateNotRunning State = "NOT_RUNNING"
	StateIdle       State = "IDLE"
	StateBusy       State = "BUSY"
	StateZombie     State = "ZOMBIE"
)

// IsTerminal returns true once the agent can never run again.
func (s State) IsTerminal() bool {
	return s == StateZombie
}

// IsValid returns true if the state is a recognized lifecycle state.
func (s State) IsValid() bool {
	switch s {
	case StateNotRunning, StateIdle, StateBusy, StateZombie:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// AllStates returns all lifecycle states in lifecycle order.
func AllStates() []State {
	return []State{StateNotRunning, StateIdle, StateBusy, StateZombie}
}
