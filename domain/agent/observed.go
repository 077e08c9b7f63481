package agent

// Status strings reported by agents that are not carrying work.
const (
	StatusIdle           = "Idle"
	StatusClosed         = "Closed"
	StatusMissingPayload = "Missing payload"
)

// NoAgentID is the agent id reported between runs.
const NoAgentID = "No_AgentID_Set"

// NamePrefix prefixes the registered name of every pooled agent.
const NamePrefix = "MobileAgent"

// Observed is the read-only view of an agent sampled by the fleet watchdog.
// Implementations must be safe to call from any goroutine; values may be
// one update behind.
type Observed interface {
	// Name returns the registered agent name.
	Name() string

	// AgentID returns the id of the current run's carrier.
	AgentID() string

	// RunID returns an identifier that changes with every payload handed
	// to the agent.
	RunID() string

	// InUse reports whether the agent is carrying work.
	InUse() bool

	// LastPlaceProcessed returns the key of the last station invoked, or "".
	LastPlaceProcessed() string

	// Status returns a human readable one-line status.
	Status() string
}
