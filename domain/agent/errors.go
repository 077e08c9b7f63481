package agent

import "errors"

// Domain errors for agents.
var (
	// ErrInvalidTransition indicates a lifecycle transition that is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAgentBusy indicates work was handed to an agent already carrying a payload.
	ErrAgentBusy = errors.New("agent is busy")

	// ErrAgentTerminated indicates an operation on a terminated agent.
	ErrAgentTerminated = errors.New("agent terminated")

	// ErrAgentNotStarted indicates work was handed to an agent whose goroutine
	// is not running.
	ErrAgentNotStarted = errors.New("agent not started")

	// ErrNoPayload indicates an agent was started without a payload.
	ErrNoPayload = errors.New("no payload")

	// ErrInterrupted is the cancellation cause of an explicit interrupt.
	ErrInterrupted = errors.New("agent interrupted")

	// ErrDeadlineExceeded is the cancellation cause used by the execution
	// guard when a station overruns its allowed duration.
	ErrDeadlineExceeded = errors.New("station deadline exceeded")

	// ErrShutdown is the cancellation cause used when an agent is terminated
	// while a station runs.
	ErrShutdown = errors.New("agent shutting down")

	// ErrMoveFailed indicates relocation to a remote station failed.
	ErrMoveFailed = errors.New("move failed")
)
