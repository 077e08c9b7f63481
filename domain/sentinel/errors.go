package sentinel

import "errors"

// Domain errors for watchdog rules.
var (
	// ErrUnknownAction indicates a rule names an unknown action.
	ErrUnknownAction = errors.New("unknown sentinel action")

	// ErrInvalidRule indicates a rule with out of range limits.
	ErrInvalidRule = errors.New("invalid sentinel rule")

	// ErrRecoverUnsupported is returned when a rule asks for recovery.
	ErrRecoverUnsupported = errors.New("sentinel recovery unavailable")

	// ErrNoShutdownHook indicates a STOP or KILL rule tripped without a
	// shutdown hook configured.
	ErrNoShutdownHook = errors.New("no shutdown hook configured")
)
