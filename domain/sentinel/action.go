// Package sentinel provides the rules and trackers of the fleet watchdog.
package sentinel

import (
	"fmt"
	"strings"
)

// Action is the escalation applied when a rule trips.
type Action string

// Escalation actions, mildest first.
const (
	// ActionNotify logs the stall.
	ActionNotify Action = "NOTIFY"
	// ActionRecover attempts recovery, which is not supported.
	ActionRecover Action = "RECOVER"
	// ActionStop requests a graceful shutdown.
	ActionStop Action = "STOP"
	// ActionKill requests a forced shutdown.
	ActionKill Action = "KILL"
	// ActionExit terminates the process.
	ActionExit Action = "EXIT"
)

// ParseAction parses an action name case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// IsValid returns true for a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionNotify, ActionRecover, ActionStop, ActionKill, ActionExit:
		return true
	default:
		return false
	}
}

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}
