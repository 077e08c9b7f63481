package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// TransitionPayload carries the endpoints of a transition event.
type TransitionPayload struct {
	From statekit.StateID
	To   statekit.StateID
}

// logStateEntry logs when entering a state.
// In statekit, actions receive a pointer to the context. Since our context is *Context,
// actions receive **Context.
func logStateEntry(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	if payload, ok := event.Payload.(TransitionPayload); ok {
		c.Current = payload.To
	}

	logging.Debug().
		Add(logging.Component("statemachine")).
		Add(logging.Str("name", c.Name)).
		Add(logging.Str("state", string(c.Current))).
		Msg("entered state")
}

// recordTransition counts the transition and tracks the target state.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	c.Transitions++
	if payload, ok := event.Payload.(TransitionPayload); ok {
		c.Current = payload.To
	}
}
