package statemachine

import "github.com/felixgeelhaar/statekit"

// guardAlive rejects work transitions once a kill has been recorded.
// Note: In statekit, guards receive the context by value. Since our context is *Context,
// the guard receives *Context directly.
func guardAlive(ctx *Context, _ statekit.Event) bool {
	if ctx == nil {
		return false
	}
	return ctx.Current != stateZombie
}
