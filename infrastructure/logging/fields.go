package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field adds structured data to an event.
type Field func(*bolt.Event) *bolt.Event

// Str adds key with a string value.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event { return e.Str(key, value) }
}

// Int adds key with an int value.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event { return e.Int(key, value) }
}

// Bool adds key with a bool value.
func Bool(key string, value bool) Field {
	return func(e *bolt.Event) *bolt.Event { return e.Bool(key, value) }
}

// Keys shared by every component, so log queries can join agent, run and
// station lines.

func AgentID(id string) Field     { return Str("agent_id", id) }
func RunID(id string) Field       { return Str("run_id", id) }
func Place(key string) Field      { return Str("place", key) }
func ShortName(name string) Field { return Str("payload", name) }
func Stage(name string) Field     { return Str("stage", name) }
func Form(form string) Field      { return Str("form", form) }
func DataID(id string) Field      { return Str("data_id", id) }
func Component(name string) Field { return Str("component", name) }
func Action(a string) Field       { return Str("action", a) }
func Count(n int) Field           { return Int("count", n) }
func MoveErrors(n int) Field      { return Int("move_errors", n) }

// Duration adds duration_ms.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event { return e.Int64("duration_ms", d.Milliseconds()) }
}

// ErrorField adds error unless err is nil.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}
