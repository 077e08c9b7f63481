// Package logging holds the process logger, a bolt logger, and the typed
// fields attached to its events.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/felixgeelhaar/bolt/v3"
)

var current atomic.Pointer[bolt.Logger]

// Config selects the level, the encoding and the destination of a logger.
// Format is "json" or "console"; anything else means console.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

var levels = map[string]bolt.Level{
	"trace": bolt.TRACE,
	"debug": bolt.DEBUG,
	"info":  bolt.INFO,
	"warn":  bolt.WARN,
	"error": bolt.ERROR,
}

// parseLevel falls back to info for unknown names.
func parseLevel(name string) bolt.Level {
	if l, ok := levels[strings.ToLower(name)]; ok {
		return l
	}
	return bolt.INFO
}

// New builds a logger without installing it.
func New(c Config) *bolt.Logger {
	w := c.Output
	if w == nil {
		w = os.Stderr
	}
	h := bolt.Handler(bolt.NewConsoleHandler(w))
	if c.Format == "json" {
		h = bolt.NewJSONHandler(w)
	}
	return bolt.New(h).SetLevel(parseLevel(c.Level))
}

// Init installs a logger built from c.
func Init(c Config) { current.Store(New(c)) }

// SetLogger installs l.
func SetLogger(l *bolt.Logger) { current.Store(l) }

// Get returns the installed logger. Before Init it is an info level console
// logger on stderr.
func Get() *bolt.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	current.CompareAndSwap(nil, New(Config{}))
	return current.Load()
}

// SetLevel changes the level of the installed logger.
func SetLevel(name string) { Get().SetLevel(parseLevel(name)) }

// Event is a pending log line that fields are added to.
type Event struct {
	e *bolt.Event
}

// Add applies f and returns the event for chaining.
func (ev *Event) Add(f Field) *Event {
	ev.e = f(ev.e)
	return ev
}

// Msg writes the line.
func (ev *Event) Msg(msg string) { ev.e.Msg(msg) }

func Trace() *Event { return &Event{e: Get().Trace()} }
func Debug() *Event { return &Event{e: Get().Debug()} }
func Info() *Event  { return &Event{e: Get().Info()} }
func Warn() *Event  { return &Event{e: Get().Warn()} }
func Error() *Event { return &Event{e: Get().Error()} }
