// Package history provides the per-payload log of visited stations.
package history

import (
	"strings"

	"github.com/felixgeelhaar/itinerary/domain/directory"
)

// Entry is one visited station key. Coordinated entries are informational:
// they record a station reached through a coordinating station and are
// skipped when deciding where a payload was last routed.
type Entry struct {
	Key         string `json:"key"`
	Coordinated bool   `json:"coordinated,omitempty"`
}

// History is an ordered, append-only list of entries. It is not safe for
// concurrent use; a payload is owned by one agent at a time.
type History struct {
	entries []Entry
}

// New creates a history holding keys as non-coordinated entries.
func New(keys ...string) *History {
	h := &History{}
	h.Set(keys)
	return h
}

// Append records a visited station key.
func (h *History) Append(key string) {
	h.entries = append(h.entries, Entry{Key: key})
}

// AppendCoordinated records an informational station key.
func (h *History) AppendCoordinated(key string) {
	h.entries = append(h.entries, Entry{Key: key, Coordinated: true})
}

// Set replaces the whole history, used when a payload is adopted by a new
// carrier.
func (h *History) Set(keys []string) {
	h.entries = make([]Entry, 0, len(keys))
	for _, k := range keys {
		h.entries = append(h.entries, Entry{Key: k})
	}
}

// SetEntries replaces the whole history with entries.
func (h *History) SetEntries(entries []Entry) {
	h.entries = append([]Entry(nil), entries...)
}

// Entries returns a copy of every entry.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// Keys returns the recorded keys, optionally including coordinated ones.
func (h *History) Keys(includeCoordinated bool) []string {
	keys := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		if e.Coordinated && !includeCoordinated {
			continue
		}
		keys = append(keys, e.Key)
	}
	return keys
}

// Size returns the number of entries, optionally counting coordinated ones.
func (h *History) Size(includeCoordinated bool) int {
	if includeCoordinated {
		return len(h.entries)
	}
	n := 0
	for _, e := range h.entries {
		if !e.Coordinated {
			n++
		}
	}
	return n
}

// LastVisit returns the most recent non-coordinated entry.
func (h *History) LastVisit() (Entry, bool) {
	return h.visitFromEnd(0)
}

// PenultimateVisit returns the non-coordinated entry before LastVisit.
func (h *History) PenultimateVisit() (Entry, bool) {
	return h.visitFromEnd(1)
}

func (h *History) visitFromEnd(skip int) (Entry, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Coordinated {
			continue
		}
		if skip == 0 {
			return h.entries[i], true
		}
		skip--
	}
	return Entry{}, false
}

// BeforeStart reports whether the payload has not yet been routed: the
// history is empty or its last visit is a sprout marker.
func (h *History) BeforeStart() bool {
	last, ok := h.LastVisit()
	if !ok {
		return true
	}
	return directory.ServiceType(last.Key) == directory.SproutServiceType
}

// HasVisited reports whether any entry, ignoring expense, matches the glob
// pattern.
func (h *History) HasVisited(pattern string) bool {
	for _, e := range h.entries {
		if directory.Match(directory.RemoveExpense(e.Key), pattern) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (h *History) Clone() *History {
	return &History{entries: h.Entries()}
}

// String renders one entry per line, indenting coordinated entries.
func (h *History) String() string {
	var b strings.Builder
	for _, e := range h.entries {
		if e.Coordinated {
			b.WriteString("    ")
		}
		b.WriteString(e.Key)
		b.WriteByte('\n')
	}
	return b.String()
}
