package sentinel

import (
	"strings"
	"time"
)

// Tracker follows how long one agent has been observed at one station.
type Tracker struct {
	AgentName string
	AgentID   string
	RunID     string
	PlaceName string
	Elapsed   time.Duration

	// fresh is set after a reset so the next increment starts the clock.
	fresh bool
}

// NewTracker returns a cleared tracker for agentName.
func NewTracker(agentName string) *Tracker {
	return &Tracker{AgentName: agentName, fresh: true}
}

// Observe records a sample. The tracker is reset when the place or the run
// changed since the previous sample.
func (t *Tracker) Observe(agentID, runID, placeName string) {
	if placeName != t.PlaceName || runID != t.RunID {
		t.AgentID = agentID
		t.RunID = runID
		t.PlaceName = placeName
		t.Reset()
	}
}

// Reset restarts the clock.
func (t *Tracker) Reset() {
	t.Elapsed = 0
	t.fresh = true
}

// Increment advances the clock by interval. The first increment after a
// reset only starts it.
func (t *Tracker) Increment(interval time.Duration) {
	if t.fresh {
		t.fresh = false
		return
	}
	t.Elapsed += interval
}

// Clear forgets the observed run.
func (t *Tracker) Clear() {
	t.AgentID = ""
	t.RunID = ""
	t.PlaceName = ""
	t.Reset()
}

// PlaceSimpleName returns the station simple name of the tracked place.
func (t *Tracker) PlaceSimpleName() string {
	return PlaceSimpleName(t.PlaceName)
}

// PlaceSimpleName returns the text after the last slash of a station key,
// without the expense suffix.
func PlaceSimpleName(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return ""
	}
	name := key[i+1:]
	if j := strings.Index(name, "$"); j > -1 {
		name = name[:j]
	}
	return name
}

// PlaceStats summarizes the agents found at one station in a cycle.
type PlaceStats struct {
	Place      string
	Count      int
	MaxElapsed time.Duration
	MinElapsed time.Duration
}

// Update folds one agent's elapsed time into the stats.
func (s *PlaceStats) Update(elapsed time.Duration) {
	if s.Count == 0 || elapsed < s.MinElapsed {
		s.MinElapsed = elapsed
	}
	if elapsed > s.MaxElapsed {
		s.MaxElapsed = elapsed
	}
	s.Count++
}
