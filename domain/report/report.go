// Package report provides the completion record written when an agent
// finishes a run, and the interface for persisting it.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report is the immutable record of one finished run.
type Report struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	RunID           string    `json:"run_id"`
	ShortName       string    `json:"short_name"`
	Forms           []string  `json:"forms"`
	History         []string  `json:"history"`
	ProcessingError string    `json:"processing_error,omitempty"`
	MoveErrors      int       `json:"move_errors"`
	Batch           int       `json:"batch"`
	CompletedAt     time.Time `json:"completed_at"`
}

// New returns a report with a fresh id stamped now.
func New(agentID, runID, shortName string) *Report {
	return &Report{
		ID:          uuid.New().String(),
		AgentID:     agentID,
		RunID:       runID,
		ShortName:   shortName,
		Batch:       1,
		CompletedAt: time.Now().UTC(),
	}
}

// HasErrors reports whether the run ended in error.
func (r *Report) HasErrors() bool {
	if r.ProcessingError != "" {
		return true
	}
	for _, f := range r.Forms {
		if f == "ERROR" {
			return true
		}
	}
	return false
}

// Matches reports whether r passes the filter's predicates. Limit is not
// applied here.
func (r *Report) Matches(f ListFilter) bool {
	if f.ShortNamePrefix != "" && !strings.HasPrefix(r.ShortName, f.ShortNamePrefix) {
		return false
	}
	if f.ErrorsOnly && !r.HasErrors() {
		return false
	}
	return true
}

// Select returns the reports passing f, most recent first, truncated to
// f.Limit.
func Select(reports []*Report, f ListFilter) []*Report {
	out := make([]*Report, 0, len(reports))
	for _, r := range reports {
		if r.Matches(f) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
