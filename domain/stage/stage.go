// Package stage provides the ordered table of processing phases a payload
// moves through.
package stage

import (
	"errors"
	"fmt"
	"strings"
)

// Undefined is returned by Table.Name for an index outside the table.
const Undefined = "UNDEFINED"

// Standard stage names.
const (
	Study         = "STUDY"
	ID            = "ID"
	Coordinate    = "COORDINATE"
	PreTransform  = "PRETRANSFORM"
	Transform     = "TRANSFORM"
	PostTransform = "POSTTRANSFORM"
	Analyze       = "ANALYZE"
	Verify        = "VERIFY"
	IO            = "IO"
	Review        = "REVIEW"
)

// Errors returned when building a table.
var (
	// ErrEmptyTable indicates a table was built without stages.
	ErrEmptyTable = errors.New("stage table has no stages")

	// ErrDuplicateStage indicates two stages share a name.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrBlankStage indicates a stage without a name.
	ErrBlankStage = errors.New("blank stage name")
)

// Stage is a named processing phase.
type Stage struct {
	Name string
	// Parallel marks a stage where every matching service is visited once
	// per contiguous run instead of only the cheapest one.
	Parallel bool
}

// Table is an immutable ordered list of stages. Index 0 is the entry stage.
type Table struct {
	stages []Stage
	index  map[string]int
}

var defaultTable = mustNew(
	Stage{Name: Study},
	Stage{Name: ID},
	Stage{Name: Coordinate},
	Stage{Name: PreTransform, Parallel: true},
	Stage{Name: Transform},
	Stage{Name: PostTransform, Parallel: true},
	Stage{Name: Analyze, Parallel: true},
	Stage{Name: Verify},
	Stage{Name: IO},
	Stage{Name: Review},
)

// Default returns the standard stage table.
func Default() *Table {
	return defaultTable
}

// New builds a table from the given stages in order.
func New(stages ...Stage) (*Table, error) {
	if len(stages) == 0 {
		return nil, ErrEmptyTable
	}

	t := &Table{
		stages: make([]Stage, len(stages)),
		index:  make(map[string]int, len(stages)),
	}
	for i, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("%w at index %d", ErrBlankStage, i)
		}
		if _, dup := t.index[s.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStage, s.Name)
		}
		t.stages[i] = s
		t.index[s.Name] = i
	}
	return t, nil
}

func mustNew(stages ...Stage) *Table {
	t, err := New(stages...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of stages.
func (t *Table) Len() int {
	return len(t.stages)
}

// Name returns the stage name at index i, or Undefined.
func (t *Table) Name(i int) string {
	if i < 0 || i >= len(t.stages) {
		return Undefined
	}
	return t.stages[i].Name
}

// Index returns the position of name, falling back to the entry stage
// when the name is unknown.
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return 0
}

// Lookup returns the position of name and whether it exists.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// IsParallel reports whether the stage at index i is parallel-eligible.
func (t *Table) IsParallel(i int) bool {
	if i < 0 || i >= len(t.stages) {
		return false
	}
	return t.stages[i].Parallel
}

// IsParallelName reports whether the named stage is parallel-eligible.
func (t *Table) IsParallelName(name string) bool {
	i, ok := t.index[name]
	return ok && t.stages[i].Parallel
}

// NextAfter returns the stage following name. The second result is false
// for the last stage or an unknown name.
func (t *Table) NextAfter(name string) (string, bool) {
	i, ok := t.index[name]
	if !ok || i+1 >= len(t.stages) {
		return "", false
	}
	return t.stages[i+1].Name, true
}

// Names returns the stage names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.stages))
	for i, s := range t.stages {
		names[i] = s.Name
	}
	return names
}

// Stages returns a copy of the stages in order.
func (t *Table) Stages() []Stage {
	out := make([]Stage, len(t.stages))
	copy(out, t.stages)
	return out
}
