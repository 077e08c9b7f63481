package sentinel

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRuleName keys the rule applied to stations without their own rule.
const DefaultRuleName = "DEFAULT"

// Rule defaults applied to missing fields.
const (
	DefaultTimeLimit = 60 * time.Minute
	DefaultThreshold = 1.0
	DefaultAction    = ActionNotify
)

// Rule trips when at least Threshold of the pool has been at one station
// for TimeLimit or longer.
type Rule struct {
	Name      string
	TimeLimit time.Duration
	Threshold float64
	Action    Action
}

// DefaultRule returns the rule used when none is configured.
func DefaultRule() Rule {
	return Rule{
		Name:      DefaultRuleName,
		TimeLimit: DefaultTimeLimit,
		Threshold: DefaultThreshold,
		Action:    DefaultAction,
	}
}

// RuleSpec is the loosely typed form of a rule read from configuration.
// Zero values take the defaults.
type RuleSpec struct {
	TimeLimit time.Duration
	Threshold float64
	Action    string
}

// ParseRule builds a validated rule named name from spec.
func ParseRule(name string, spec RuleSpec) (Rule, error) {
	r := DefaultRule()
	r.Name = name

	if strings.TrimSpace(name) == "" {
		return Rule{}, fmt.Errorf("%w: blank name", ErrInvalidRule)
	}
	if spec.TimeLimit != 0 {
		r.TimeLimit = spec.TimeLimit
	}
	if spec.Threshold != 0 {
		r.Threshold = spec.Threshold
	}
	if strings.TrimSpace(spec.Action) != "" {
		a, err := ParseAction(spec.Action)
		if err != nil {
			return Rule{}, err
		}
		r.Action = a
	}

	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule limits.
func (r Rule) Validate() error {
	if r.TimeLimit <= 0 {
		return fmt.Errorf("%w: %s time limit must be positive", ErrInvalidRule, r.Name)
	}
	if r.Threshold <= 0 || r.Threshold > 1 {
		return fmt.Errorf("%w: %s threshold must be in (0, 1]", ErrInvalidRule, r.Name)
	}
	if !r.Action.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownAction, r.Action)
	}
	return nil
}

// OverThreshold reports whether count agents out of poolSize reach the
// threshold fraction.
func (r Rule) OverThreshold(count, poolSize int) bool {
	if poolSize <= 0 {
		return false
	}
	return float64(count)/float64(poolSize) >= r.Threshold
}

// OverTimeLimit reports whether elapsed reaches the time limit.
func (r Rule) OverTimeLimit(elapsed time.Duration) bool {
	return elapsed >= r.TimeLimit
}

// String implements fmt.Stringer.
func (r Rule) String() string {
	return fmt.Sprintf("Rule:%s[timeLimit=%s, threshold=%g, action=%s]", r.Name, r.TimeLimit, r.Threshold, r.Action)
}
