package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/sentinel"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
	"github.com/felixgeelhaar/itinerary/infrastructure/namespace"
	"github.com/felixgeelhaar/itinerary/infrastructure/statemachine"
	"github.com/felixgeelhaar/itinerary/infrastructure/telemetry"
)

// DefaultSentinelInterval is the poll period when none is configured.
const DefaultSentinelInterval = 5 * time.Minute

// SentinelOption configures a Sentinel.
type SentinelOption func(*Sentinel)

// WithShutdown sets the hook STOP and KILL rules call. force is true for
// KILL.
func WithShutdown(fn func(force bool)) SentinelOption {
	return func(s *Sentinel) {
		s.shutdown = fn
	}
}

// WithExit replaces os.Exit for EXIT rules.
func WithExit(fn func(code int)) SentinelOption {
	return func(s *Sentinel) {
		s.exit = fn
	}
}

// WithSentinelMetrics sets the fleet metrics.
func WithSentinelMetrics(m telemetry.Metrics) SentinelOption {
	return func(s *Sentinel) {
		s.metrics = m
	}
}

// WithSentinelInterval overrides the configured poll period.
func WithSentinelInterval(d time.Duration) SentinelOption {
	return func(s *Sentinel) {
		s.interval = d
	}
}

type poolSizer interface {
	CurrentPoolSize() int
}

// Sentinel samples the agents bound in a namespace and escalates when too
// many of them stay at one station for too long.
type Sentinel struct {
	ns       *namespace.Namespace
	interval time.Duration
	dflt     sentinel.Rule
	rules    map[string]sentinel.Rule
	lc       *statemachine.SentinelLifecycle
	shutdown func(force bool)
	exit     func(code int)
	metrics  telemetry.Metrics

	mu       sync.Mutex
	trackers map[string]*sentinel.Tracker

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSentinel loads the rules in cfg. Malformed rules are skipped.
func NewSentinel(ns *namespace.Namespace, cfg config.SentinelConfig, opts ...SentinelOption) (*Sentinel, error) {
	lc, err := statemachine.NewSentinelLifecycle()
	if err != nil {
		return nil, err
	}

	s := &Sentinel{
		ns:       ns,
		interval: cfg.PollInterval.Duration(),
		rules:    make(map[string]sentinel.Rule),
		lc:       lc,
		exit:     os.Exit,
		metrics:  telemetry.NoopMetrics{},
		trackers: make(map[string]*sentinel.Tracker),
		stopCh:   make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = DefaultSentinelInterval
	}

	s.dflt, err = sentinel.ParseRule(sentinel.DefaultRuleName, ruleSpec(cfg.Default))
	if err != nil {
		logging.Warn().
			Add(logging.Component("sentinel")).
			Add(logging.ErrorField(err)).
			Msg("malformed default rule, using built-in default")
		s.dflt = sentinel.DefaultRule()
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Rules)) {
		r, err := sentinel.ParseRule(name, ruleSpec(cfg.Rules[name]))
		if err != nil {
			logging.Warn().
				Add(logging.Component("sentinel")).
				Add(logging.Place(name)).
				Add(logging.ErrorField(err)).
				Msg("skipping malformed rule")
			continue
		}
		s.rules[strings.ToLower(name)] = r
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ruleSpec(rc config.RuleConfig) sentinel.RuleSpec {
	return sentinel.RuleSpec{
		TimeLimit: rc.TimeLimit.Duration(),
		Threshold: rc.Threshold,
		Action:    rc.Action,
	}
}

// Interval returns the poll period.
func (s *Sentinel) Interval() time.Duration { return s.interval }

// Rules returns the loaded rules, default first.
func (s *Sentinel) Rules() []sentinel.Rule {
	out := []sentinel.Rule{s.dflt}
	for _, name := range slices.Sorted(maps.Keys(s.rules)) {
		out = append(out, s.rules[name])
	}
	return out
}

// Running reports whether Run is polling.
func (s *Sentinel) Running() bool { return s.lc.Running() }

// Run polls every interval until ctx is done or Stop is called.
func (s *Sentinel) Run(ctx context.Context) error {
	if err := s.lc.Run(); err != nil {
		return err
	}
	defer func() { _ = s.lc.Halt() }()

	logging.Info().
		Add(logging.Component("sentinel")).
		Add(logging.Duration(s.interval)).
		Msg("sentinel running")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil {
				logging.Warn().
					Add(logging.Component("sentinel")).
					Add(logging.ErrorField(err)).
					Msg("sentinel poll")
			}
		}
	}
}

// Stop ends Run.
func (s *Sentinel) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	_ = s.lc.Halt()
}

// Poll runs one watch cycle and returns the per-station summary, sorted by
// station name. The error joins the failures of tripped rules.
func (s *Sentinel) Poll(ctx context.Context) ([]sentinel.PlaceStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	observed := 0
	byPlace := make(map[string]*sentinel.PlaceStats)
	for _, key := range s.ns.KeysWithPrefix(agent.NamePrefix) {
		v, err := s.ns.Lookup(key)
		if err != nil {
			continue
		}
		o, ok := v.(agent.Observed)
		if !ok {
			continue
		}
		observed++

		t, ok := s.trackers[key]
		if !ok {
			t = sentinel.NewTracker(key)
			s.trackers[key] = t
		}

		if !o.InUse() {
			t.Clear()
			continue
		}

		t.Observe(o.AgentID(), o.RunID(), o.LastPlaceProcessed())
		t.Increment(s.interval)

		name := t.PlaceSimpleName()
		if name == "" {
			continue
		}
		id := strings.ToLower(name)
		st, ok := byPlace[id]
		if !ok {
			st = &sentinel.PlaceStats{Place: name}
			byPlace[id] = st
		}
		st.Update(t.Elapsed)
	}

	poolSize := observed
	if p, err := namespace.LookupAs[poolSizer](s.ns, PoolName); err == nil {
		poolSize = p.CurrentPoolSize()
	}

	var errs []error
	stats := make([]sentinel.PlaceStats, 0, len(byPlace))
	for _, id := range slices.Sorted(maps.Keys(byPlace)) {
		st := byPlace[id]
		stats = append(stats, *st)

		rule := s.ruleFor(id)
		if rule.OverThreshold(st.Count, poolSize) && rule.OverTimeLimit(st.MaxElapsed) {
			if err := s.trip(ctx, rule, *st, poolSize); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stats, errors.Join(errs...)
}

// ruleFor matches place names case-insensitively, as Poll groups them.
func (s *Sentinel) ruleFor(placeName string) sentinel.Rule {
	if r, ok := s.rules[strings.ToLower(placeName)]; ok {
		return r
	}
	return s.dflt
}

func (s *Sentinel) trip(ctx context.Context, rule sentinel.Rule, st sentinel.PlaceStats, poolSize int) error {
	s.metrics.RecordSentinelTrip(ctx, st.Place, string(rule.Action))

	ev := logging.Warn()
	if rule.Action != sentinel.ActionNotify {
		ev = logging.Error()
	}
	ev.Add(logging.Component("sentinel")).
		Add(logging.Place(st.Place)).
		Add(logging.Action(string(rule.Action))).
		Add(logging.Count(st.Count)).
		Add(logging.Int("pool_size", poolSize)).
		Add(logging.Duration(st.MaxElapsed)).
		Msg("agents stalled at place")

	switch rule.Action {
	case sentinel.ActionNotify:
		return nil
	case sentinel.ActionRecover:
		err := fmt.Errorf("%w: %s", sentinel.ErrRecoverUnsupported, st.Place)
		logging.Warn().
			Add(logging.Component("sentinel")).
			Add(logging.ErrorField(err)).
			Msg("recover requested")
		return err
	case sentinel.ActionStop, sentinel.ActionKill:
		if s.shutdown == nil {
			return fmt.Errorf("%w: %s", sentinel.ErrNoShutdownHook, rule.Action)
		}
		s.shutdown(rule.Action == sentinel.ActionKill)
		return nil
	case sentinel.ActionExit:
		s.exit(1)
		return nil
	default:
		return fmt.Errorf("%w: %s", sentinel.ErrUnknownAction, rule.Action)
	}
}
