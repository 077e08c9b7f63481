// Package station provides stations whose behavior is described by
// configuration, used by the CLI pipeline and by tests.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/place"
	infradir "github.com/felixgeelhaar/itinerary/infrastructure/directory"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
	"github.com/felixgeelhaar/itinerary/infrastructure/namespace"
)

// ErrStationFailed is returned by stations configured to fail.
var ErrStationFailed = errors.New("station failed")

// Scripted is a station that edits the form stack as configured.
type Scripted struct {
	cfg   config.StationConfig
	entry *directory.Entry
	calls atomic.Int64
}

// New builds a station from cfg. Zero fields take the configuration
// defaults.
func New(cfg config.StationConfig) *Scripted {
	if cfg.DataType == "" {
		cfg.DataType = config.DefaultDataType
	}
	if cfg.Host == "" {
		cfg.Host = config.DefaultHost
	}
	if cfg.Cost == 0 {
		cfg.Cost = directory.DefaultCost
	}
	if cfg.Quality == 0 {
		cfg.Quality = directory.DefaultQuality
	}
	return &Scripted{
		cfg:   cfg,
		entry: directory.NewEntry(cfg.DataType, cfg.ServiceName, cfg.ServiceType, cfg.Host+cfg.Name, cfg.Cost, cfg.Quality),
	}
}

// Key returns the full station key.
func (s *Scripted) Key() string { return s.entry.FullKey() }

// Name returns the station simple name.
func (s *Scripted) Name() string { return s.cfg.Name }

// Location returns the namespace name of the station.
func (s *Scripted) Location() string { return s.entry.ServiceLocation }

// Entry returns a copy of the advertised directory entry.
func (s *Scripted) Entry() *directory.Entry {
	c := *s.entry
	return &c
}

// AllowedDuration returns the configured timeout, or the guard default.
func (s *Scripted) AllowedDuration() time.Duration {
	if s.cfg.Timeout <= 0 {
		return place.DefaultDuration
	}
	return s.cfg.Timeout.Duration()
}

// AllowsEmptyForm reports whether the station may leave no forms.
func (s *Scripted) AllowsEmptyForm() bool { return s.cfg.EmptyOK }

// Calls returns the number of Process invocations.
func (s *Scripted) Calls() int64 { return s.calls.Load() }

// Process applies the configured sleep, failure, form edits and sprouts.
func (s *Scripted) Process(ctx context.Context, p payload.Payload) ([]payload.Payload, error) {
	s.calls.Add(1)

	if d := s.cfg.Sleep.Duration(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, context.Cause(ctx)
		case <-timer.C:
		}
	}

	if s.cfg.Fail != "" {
		return nil, fmt.Errorf("%w: %s", ErrStationFailed, s.cfg.Fail)
	}

	if s.cfg.Pop {
		p.PopCurrentForm()
	}
	if s.cfg.SetForm != "" {
		p.ReplaceCurrentForm(s.cfg.SetForm)
	}
	for _, f := range s.cfg.PushForm {
		p.PushCurrentForm(f)
	}

	var sprouts []payload.Payload
	for i, f := range s.cfg.Sprout {
		child := payload.New(fmt.Sprintf("%s-att-%d", p.ShortName(), i+1), nil, f)
		child.AppendHistory(directory.SproutKey(s.entry.ServiceLocation), false)
		sprouts = append(sprouts, child)
	}

	logging.Trace().
		Add(logging.Place(s.cfg.Name)).
		Add(logging.ShortName(p.ShortName())).
		Add(logging.Form(p.CurrentForm())).
		Msg("processed")
	return sprouts, nil
}

// Register binds s into ns under its location and advertises it in dir.
func Register(s *Scripted, dir *infradir.Static, ns *namespace.Namespace) error {
	if err := ns.Bind(s.Location(), s); err != nil {
		return fmt.Errorf("bind station %s: %w", s.Name(), err)
	}
	dir.Register(s.Entry())
	return nil
}

// Build creates and registers one station per config.
func Build(cfgs []config.StationConfig, dir *infradir.Static, ns *namespace.Namespace) ([]*Scripted, error) {
	stations := make([]*Scripted, 0, len(cfgs))
	for _, c := range cfgs {
		s := New(c)
		if err := Register(s, dir, ns); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, nil
}

var (
	_ place.Place             = (*Scripted)(nil)
	_ place.EmptyFormTolerant = (*Scripted)(nil)
)
