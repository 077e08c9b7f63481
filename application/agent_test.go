package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/agent"
	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/place"
	"github.com/felixgeelhaar/itinerary/domain/routing"
	"github.com/felixgeelhaar/itinerary/infrastructure/watcher"
)

func TestNewAgent_RequiresOracle(t *testing.T) {
	t.Parallel()

	_, err := NewAgent("MobileAgent-01")
	if !errors.Is(err, ErrNoOracle) {
		t.Errorf("NewAgent() error = %v, want ErrNoOracle", err)
	}
}

func TestAgent_GoRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.agent(t)

	if err := a.Go(nil, f.pickup); !errors.Is(err, agent.ErrNoPayload) {
		t.Errorf("Go(nil) error = %v, want ErrNoPayload", err)
	}
	if err := a.Go(newPayload("doc", "UNKNOWN"), nil); !errors.Is(err, place.ErrNilPlace) {
		t.Errorf("Go(nil place) error = %v, want ErrNilPlace", err)
	}
	if a.InUse() {
		t.Error("InUse() = true after rejected Go")
	}
}

func TestAgent_RoutesToCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stations := f.pipeline(t)
	a := f.agent(t)

	p := newPayload("doc", "UNKNOWN")
	if err := a.Go(p, f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}

	rs := f.reports(t, 1)
	waitIdle(t, a)

	r := rs[0]
	if len(r.Forms) != 1 || r.Forms[0] != payload.FormDone {
		t.Errorf("Forms = %v, want [DONE]", r.Forms)
	}
	if len(r.History) != 4 {
		t.Errorf("len(History) = %d, want 4: %v", len(r.History), r.History)
	}
	if !strings.Contains(r.History[0], "Pickup") {
		t.Errorf("History[0] = %q, want the arrival place", r.History[0])
	}
	if r.ShortName != "doc" || r.Batch != 1 || r.MoveErrors != 0 {
		t.Errorf("report = %+v, want doc, batch 1, no move errors", r)
	}
	if r.HasErrors() {
		t.Errorf("HasErrors() = true, processing error %q", r.ProcessingError)
	}
	for _, s := range stations {
		if s.Calls() != 1 {
			t.Errorf("%s calls = %d, want 1", s.Name(), s.Calls())
		}
	}
	if f.pickup.Calls() != 0 {
		t.Errorf("pickup calls = %d, want 0", f.pickup.Calls())
	}

	if got := a.Status(); got != agent.StatusIdle {
		t.Errorf("Status() = %q, want %q", got, agent.StatusIdle)
	}
	if got := a.AgentID(); got != agent.NoAgentID {
		t.Errorf("AgentID() = %q, want %q", got, agent.NoAgentID)
	}
	if a.Payload() != nil {
		t.Error("Payload() != nil after the run")
	}
	if !strings.HasPrefix(r.AgentID, "Agent-") || !strings.HasSuffix(r.AgentID, "-doc") {
		t.Errorf("report AgentID = %q, want Agent-<id>-doc", r.AgentID)
	}
}

func TestAgent_HistoryGrowsByOnePerStation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.recording(t, config.StationConfig{Name: "IdPlace", DataType: "UNKNOWN", ServiceName: "IDENT", ServiceType: "ID", SetForm: "TEXT"})
	rec2 := f.recording(t, config.StationConfig{Name: "LowerPlace", DataType: "TEXT", ServiceName: "LOWER", ServiceType: "TRANSFORM", SetForm: "DONE"})
	a := f.agent(t)

	if err := a.Go(newPayload("doc", "UNKNOWN"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	f.reports(t, 1)
	waitIdle(t, a)

	sizes := append(rec.HistorySizes(), rec2.HistorySizes()...)
	want := []int{2, 3}
	if len(sizes) != len(want) {
		t.Fatalf("history sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("history size at station %d = %d, want %d", i, sizes[i], want[i])
		}
	}
}

func TestAgent_SingleCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	only := f.local(t, config.StationConfig{Name: "OnlyPlace", DataType: "TEXT", ServiceName: "ONLY", ServiceType: "STUDY"})

	var calls atomic.Int64
	oracle := routing.OracleFunc(func(context.Context, string, payload.Payload, *directory.Entry) ([]*directory.Entry, error) {
		if calls.Add(1) == 1 {
			return []*directory.Entry{only.Entry()}, nil
		}
		return nil, nil
	})
	a := f.agent(t, WithOracle(oracle))

	if err := a.Go(newPayload("doc", "TEXT"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	if only.Calls() != 1 {
		t.Errorf("station calls = %d, want 1", only.Calls())
	}
	if len(r.History) != 2 {
		t.Errorf("History = %v, want the arrival and one station", r.History)
	}
}

func TestAgent_TerminatesWhenLooping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	loop := f.local(t, config.StationConfig{Name: "LoopPlace", DataType: "TEXT", ServiceName: "LOOP", ServiceType: "STUDY"})

	oracle := routing.OracleFunc(func(_ context.Context, dataID string, _ payload.Payload, _ *directory.Entry) ([]*directory.Entry, error) {
		if strings.HasPrefix(dataID, payload.FormError) {
			return nil, nil
		}
		return []*directory.Entry{loop.Entry()}, nil
	})
	a := f.agent(t, WithOracle(oracle), WithMaxItinerarySteps(10))

	if err := a.Go(newPayload("doc", "TEXT"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	if len(r.Forms) != 1 || r.Forms[0] != payload.FormError {
		t.Errorf("Forms = %v, want [ERROR]", r.Forms)
	}
	if !strings.Contains(r.ProcessingError, "looping") {
		t.Errorf("ProcessingError = %q, want looping message", r.ProcessingError)
	}
	if len(r.History) != 11 {
		t.Errorf("len(History) = %d, want 11", len(r.History))
	}
	if loop.Calls() != 10 {
		t.Errorf("station calls = %d, want 10", loop.Calls())
	}
}

func TestAgent_ParallelStageVisitsEachServiceOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	paraA := f.local(t, config.StationConfig{Name: "ParaA", DataType: "TEXT", ServiceName: "PARA_A", ServiceType: "PRETRANSFORM"})
	paraB := f.local(t, config.StationConfig{Name: "ParaB", DataType: "TEXT", ServiceName: "PARA_B", ServiceType: "PRETRANSFORM"})
	final := f.local(t, config.StationConfig{Name: "Final", DataType: "TEXT", ServiceName: "FINAL", ServiceType: "TRANSFORM", SetForm: "DONE"})

	// The second PRETRANSFORM answer repeats PARA_A ahead of PARA_B.
	var mu sync.Mutex
	pre := 0
	oracle := routing.OracleFunc(func(_ context.Context, dataID string, _ payload.Payload, _ *directory.Entry) ([]*directory.Entry, error) {
		mu.Lock()
		defer mu.Unlock()
		switch dataID {
		case "TEXT::PRETRANSFORM":
			pre++
			switch pre {
			case 1:
				return []*directory.Entry{paraA.Entry()}, nil
			case 2:
				return []*directory.Entry{paraA.Entry(), paraB.Entry()}, nil
			}
		case "TEXT::TRANSFORM":
			return []*directory.Entry{final.Entry()}, nil
		}
		return nil, nil
	})
	a := f.agent(t, WithOracle(oracle))

	if err := a.Go(newPayload("doc", "TEXT"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	if paraA.Calls() != 1 || paraB.Calls() != 1 {
		t.Errorf("parallel calls = %d, %d, want 1, 1", paraA.Calls(), paraB.Calls())
	}
	if final.Calls() != 1 {
		t.Errorf("final calls = %d, want 1", final.Calls())
	}
	if r.Forms[0] != payload.FormDone {
		t.Errorf("Forms = %v, want [DONE]", r.Forms)
	}

	seen := make(map[string]int)
	for _, k := range r.History {
		seen[directory.ServiceName(k)]++
	}
	if seen["PARA_A"] != 1 || seen["PARA_B"] != 1 {
		t.Errorf("History = %v, want PARA_A and PARA_B once each", r.History)
	}
}

func TestAgent_MoveErrorsExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	remote := directory.NewEntry("TEXT", "REMOTE", "TRANSFORM", "http://elsewhere:9000/RemotePlace", 50, 50)
	oracle := routing.OracleFunc(func(context.Context, string, payload.Payload, *directory.Entry) ([]*directory.Entry, error) {
		return []*directory.Entry{remote}, nil
	})

	var moves atomic.Int64
	mover := routing.MoverFunc(func(_ context.Context, r routing.Relocation) error {
		moves.Add(1)
		if r.Host() != "http://elsewhere:9000/" {
			t.Errorf("Host() = %q, want http://elsewhere:9000/", r.Host())
		}
		return errors.New("connection refused")
	})
	a := f.agent(t, WithOracle(oracle), WithMover(mover), WithMaxMoveErrors(3))

	if err := a.Go(newPayload("doc", "TEXT"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	if got := moves.Load(); got != 4 {
		t.Errorf("moves = %d, want 4", got)
	}
	if r.MoveErrors != 4 {
		t.Errorf("MoveErrors = %d, want 4", r.MoveErrors)
	}
	if len(r.Forms) != 1 || r.Forms[0] != payload.FormError {
		t.Errorf("Forms = %v, want [ERROR]", r.Forms)
	}
	if !strings.Contains(r.ProcessingError, "RemotePlace") || !strings.Contains(r.ProcessingError, "failed 4 times") {
		t.Errorf("ProcessingError = %q, want the failed move to RemotePlace", r.ProcessingError)
	}
}

func TestAgent_MovedRunWritesNoReport(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	remote := directory.NewEntry("TEXT", "REMOTE", "TRANSFORM", "http://elsewhere:9000/RemotePlace", 50, 50)
	oracle := routing.OracleFunc(func(context.Context, string, payload.Payload, *directory.Entry) ([]*directory.Entry, error) {
		return []*directory.Entry{remote}, nil
	})

	moved := make(chan routing.Relocation, 1)
	mover := routing.MoverFunc(func(_ context.Context, r routing.Relocation) error {
		moved <- r
		return nil
	})
	a := f.agent(t, WithOracle(oracle), WithMover(mover))

	if err := a.Go(newPayload("doc", "TEXT"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}

	select {
	case r := <-moved:
		if r.Target.Key() != remote.Key() {
			t.Errorf("Target = %q, want %q", r.Target.Key(), remote.Key())
		}
		if len(r.Payloads) != 1 || r.Payloads[0].ShortName() != "doc" {
			t.Errorf("Payloads = %v, want [doc]", r.Payloads)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the move")
	}
	waitIdle(t, a)
	if f.store.Len() != 0 {
		t.Errorf("reports = %d, want 0", f.store.Len())
	}
}

func TestAgent_StationFaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		station func(f *fixture, t *testing.T)
		wantErr string
	}{
		{
			name: "failure",
			station: func(f *fixture, t *testing.T) {
				f.station(t, config.StationConfig{Name: "BadPlace", DataType: "UNKNOWN", ServiceName: "BAD", ServiceType: "ID", Fail: "boom"})
			},
			wantErr: "boom",
		},
		{
			name: "empty form stack",
			station: func(f *fixture, t *testing.T) {
				f.station(t, config.StationConfig{Name: "PopPlace", DataType: "UNKNOWN", ServiceName: "POP", ServiceType: "ID", Pop: true})
			},
			wantErr: "left an empty form stack",
		},
		{
			name: "panic",
			station: func(f *fixture, t *testing.T) {
				p := &panicPlace{key: "UNKNOWN.PANIC.ID.http://localhost:8001/PanicPlace$5050"}
				if err := f.ns.Bind("http://localhost:8001/PanicPlace", p); err != nil {
					t.Fatalf("Bind() error = %v", err)
				}
				e, _ := place.Entry(p)
				f.dir.Register(e)
			},
			wantErr: ErrStationPanic.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.station(f, t)
			a := f.agent(t)

			if err := a.Go(newPayload("doc", "UNKNOWN"), f.pickup); err != nil {
				t.Fatalf("Go() error = %v", err)
			}
			r := f.reports(t, 1)[0]

			if len(r.Forms) != 1 || r.Forms[0] != payload.FormError {
				t.Errorf("Forms = %v, want [ERROR]", r.Forms)
			}
			if !strings.Contains(r.ProcessingError, tt.wantErr) {
				t.Errorf("ProcessingError = %q, want it to contain %q", r.ProcessingError, tt.wantErr)
			}
		})
	}
}

func TestAgent_ErrorHandlerRuns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.station(t, config.StationConfig{Name: "BadPlace", DataType: "UNKNOWN", ServiceName: "BAD", ServiceType: "ID", Fail: "boom"})
	handler := f.station(t, config.StationConfig{Name: "ErrorPlace", DataType: "ERROR", ServiceName: "QUARANTINE", ServiceType: "IO", SetForm: "DONE"})
	a := f.agent(t)

	if err := a.Go(newPayload("doc", "UNKNOWN"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	if handler.Calls() != 1 {
		t.Errorf("error handler calls = %d, want 1", handler.Calls())
	}
	if r.Forms[0] != payload.FormDone {
		t.Errorf("Forms = %v, want [DONE]", r.Forms)
	}
	if !r.HasErrors() {
		t.Error("HasErrors() = false, want the station failure recorded")
	}
}

func TestAgent_CompleteKeyForm(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	target := f.local(t, config.StationConfig{Name: "Direct", DataType: "TEXT", ServiceName: "DIRECT", ServiceType: "TRANSFORM", SetForm: "DONE"})
	a := f.agent(t)

	p := newPayload("doc", target.Key())
	if err := a.Go(p, f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	if target.Calls() != 1 {
		t.Errorf("calls = %d, want 1", target.Calls())
	}
	if r.Forms[0] != payload.FormDone {
		t.Errorf("Forms = %v, want [DONE]", r.Forms)
	}
}

func TestAgent_GuardInterruptsSlowStation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	slow := f.station(t, config.StationConfig{
		Name:        "SlowPlace",
		DataType:    "UNKNOWN",
		ServiceName: "SLOW",
		ServiceType: "ID",
		Sleep:       config.Duration(10 * time.Second),
		Timeout:     config.Duration(50 * time.Millisecond),
	})

	w := watcher.New(watcher.WithPollInterval(5 * time.Millisecond))
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	a := f.agent(t, WithGuard(w))
	if err := a.Go(newPayload("doc", "UNKNOWN"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	if slow.Calls() != 1 {
		t.Errorf("calls = %d, want 1", slow.Calls())
	}
	if !strings.Contains(r.ProcessingError, agent.ErrDeadlineExceeded.Error()) {
		t.Errorf("ProcessingError = %q, want deadline exceeded", r.ProcessingError)
	}
	if r.Forms[0] != payload.FormError {
		t.Errorf("Forms = %v, want [ERROR]", r.Forms)
	}
	waitFor(t, "guard release", func() bool { return w.Tracking() == 0 })
}

func TestAgent_InterruptAndStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	slow := f.station(t, config.StationConfig{
		Name:        "SlowPlace",
		DataType:    "UNKNOWN",
		ServiceName: "SLOW",
		ServiceType: "ID",
		Sleep:       config.Duration(10 * time.Second),
	})
	a := f.agent(t)

	if err := a.Go(newPayload("doc", "UNKNOWN"), f.pickup); err != nil {
		t.Fatalf("Go() error = %v", err)
	}
	waitFor(t, "slow station", func() bool { return a.LastPlaceProcessed() == slow.Key() })

	want := "doc(1) - " + slow.Key()
	if got := a.Status(); got != want {
		t.Errorf("Status() = %q, want %q", got, want)
	}
	if err := a.Go(newPayload("other", "UNKNOWN"), f.pickup); !errors.Is(err, agent.ErrAgentBusy) {
		t.Errorf("Go() while busy error = %v, want ErrAgentBusy", err)
	}

	a.Interrupt()
	r := f.reports(t, 1)[0]
	if !strings.Contains(r.ProcessingError, agent.ErrInterrupted.Error()) {
		t.Errorf("ProcessingError = %q, want interrupted", r.ProcessingError)
	}
}

func TestAgent_KillClosesAgent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pipeline(t)
	a := f.agent(t)

	a.Kill()
	if got := a.Status(); got != agent.StatusClosed {
		t.Errorf("Status() = %q, want %q", got, agent.StatusClosed)
	}
	if !a.State().IsTerminal() {
		t.Errorf("State() = %v, want terminal", a.State())
	}
	if err := a.Go(newPayload("doc", "UNKNOWN"), f.pickup); !errors.Is(err, agent.ErrAgentTerminated) {
		t.Errorf("Go() after Kill error = %v, want ErrAgentTerminated", err)
	}
}

func TestAgent_ArriveProcessesFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stations := f.pipeline(t)
	a := f.agent(t)

	p := newPayload("doc", "UNKNOWN")
	p.AppendHistory(f.pickup.Key(), false)
	p.AppendHistory("UNKNOWN.IDENT.ID."+stations[0].Location()+"$5050", false)

	if err := a.Arrive(p, stations[0], 2, nil); err != nil {
		t.Fatalf("Arrive() error = %v", err)
	}
	r := f.reports(t, 1)[0]

	for _, s := range stations {
		if s.Calls() != 1 {
			t.Errorf("%s calls = %d, want 1", s.Name(), s.Calls())
		}
	}
	if r.MoveErrors != 2 {
		t.Errorf("MoveErrors = %d, want 2 carried over", r.MoveErrors)
	}
	if _, ok := p.Parameter(payload.ParamMoveErrors); ok {
		t.Error("move error parameter left on the payload")
	}
	if len(r.History) != 4 {
		t.Errorf("len(History) = %d, want 4", len(r.History))
	}
}

type panicPlace struct {
	key string
}

func (p *panicPlace) Key() string  { return p.key }
func (p *panicPlace) Name() string { return "PanicPlace" }
func (p *panicPlace) Process(context.Context, payload.Payload) ([]payload.Payload, error) {
	panic("station bug")
}
func (p *panicPlace) AllowedDuration() time.Duration { return place.DefaultDuration }

func TestAgent_ReusedWithoutPool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.pipeline(t)
	a := f.agent(t)

	for i := range 3 {
		waitIdle(t, a)
		if err := a.Go(newPayload(fmt.Sprintf("doc-%d", i), "UNKNOWN"), f.pickup); err != nil {
			t.Fatalf("Go(%d) error = %v", i, err)
		}
		f.reports(t, i+1)
	}
	waitIdle(t, a)
	if a.InUse() {
		t.Error("InUse() = true after the last run")
	}
}
