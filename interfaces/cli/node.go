package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/felixgeelhaar/itinerary/application"
	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/report"
	"github.com/felixgeelhaar/itinerary/domain/routing"
	"github.com/felixgeelhaar/itinerary/domain/stage"
	infraconfig "github.com/felixgeelhaar/itinerary/infrastructure/config"
	infradir "github.com/felixgeelhaar/itinerary/infrastructure/directory"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
	"github.com/felixgeelhaar/itinerary/infrastructure/namespace"
	"github.com/felixgeelhaar/itinerary/infrastructure/observability"
	"github.com/felixgeelhaar/itinerary/infrastructure/station"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage"
	"github.com/felixgeelhaar/itinerary/infrastructure/telemetry"
	"github.com/felixgeelhaar/itinerary/infrastructure/transport"
	"github.com/felixgeelhaar/itinerary/infrastructure/watcher"
)

// shutdownTimeout bounds flushing spans and closing the store.
const shutdownTimeout = 5 * time.Second

// pickupConfig describes the station inputs are dispatched from. It is bound
// locally but never advertised, so nothing routes back to it.
var pickupConfig = config.StationConfig{
	Name:        "Pickup",
	DataType:    payload.FormUnknown,
	ServiceName: "PICKUP",
	ServiceType: "INPUT",
}

// nodeOptions are the command line overrides of a node.
type nodeOptions struct {
	batch  bool
	trace  string
	tracer io.Writer
}

// node is one process worth of itinerary: stations, agents and the watchers
// around them, built from a configuration.
type node struct {
	cfg      *config.Config
	ns       *namespace.Namespace
	dir      *infradir.Static
	stations []*station.Scripted
	pickup   *station.Scripted

	guard    *watcher.ResourceWatcher
	timings  *telemetry.PlaceTimings
	store    report.Store
	closer   io.Closer
	tracing  *observability.Provider
	pool     *application.Pool
	sentinel *application.Sentinel
}

func newNode(ctx context.Context, cfg *config.Config, opts nodeOptions) (_ *node, err error) {
	n := &node{
		cfg: cfg,
		ns:  namespace.New(),
		dir: infradir.NewStatic(),
	}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	tc := cfg.Tracing
	if opts.trace != "" {
		tc.Exporter = opts.trace
	}
	ts := observability.FromTracing(tc, Version)
	ts.Writer = opts.tracer
	if n.tracing, err = observability.New(ctx, ts); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	if n.stations, err = station.Build(cfg.Stations, n.dir, n.ns); err != nil {
		return nil, err
	}
	n.pickup = station.New(pickupConfig)
	if err = n.ns.Bind(n.pickup.Location(), n.pickup); err != nil {
		return nil, err
	}

	stages := stage.Default()
	if len(cfg.Stages) > 0 {
		list := make([]stage.Stage, 0, len(cfg.Stages))
		for _, s := range cfg.Stages {
			list = append(list, stage.Stage{Name: s.Name, Parallel: s.Parallel})
		}
		if stages, err = stage.New(list...); err != nil {
			return nil, err
		}
	}

	var guard watcher.Guard = watcher.Noop{}
	if cfg.Watcher.Enabled {
		if n.timings, err = telemetry.NewPlaceTimings(); err != nil {
			return nil, err
		}
		n.guard = watcher.New(
			watcher.WithDefaultLimit(cfg.Watcher.DefaultLimit.Duration()),
			watcher.WithPollInterval(cfg.Watcher.PollInterval.Duration()),
			watcher.WithTimings(n.timings),
		)
		guard = n.guard
	}

	store, closer, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	n.store, n.closer = store, closer

	metrics := telemetry.NewFleetMetrics(telemetry.DefaultMetricsConfig())
	if err = metrics.Error(); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var (
		mover routing.Mover = transport.Disabled{}
		hub   *transport.Loopback
	)
	if cfg.Transport.Kind == config.TransportLoopback {
		hub = transport.NewLoopback()
		mover = hub
	}
	if cfg.Transport.Resilient {
		mover = transport.NewResilient(mover, transport.ResilientConfigFrom(cfg.Transport))
	}

	agentOpts := []application.Option{
		application.WithOracle(n.dir),
		application.WithNamespace(n.ns),
		application.WithGuard(guard),
		application.WithMover(mover),
		application.WithStages(stages),
		application.WithMaxMoveErrors(cfg.Agent.MaxMoveErrors),
		application.WithMaxItinerarySteps(cfg.Agent.MaxItinerarySteps),
		application.WithMetrics(metrics),
	}
	if store != nil {
		agentOpts = append(agentOpts, application.WithReportStore(store))
	}
	factory := application.AgentFactory(agentOpts...)
	if cfg.Agent.Batch || opts.batch {
		factory = application.BatchAgentFactory(agentOpts...)
	}
	if n.pool, err = application.NewPool(n.ns, factory,
		application.WithSize(cfg.Agent.PoolSize),
		application.WithPoolMetrics(metrics),
	); err != nil {
		return nil, err
	}

	if hub != nil {
		hub.Register(config.DefaultHost, n.pool)
		for _, s := range n.stations {
			hub.Register(s.Entry().HostURL(), n.pool)
		}
	}

	if cfg.Sentinel.Enabled {
		if n.sentinel, err = application.NewSentinel(n.ns, cfg.Sentinel,
			application.WithShutdown(n.pool.Shutdown),
			application.WithSentinelMetrics(metrics),
		); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// start runs the guard, the agents and the sentinel until ctx is done.
func (n *node) start(ctx context.Context) error {
	if n.guard != nil {
		n.guard.Start(ctx)
	}
	if err := n.pool.Start(ctx); err != nil {
		return err
	}
	if n.sentinel != nil {
		go func() {
			if err := n.sentinel.Run(ctx); err != nil {
				logging.Warn().
					Add(logging.Component("sentinel")).
					Add(logging.ErrorField(err)).
					Msg("sentinel stopped")
			}
		}()
	}
	return nil
}

// reload applies the settings that can change while running.
func (n *node) reload(cfg *config.Config) {
	logging.SetLevel(cfg.Logging.Level)
	if n.guard != nil {
		n.guard.SetDefaultLimit(cfg.Watcher.DefaultLimit.Duration())
	}
	logging.Info().
		Add(logging.Component("cli")).
		Add(logging.Duration(cfg.Watcher.DefaultLimit.Duration())).
		Msg("configuration reloaded")
}

// watch hot reloads path until ctx is done.
func (n *node) watch(ctx context.Context, loader *infraconfig.Loader, path string) {
	if err := loader.Watch(ctx, path, n.reload); err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn().
			Add(logging.Component("cli")).
			Add(logging.ErrorField(err)).
			Msg("config watch stopped")
	}
}

// close stops everything started by newNode and start.
func (n *node) close() {
	if n.sentinel != nil {
		n.sentinel.Stop()
	}
	if n.pool != nil {
		n.pool.Shutdown(false)
	}
	if n.guard != nil {
		n.guard.Stop()
	}
	if n.closer != nil {
		if err := n.closer.Close(); err != nil {
			logging.Warn().
				Add(logging.Component("storage")).
				Add(logging.ErrorField(err)).
				Msg("close report store")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if n.timings != nil {
		_ = n.timings.Shutdown(ctx)
	}
	if n.tracing != nil {
		if err := n.tracing.Shutdown(ctx); err != nil {
			logging.Warn().
				Add(logging.Component("tracing")).
				Add(logging.ErrorField(err)).
				Msg("flush spans")
		}
	}
}
