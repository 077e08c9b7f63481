// Package telemetry provides OpenTelemetry instruments for station timing
// and fleet health.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of itinerary instruments.
const MeterName = "github.com/felixgeelhaar/itinerary"

// Metrics defines the interface for fleet metrics recording.
type Metrics interface {
	RecordDispatch(ctx context.Context, batch int)
	RecordMoveFailure(ctx context.Context, host string)
	RecordStationFault(ctx context.Context, place string)
	RecordItinerarySteps(ctx context.Context, steps int)
	RecordSentinelTrip(ctx context.Context, place, action string)
	IncrementBusy(ctx context.Context)
	DecrementBusy(ctx context.Context)
}

// FleetMetrics records agent and watchdog counters on the global meter.
type FleetMetrics struct {
	meter metric.Meter

	dispatches     metric.Int64Counter
	moveFailures   metric.Int64Counter
	stationFaults  metric.Int64Counter
	itinerarySteps metric.Int64Histogram
	sentinelTrips  metric.Int64Counter
	busyAgents     metric.Int64UpDownCounter

	initOnce sync.Once
	initErr  error
}

// MetricsConfig configures the fleet metrics.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: MeterName).
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    MeterName,
		MeterVersion: "1.0.0",
	}
}

// NewFleetMetrics creates fleet metrics on the global meter provider.
func NewFleetMetrics(config MetricsConfig) *FleetMetrics {
	if config.MeterName == "" {
		config = DefaultMetricsConfig()
	}

	meter := otel.GetMeterProvider().Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	fm := &FleetMetrics{meter: meter}
	fm.initOnce.Do(func() {
		fm.initErr = fm.initInstruments()
	})
	return fm
}

func (fm *FleetMetrics) initInstruments() error {
	var err error

	fm.dispatches, err = fm.meter.Int64Counter(
		"agent.dispatches",
		metric.WithDescription("Number of payloads handed to agents"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		return err
	}

	fm.moveFailures, err = fm.meter.Int64Counter(
		"agent.move.failures",
		metric.WithDescription("Number of failed relocations"),
		metric.WithUnit("{move}"),
	)
	if err != nil {
		return err
	}

	fm.stationFaults, err = fm.meter.Int64Counter(
		"agent.station.faults",
		metric.WithDescription("Number of station errors and panics"),
		metric.WithUnit("{fault}"),
	)
	if err != nil {
		return err
	}

	fm.itinerarySteps, err = fm.meter.Int64Histogram(
		"agent.itinerary.steps",
		metric.WithDescription("Transform history length of finished runs"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return err
	}

	fm.sentinelTrips, err = fm.meter.Int64Counter(
		"sentinel.trips",
		metric.WithDescription("Number of watchdog rule trips"),
		metric.WithUnit("{trip}"),
	)
	if err != nil {
		return err
	}

	fm.busyAgents, err = fm.meter.Int64UpDownCounter(
		"agent.busy",
		metric.WithDescription("Number of agents carrying a payload"),
		metric.WithUnit("{agent}"),
	)
	return err
}

// Error returns any initialization error.
func (fm *FleetMetrics) Error() error {
	return fm.initErr
}

// RecordDispatch records a payload dispatch.
func (fm *FleetMetrics) RecordDispatch(ctx context.Context, batch int) {
	fm.dispatches.Add(ctx, int64(batch))
}

// RecordMoveFailure records a failed relocation.
func (fm *FleetMetrics) RecordMoveFailure(ctx context.Context, host string) {
	fm.moveFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("host", host)))
}

// RecordStationFault records a station error or panic.
func (fm *FleetMetrics) RecordStationFault(ctx context.Context, place string) {
	fm.stationFaults.Add(ctx, 1, metric.WithAttributes(attribute.String("place", place)))
}

// RecordItinerarySteps records the history length of a finished run.
func (fm *FleetMetrics) RecordItinerarySteps(ctx context.Context, steps int) {
	fm.itinerarySteps.Record(ctx, int64(steps))
}

// RecordSentinelTrip records a watchdog rule trip.
func (fm *FleetMetrics) RecordSentinelTrip(ctx context.Context, place, action string) {
	fm.sentinelTrips.Add(ctx, 1, metric.WithAttributes(
		attribute.String("place", place),
		attribute.String("action", action),
	))
}

// IncrementBusy increments the busy agents gauge.
func (fm *FleetMetrics) IncrementBusy(ctx context.Context) {
	fm.busyAgents.Add(ctx, 1)
}

// DecrementBusy decrements the busy agents gauge.
func (fm *FleetMetrics) DecrementBusy(ctx context.Context) {
	fm.busyAgents.Add(ctx, -1)
}

// NoopMetrics is a no-op metrics recorder for tests or when metrics are disabled.
type NoopMetrics struct{}

// RecordDispatch is a no-op.
func (NoopMetrics) RecordDispatch(context.Context, int) {}

// RecordMoveFailure is a no-op.
func (NoopMetrics) RecordMoveFailure(context.Context, string) {}

// RecordStationFault is a no-op.
func (NoopMetrics) RecordStationFault(context.Context, string) {}

// RecordItinerarySteps is a no-op.
func (NoopMetrics) RecordItinerarySteps(context.Context, int) {}

// RecordSentinelTrip is a no-op.
func (NoopMetrics) RecordSentinelTrip(context.Context, string, string) {}

// IncrementBusy is a no-op.
func (NoopMetrics) IncrementBusy(context.Context) {}

// DecrementBusy is a no-op.
func (NoopMetrics) DecrementBusy(context.Context) {}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*FleetMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
