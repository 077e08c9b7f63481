package telemetry

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const placeDurationMetric = "place.duration"

// PlaceStat summarizes the recorded invocations of one station.
type PlaceStat struct {
	Place string
	Count uint64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Average returns the mean invocation time.
func (s PlaceStat) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// PlaceTimings records station invocation times into a private meter
// provider so they can be read back for the operator dump.
type PlaceTimings struct {
	mu        sync.RWMutex
	reader    *sdkmetric.ManualReader
	provider  *sdkmetric.MeterProvider
	histogram metric.Float64Histogram
}

// NewPlaceTimings creates an empty timing table.
func NewPlaceTimings() (*PlaceTimings, error) {
	t := &PlaceTimings{}
	if err := t.reset(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *PlaceTimings) reset() error {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	histogram, err := provider.Meter(MeterName).Float64Histogram(
		placeDurationMetric,
		metric.WithDescription("Duration of station invocations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("create place histogram: %w", err)
	}

	old := t.provider
	t.reader = reader
	t.provider = provider
	t.histogram = histogram

	if old != nil {
		_ = old.Shutdown(context.Background())
	}
	return nil
}

// Record adds one invocation of place.
func (t *PlaceTimings) Record(ctx context.Context, place string, d time.Duration) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.histogram.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("place", place)))
}

// Reset discards all recorded timings.
func (t *PlaceTimings) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.reset()
}

// Snapshot returns per-station stats sorted by station name.
func (t *PlaceTimings) Snapshot(ctx context.Context) ([]PlaceStat, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect place timings: %w", err)
	}

	var stats []PlaceStat
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != placeDurationMetric {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				continue
			}
			for _, dp := range hist.DataPoints {
				if dp.Count == 0 {
					continue
				}
				s := PlaceStat{
					Count: dp.Count,
					Total: millis(dp.Sum),
				}
				if v, ok := dp.Attributes.Value("place"); ok {
					s.Place = v.AsString()
				}
				if v, ok := dp.Min.Value(); ok {
					s.Min = millis(v)
				}
				if v, ok := dp.Max.Value(); ok {
					s.Max = millis(v)
				}
				stats = append(stats, s)
			}
		}
	}

	slices.SortFunc(stats, func(a, b PlaceStat) int {
		switch {
		case a.Place < b.Place:
			return -1
		case a.Place > b.Place:
			return 1
		default:
			return 0
		}
	})
	return stats, nil
}

// Dump writes the plain-text timing table.
func (t *PlaceTimings) Dump(ctx context.Context, w io.Writer) error {
	stats, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, "Place Timings:"); err != nil {
		return err
	}
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "  (no invocations)")
		return err
	}
	for _, s := range stats {
		if _, err := fmt.Fprintf(w, "  %-32s count=%-6d avg=%-12s min=%-12s max=%s\n",
			s.Place, s.Count, s.Average(), s.Min, s.Max); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown releases the private meter provider.
func (t *PlaceTimings) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.provider.Shutdown(ctx)
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
