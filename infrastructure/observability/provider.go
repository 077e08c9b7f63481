// Package observability exports OpenTelemetry spans for station
// invocations.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/felixgeelhaar/itinerary/domain/config"
)

// ServiceName is the service.name resource attribute.
const ServiceName = "itinerary"

// ErrUnknownExporter is returned for an exporter other than none, stdout
// or otlp.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Settings is the tracing section plus what only the process knows.
type Settings struct {
	config.TracingConfig

	Version string

	// Writer receives stdout spans; nil means os.Stdout.
	Writer io.Writer

	BatchTimeout time.Duration
}

// FromTracing fills Settings for tc with the defaults of a process at
// version.
func FromTracing(tc config.TracingConfig, version string) Settings {
	if tc.Environment == "" {
		tc.Environment = "development"
	}
	if tc.SampleRate == 0 {
		tc.SampleRate = 1
	}
	return Settings{TracingConfig: tc, Version: version, BatchTimeout: 5 * time.Second}
}

// Provider owns the tracer provider installed for the process.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// New builds the exporter for s. Any exporter but none is installed as the
// global tracer provider.
func New(ctx context.Context, s Settings) (*Provider, error) {
	exp, err := newExporter(ctx, s)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(ServiceName)}, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(s.Version),
		semconv.DeploymentEnvironment(s.Environment),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(s.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(s.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp, tracer: tp.Tracer(ServiceName)}, nil
}

// newExporter returns nil for the none exporter.
func newExporter(ctx context.Context, s Settings) (sdktrace.SpanExporter, error) {
	switch s.Exporter {
	case "", config.ExporterNone:
		return nil, nil
	case config.ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if s.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(s.Writer))
		}
		exp, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return exp, nil
	case config.ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.Endpoint)}
		if s.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, s.Exporter)
	}
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

// Tracer returns the tracer of the installed provider.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
