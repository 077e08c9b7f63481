package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/config"
)

func TestFromTracing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tc       config.TracingConfig
		wantEnv  string
		wantRate float64
	}{
		{"defaults", config.TracingConfig{}, "development", 1},
		{"explicit", config.TracingConfig{Environment: "staging", SampleRate: 0.25}, "staging", 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := FromTracing(tt.tc, "2.0.0")
			if s.Environment != tt.wantEnv {
				t.Errorf("Environment = %q, want %q", s.Environment, tt.wantEnv)
			}
			if s.SampleRate != tt.wantRate {
				t.Errorf("SampleRate = %v, want %v", s.SampleRate, tt.wantRate)
			}
			if s.Version != "2.0.0" {
				t.Errorf("Version = %q, want 2.0.0", s.Version)
			}
		})
	}
}

func TestSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestProvider_None(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), FromTracing(config.TracingConfig{Exporter: config.ExporterNone}, "test"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestProvider_UnknownExporter(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), FromTracing(config.TracingConfig{Exporter: "zipkin"}, "test"))
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("New() error = %v, want ErrUnknownExporter", err)
	}
}

func TestProvider_StdoutPlaceSpan(t *testing.T) {
	var buf bytes.Buffer
	s := FromTracing(config.TracingConfig{Exporter: config.ExporterStdout}, "test")
	s.Writer = &buf
	s.BatchTimeout = time.Millisecond
	p, err := New(context.Background(), s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := StartPlaceSpan(context.Background(), "*.UNZIP.TRANSFORM.http://h:1/ZipPlace", "Agent-1-doc", 1)
	EndSpan(span, errors.New("boom"))

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, PlaceSpanName) {
		t.Errorf("output is missing the %s span: %s", PlaceSpanName, out)
	}
	if !strings.Contains(out, "ZipPlace") {
		t.Errorf("output is missing the place attribute: %s", out)
	}
}
