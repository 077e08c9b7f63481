package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/itinerary/domain/config"
)

const sampleYAML = `
name: pipeline
version: "1.0"
agent:
  pool_size: 4
  max_move_errors: 2
watcher:
  enabled: true
  default_limit: 2s
sentinel:
  enabled: true
  poll_interval: 1m
  rules:
    SlowPlace:
      time_limit: 10m
      threshold: 0.5
      action: KILL
stations:
  - name: IdentPlace
    service_name: IDENT
    service_type: ID
    set_form: TEXT
`

func TestLoader_LoadFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "yaml", file: "itinerary.yaml", content: sampleYAML},
		{name: "json", file: "itinerary.json", content: `{
  "name": "pipeline",
  "agent": {"pool_size": 4, "max_move_errors": 2},
  "watcher": {"enabled": true, "default_limit": "2s"},
  "sentinel": {"enabled": true, "poll_interval": "1m",
    "rules": {"SlowPlace": {"time_limit": "10m", "threshold": 0.5, "action": "KILL"}}},
  "stations": [{"name": "IdentPlace", "service_name": "IDENT", "service_type": "ID", "set_form": "TEXT"}]
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write temp file: %v", err)
			}

			cfg, err := NewLoader().LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}

			if cfg.Name != "pipeline" {
				t.Errorf("Name = %s, want pipeline", cfg.Name)
			}
			if cfg.Agent.PoolSize != 4 || cfg.Agent.MaxMoveErrors != 2 {
				t.Errorf("Agent = %+v", cfg.Agent)
			}
			if cfg.Agent.MaxItinerarySteps != 100 {
				t.Errorf("MaxItinerarySteps = %d, want default 100", cfg.Agent.MaxItinerarySteps)
			}
			if cfg.Watcher.DefaultLimit.Duration() != 2*time.Second {
				t.Errorf("DefaultLimit = %v, want 2s", cfg.Watcher.DefaultLimit.Duration())
			}
			if cfg.Watcher.PollInterval.Duration() != 100*time.Millisecond {
				t.Errorf("PollInterval = %v, want default 100ms", cfg.Watcher.PollInterval.Duration())
			}
			rule := cfg.Sentinel.Rules["SlowPlace"]
			if rule.Threshold != 0.5 || rule.Action != "KILL" || rule.TimeLimit.Duration() != 10*time.Minute {
				t.Errorf("SlowPlace rule = %+v", rule)
			}
			if len(cfg.Stations) != 1 {
				t.Fatalf("len(Stations) = %d, want 1", len(cfg.Stations))
			}
			if s := cfg.Stations[0]; s.Host != config.DefaultHost || s.DataType != config.DefaultDataType || s.Cost != 50 {
				t.Errorf("station defaults not applied: %+v", s)
			}
		})
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ini := filepath.Join(dir, "itinerary.ini")
	if err := os.WriteFile(ini, []byte("name = x"), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	sub := filepath.Join(dir, "conf.yaml")
	if err := os.Mkdir(sub, 0o700); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "not found", path: filepath.Join(dir, "missing.yaml"), want: config.ErrConfigNotFound},
		{name: "directory", path: sub, want: config.ErrInvalidFormat},
		{name: "unsupported format", path: ini, want: config.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLoader().LoadFile(tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadFile() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoader_LoadString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		format  Format
		want    error
	}{
		{name: "empty yaml takes defaults", content: "", format: FormatYAML},
		{name: "invalid yaml", content: "agent: [", format: FormatYAML, want: config.ErrInvalidFormat},
		{name: "unknown field", content: "agnet:\n  pool_size: 1\n", format: FormatYAML, want: config.ErrInvalidFormat},
		{name: "invalid json", content: "{", format: FormatJSON, want: config.ErrInvalidFormat},
		{name: "unsupported", content: "", format: Format("ini"), want: config.ErrUnsupportedFormat},
		{name: "empty toml takes defaults", content: "", format: FormatTOML},
		{name: "invalid toml", content: "agent = [", format: FormatTOML, want: config.ErrInvalidFormat},
		{name: "unknown toml field", content: "[agnet]\npool_size = 1\n", format: FormatTOML, want: config.ErrInvalidFormat},
		{name: "validation", content: "agent:\n  pool_size: -1\n", format: FormatYAML, want: config.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := NewLoader().LoadString(tt.content, tt.format)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("LoadString() error = %v", err)
				}
				if cfg.Storage.Driver != config.StorageMemory {
					t.Errorf("Storage.Driver = %s, want memory", cfg.Storage.Driver)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadString() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoader_ValidationErrorsReachable(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().LoadString("logging:\n  level: loud\n", FormatYAML)

	var verrs config.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("LoadString() error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 1 || verrs[0].Path != "logging.level" {
		t.Errorf("ValidationErrors = %v", verrs)
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader(WithValidation(false)).LoadString("agent:\n  pool_size: -1\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Agent.PoolSize != -1 {
		t.Errorf("PoolSize = %d, want -1", cfg.Agent.PoolSize)
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("ITINERARY_TEST_POOL", "7")
	t.Setenv("ITINERARY_TEST_REDIS", "")

	content := `
agent:
  pool_size: ${ITINERARY_TEST_POOL}
storage:
  driver: redis
  address: ${ITINERARY_TEST_REDIS:-cache:6379}
`
	cfg, err := NewLoader().LoadString(content, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Agent.PoolSize != 7 {
		t.Errorf("PoolSize = %d, want 7", cfg.Agent.PoolSize)
	}
	if cfg.Storage.Address != "cache:6379" {
		t.Errorf("Storage.Address = %s, want cache:6379", cfg.Storage.Address)
	}

	_, err = NewLoader(WithEnvExpansion(false)).LoadString(content, FormatYAML)
	if !errors.Is(err, config.ErrInvalidFormat) {
		t.Errorf("LoadString() without expansion error = %v, want parse failure", err)
	}
}

func TestFormatFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Format
	}{
		{"a.yaml", FormatYAML},
		{"a.YML", FormatYAML},
		{"a.json", FormatJSON},
	}
	for _, tt := range tests {
		got, err := FormatFor(tt.path)
		if err != nil || got != tt.want {
			t.Errorf("FormatFor(%s) = %s, %v, want %s", tt.path, got, err, tt.want)
		}
	}
	if _, err := FormatFor("a.ini"); !errors.Is(err, config.ErrUnsupportedFormat) {
		t.Errorf("FormatFor(a.ini) error = %v", err)
	}
}

func TestLoader_LoadTOML(t *testing.T) {
	t.Parallel()

	content := `
name = "toml-pipeline"

[agent]
pool_size = 4
batch = true

[watcher]
enabled = true
default_limit = "2s"

[sentinel.rules.SlowPlace]
time_limit = "1m"
threshold = 0.5
action = "STOP"

[[stations]]
name = "IdPlace"
service_name = "ID"
service_type = "ID"
set_form = "TEXT"
`
	cfg, err := NewLoader().LoadString(content, FormatTOML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Name != "toml-pipeline" || cfg.Agent.PoolSize != 4 || !cfg.Agent.Batch {
		t.Errorf("agent = %+v, want pool 4 batch for toml-pipeline", cfg.Agent)
	}
	if cfg.Watcher.DefaultLimit.Duration() != 2*time.Second {
		t.Errorf("DefaultLimit = %v, want 2s", cfg.Watcher.DefaultLimit.Duration())
	}
	rule, ok := cfg.Sentinel.Rules["SlowPlace"]
	if !ok || rule.TimeLimit.Duration() != time.Minute || rule.Action != "STOP" {
		t.Errorf("Rules[SlowPlace] = %+v, want 1m STOP", rule)
	}
	if len(cfg.Stations) != 1 || cfg.Stations[0].Host != config.DefaultHost {
		t.Errorf("Stations = %+v, want IdPlace on the default host", cfg.Stations)
	}
}
