// Package config provides domain models for itinerary configuration.
package config

import "time"

// Config represents the complete itinerary configuration.
type Config struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name" yaml:"name" toml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version" toml:"version"`

	// Agent contains agent and pool settings.
	Agent AgentConfig `json:"agent,omitempty" yaml:"agent,omitempty" toml:"agent,omitempty"`
	// Stages overrides the default stage table.
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty" toml:"stages,omitempty"`
	// Watcher configures the station time limit guard.
	Watcher WatcherConfig `json:"watcher,omitempty" yaml:"watcher,omitempty" toml:"watcher,omitempty"`
	// Sentinel configures the fleet watchdog.
	Sentinel SentinelConfig `json:"sentinel,omitempty" yaml:"sentinel,omitempty" toml:"sentinel,omitempty"`
	// Transport configures agent relocation.
	Transport TransportConfig `json:"transport,omitempty" yaml:"transport,omitempty" toml:"transport,omitempty"`
	// Storage configures the completion report store.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty" toml:"storage,omitempty"`
	// Logging configures the logger.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty" toml:"logging,omitempty"`
	// Tracing configures span export.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty" toml:"tracing,omitempty"`
	// Stations lists scripted stations to register.
	Stations []StationConfig `json:"stations,omitempty" yaml:"stations,omitempty" toml:"stations,omitempty"`
}

// AgentConfig contains agent behavior settings.
type AgentConfig struct {
	// PoolSize is the number of agents (0 = sized from memory).
	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size,omitempty" toml:"pool_size,omitempty"`
	// Batch selects batch agents.
	Batch bool `json:"batch,omitempty" yaml:"batch,omitempty" toml:"batch,omitempty"`
	// MaxMoveErrors is the number of failed relocations tolerated per run.
	MaxMoveErrors int `json:"max_move_errors,omitempty" yaml:"max_move_errors,omitempty" toml:"max_move_errors,omitempty"`
	// MaxItinerarySteps caps the transform history of a payload.
	MaxItinerarySteps int `json:"max_itinerary_steps,omitempty" yaml:"max_itinerary_steps,omitempty" toml:"max_itinerary_steps,omitempty"`
}

// StageConfig defines one stage of a custom stage table.
type StageConfig struct {
	// Name is the stage name.
	Name string `json:"name" yaml:"name" toml:"name"`
	// Parallel marks the stage as parallel eligible.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty" toml:"parallel,omitempty"`
}

// WatcherConfig configures the station time limit guard.
type WatcherConfig struct {
	// Enabled turns the guard on.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	// DefaultLimit applies to stations without their own limit.
	DefaultLimit Duration `json:"default_limit,omitempty" yaml:"default_limit,omitempty" toml:"default_limit,omitempty"`
	// PollInterval is the monitor tick.
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty"`
}

// SentinelConfig configures the fleet watchdog.
type SentinelConfig struct {
	// Enabled turns the watchdog on.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	// PollInterval is the sampling period.
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty"`
	// Default applies to stations without their own rule.
	Default RuleConfig `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
	// Rules maps station simple names to rules.
	Rules map[string]RuleConfig `json:"rules,omitempty" yaml:"rules,omitempty" toml:"rules,omitempty"`
}

// RuleConfig configures one watchdog rule. Blank fields take the defaults.
type RuleConfig struct {
	// TimeLimit is how long agents may stay at the station.
	TimeLimit Duration `json:"time_limit,omitempty" yaml:"time_limit,omitempty" toml:"time_limit,omitempty"`
	// Threshold is the fraction of the pool that must be stuck.
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" toml:"threshold,omitempty"`
	// Action is one of NOTIFY, RECOVER, STOP, KILL, EXIT.
	Action string `json:"action,omitempty" yaml:"action,omitempty" toml:"action,omitempty"`
}

// TransportConfig configures agent relocation.
type TransportConfig struct {
	// Kind selects the transport (disabled, loopback).
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	// Resilient wraps the transport with bulkhead, breaker, retry and rate limit.
	Resilient bool `json:"resilient,omitempty" yaml:"resilient,omitempty" toml:"resilient,omitempty"`
	// MaxConcurrent caps concurrent relocations.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty" toml:"max_concurrent,omitempty"`
	// CircuitThreshold is the consecutive failures that open a host breaker.
	CircuitThreshold int `json:"circuit_threshold,omitempty" yaml:"circuit_threshold,omitempty" toml:"circuit_threshold,omitempty"`
	// CircuitTimeout is how long an open breaker stays open.
	CircuitTimeout Duration `json:"circuit_timeout,omitempty" yaml:"circuit_timeout,omitempty" toml:"circuit_timeout,omitempty"`
	// RetryAttempts is the attempts per relocation.
	RetryAttempts int `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty" toml:"retry_attempts,omitempty"`
	// RetryDelay is the initial backoff.
	RetryDelay Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty" toml:"retry_delay,omitempty"`
	// RateLimit is relocations per second per host (0 = unlimited).
	RateLimit int `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" toml:"rate_limit,omitempty"`
	// Burst is the rate limiter burst.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty" toml:"burst,omitempty"`
}

// StorageConfig configures the completion report store.
type StorageConfig struct {
	// Driver is one of none, memory, badger, sqlite, postgres, redis.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" toml:"driver,omitempty"`
	// DSN is the sqlite or postgres connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" toml:"dsn,omitempty"`
	// Dir is the badger data directory (empty = in memory).
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
	// Address is the redis address.
	Address string `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"`
	// Password is the redis password.
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	// DB is the redis database.
	DB int `json:"db,omitempty" yaml:"db,omitempty" toml:"db,omitempty"`
	// KeyPrefix namespaces badger and redis keys.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty" toml:"key_prefix,omitempty"`
	// Schema holds the postgres reports table.
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty" toml:"schema,omitempty"`
	// SyncWrites makes badger fsync every report.
	SyncWrites bool `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty" toml:"sync_writes,omitempty"`
	// TTL expires redis reports after this age (0 = keep).
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty" toml:"ttl,omitempty"`
}

// KeyNamespace returns the prefix put in front of badger and redis keys.
func (s StorageConfig) KeyNamespace() string {
	if s.KeyPrefix == "" {
		return ""
	}
	return s.KeyPrefix + ":"
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty" toml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter is one of none, stdout, otlp.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty" toml:"exporter,omitempty"`
	// Endpoint is the OTLP collector address.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	// Insecure disables TLS to the collector.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty" toml:"insecure,omitempty"`
	// SampleRate is the trace sampling ratio.
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty" toml:"sample_rate,omitempty"`
	// Environment is the deployment environment attribute.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty" toml:"environment,omitempty"`
}

// StationConfig defines a scripted station.
type StationConfig struct {
	// Name is the station simple name.
	Name string `json:"name" yaml:"name" toml:"name"`
	// DataType is the form the station accepts (default "*").
	DataType string `json:"data_type,omitempty" yaml:"data_type,omitempty" toml:"data_type,omitempty"`
	// ServiceName is the service the station offers.
	ServiceName string `json:"service_name" yaml:"service_name" toml:"service_name"`
	// ServiceType is the stage the station runs in.
	ServiceType string `json:"service_type" yaml:"service_type" toml:"service_type"`
	// Host is the http://host:port/ the station lives at.
	Host string `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty"`
	// Cost and Quality rank the station (default 50).
	Cost    int `json:"cost,omitempty" yaml:"cost,omitempty" toml:"cost,omitempty"`
	Quality int `json:"quality,omitempty" yaml:"quality,omitempty" toml:"quality,omitempty"`

	// SetForm replaces the current form.
	SetForm string `json:"set_form,omitempty" yaml:"set_form,omitempty" toml:"set_form,omitempty"`
	// PushForm pushes forms, last on top.
	PushForm []string `json:"push_form,omitempty" yaml:"push_form,omitempty" toml:"push_form,omitempty"`
	// Pop removes the current form.
	Pop bool `json:"pop,omitempty" yaml:"pop,omitempty" toml:"pop,omitempty"`
	// Sleep delays processing.
	Sleep Duration `json:"sleep,omitempty" yaml:"sleep,omitempty" toml:"sleep,omitempty"`
	// Fail makes processing return this error message.
	Fail string `json:"fail,omitempty" yaml:"fail,omitempty" toml:"fail,omitempty"`
	// EmptyOK allows the station to leave no forms.
	EmptyOK bool `json:"empty_ok,omitempty" yaml:"empty_ok,omitempty" toml:"empty_ok,omitempty"`
	// Timeout is the station time limit (0 = guard default).
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	// Sprout creates one new payload per listed form.
	Sprout []string `json:"sprout,omitempty" yaml:"sprout,omitempty" toml:"sprout,omitempty"`
}

// Host and location defaults for scripted stations.
const (
	DefaultHost     = "http://localhost:8001/"
	DefaultDataType = "*"
)

// Transport kinds.
const (
	TransportDisabled = "disabled"
	TransportLoopback = "loopback"
)

// Storage drivers.
const (
	StorageNone     = "none"
	StorageMemory   = "memory"
	StorageBadger   = "badger"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Tracing exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Default returns a configuration with every default filled in.
func Default() *Config {
	c := &Config{Name: "itinerary", Version: "1.0"}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Agent.MaxMoveErrors == 0 {
		c.Agent.MaxMoveErrors = 3
	}
	if c.Agent.MaxItinerarySteps == 0 {
		c.Agent.MaxItinerarySteps = 100
	}
	if c.Watcher.DefaultLimit == 0 {
		c.Watcher.DefaultLimit = Duration(30 * time.Second)
	}
	if c.Watcher.PollInterval == 0 {
		c.Watcher.PollInterval = Duration(100 * time.Millisecond)
	}
	if c.Sentinel.PollInterval == 0 {
		c.Sentinel.PollInterval = Duration(5 * time.Minute)
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportDisabled
	}
	if c.Transport.MaxConcurrent == 0 {
		c.Transport.MaxConcurrent = 8
	}
	if c.Transport.CircuitThreshold == 0 {
		c.Transport.CircuitThreshold = 5
	}
	if c.Transport.CircuitTimeout == 0 {
		c.Transport.CircuitTimeout = Duration(30 * time.Second)
	}
	if c.Transport.RetryAttempts == 0 {
		c.Transport.RetryAttempts = 3
	}
	if c.Transport.RetryDelay == 0 {
		c.Transport.RetryDelay = Duration(100 * time.Millisecond)
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "itinerary"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = ExporterNone
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	for i := range c.Stations {
		s := &c.Stations[i]
		if s.DataType == "" {
			s.DataType = DefaultDataType
		}
		if s.Host == "" {
			s.Host = DefaultHost
		}
		if s.Cost == 0 {
			s.Cost = 50
		}
		if s.Quality == 0 {
			s.Quality = 50
		}
	}
}

// Duration is a time.Duration that supports JSON, YAML and TOML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Handle null
	if string(b) == "null" {
		return nil
	}

	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	// Parse duration
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(b []byte) error {
	dur, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
