package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates itinerary configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateAgent(config)
	v.validateStages(config)
	v.validateWatcher(config)
	v.validateSentinel(config)
	v.validateTransport(config)
	v.validateStorage(config)
	v.validateLogging(config)
	v.validateTracing(config)
	v.validateStations(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateAgent(config *Config) {
	if config.Agent.PoolSize < 0 {
		v.addError("agent.pool_size", "pool_size must be non-negative")
	}
	if config.Agent.MaxMoveErrors < 0 {
		v.addError("agent.max_move_errors", "max_move_errors must be non-negative")
	}
	if config.Agent.MaxItinerarySteps < 0 {
		v.addError("agent.max_itinerary_steps", "max_itinerary_steps must be non-negative")
	}
}

func (v *Validator) validateStages(config *Config) {
	seen := make(map[string]bool)
	for i, s := range config.Stages {
		path := fmt.Sprintf("stages[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			v.addError(path+".name", "stage name is required")
			continue
		}
		if seen[s.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate stage: %s", s.Name))
		}
		seen[s.Name] = true
	}
}

func (v *Validator) validateWatcher(config *Config) {
	if config.Watcher.DefaultLimit < 0 {
		v.addError("watcher.default_limit", "default_limit must be non-negative")
	}
	if config.Watcher.PollInterval < 0 {
		v.addError("watcher.poll_interval", "poll_interval must be non-negative")
	}
}

var validActions = map[string]bool{
	"NOTIFY": true, "RECOVER": true, "STOP": true, "KILL": true, "EXIT": true,
}

func (v *Validator) validateSentinel(config *Config) {
	if config.Sentinel.PollInterval < 0 {
		v.addError("sentinel.poll_interval", "poll_interval must be non-negative")
	}
	v.validateRule("sentinel.default", config.Sentinel.Default)
	for name, rule := range config.Sentinel.Rules {
		v.validateRule(fmt.Sprintf("sentinel.rules.%s", name), rule)
	}
}

func (v *Validator) validateRule(path string, rule RuleConfig) {
	if rule.TimeLimit < 0 {
		v.addError(path+".time_limit", "time_limit must be positive")
	}
	if rule.Threshold < 0 || rule.Threshold > 1 {
		v.addError(path+".threshold", "threshold must be in (0, 1]")
	}
	if rule.Action != "" && !validActions[strings.ToUpper(rule.Action)] {
		v.addError(path+".action", fmt.Sprintf("invalid action: %s", rule.Action))
	}
}

func (v *Validator) validateTransport(config *Config) {
	switch config.Transport.Kind {
	case "", TransportDisabled, TransportLoopback:
	default:
		v.addError("transport.kind", fmt.Sprintf("unknown transport: %s", config.Transport.Kind))
	}
	if config.Transport.MaxConcurrent < 0 {
		v.addError("transport.max_concurrent", "max_concurrent must be non-negative")
	}
	if config.Transport.RetryAttempts < 0 {
		v.addError("transport.retry_attempts", "retry_attempts must be non-negative")
	}
	if config.Transport.RateLimit < 0 {
		v.addError("transport.rate_limit", "rate_limit must be non-negative")
	}
	if config.Transport.RateLimit > 0 && config.Transport.Burst <= 0 {
		v.addError("transport.burst", "burst must be positive when rate_limit is set")
	}
}

func (v *Validator) validateStorage(config *Config) {
	switch config.Storage.Driver {
	case "", StorageNone, StorageMemory, StorageBadger:
	case StorageSQLite, StoragePostgres:
		if config.Storage.DSN == "" {
			v.addError("storage.dsn", fmt.Sprintf("dsn is required for %s", config.Storage.Driver))
		}
	case StorageRedis:
		if config.Storage.Address == "" {
			v.addError("storage.address", "address is required for redis")
		}
	default:
		v.addError("storage.driver", fmt.Sprintf("unknown driver: %s", config.Storage.Driver))
	}
	if config.Storage.TTL < 0 {
		v.addError("storage.ttl", "ttl must be non-negative")
	}
}

func (v *Validator) validateLogging(config *Config) {
	if config.Logging.Level != "" {
		validLevels := map[string]bool{
			"trace": true, "debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[strings.ToLower(config.Logging.Level)] {
			v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
		}
	}
	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}

func (v *Validator) validateTracing(config *Config) {
	switch config.Tracing.Exporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if config.Tracing.Endpoint == "" {
			v.addError("tracing.endpoint", "endpoint is required for otlp")
		}
	default:
		v.addError("tracing.exporter", fmt.Sprintf("unknown exporter: %s", config.Tracing.Exporter))
	}
	if config.Tracing.SampleRate < 0 || config.Tracing.SampleRate > 1 {
		v.addError("tracing.sample_rate", "sample_rate must be in [0, 1]")
	}
}

func (v *Validator) validateStations(config *Config) {
	seen := make(map[string]bool)
	for i, s := range config.Stations {
		path := fmt.Sprintf("stations[%d]", i)
		if s.Name == "" {
			v.addError(path+".name", "station name is required")
		} else if strings.ContainsAny(s.Name, "/.$") {
			v.addError(path+".name", fmt.Sprintf("invalid station name: %s", s.Name))
		}
		if s.ServiceName == "" {
			v.addError(path+".service_name", "service_name is required")
		}
		if s.ServiceType == "" {
			v.addError(path+".service_type", "service_type is required")
		}
		if s.Host != "" && !strings.HasPrefix(s.Host, "http://") {
			v.addError(path+".host", fmt.Sprintf("host must start with http://: %s", s.Host))
		}
		if s.Cost < 0 {
			v.addError(path+".cost", "cost must be non-negative")
		}
		if s.Quality < 0 || s.Quality > 100 {
			v.addError(path+".quality", "quality must be in [0, 100]")
		}
		if s.Pop && s.SetForm != "" {
			v.addError(path+".pop", "pop and set_form are exclusive")
		}
		key := s.Host + s.Name
		if s.Name != "" && seen[key] {
			v.addError(path+".name", fmt.Sprintf("duplicate station: %s", s.Name))
		}
		seen[key] = true
	}
}
