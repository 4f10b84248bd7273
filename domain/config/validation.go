package config

import (
	"fmt"
	"strings"
	"time"
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

var (
	validBackends   = map[string]bool{BackendMemory: true, BackendRedis: true}
	validStrategies = map[string]bool{StrategyFixedWindow: true, StrategySlidingWindow: true, StrategyTokenBucket: true}
	validLevels     = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats    = map[string]bool{"console": true, "json": true}
	validExporters  = map[string]bool{ExporterNone: true, ExporterStdout: true, ExporterOTLP: true}
)

// Validator validates kvguard configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
// Zero values are treated as "use the default" and pass.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateRedis(config)
	v.validateCache(config)
	v.validateRateLimit(config)
	v.validateLogging(config)
	v.validateTelemetry(config)
	v.validateResilience(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *Config) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) usesRedis(config *Config) bool {
	return config.Cache.Backend == BackendRedis || config.RateLimit.Backend == BackendRedis
}

func (v *Validator) validateRedis(config *Config) {
	r := config.Redis
	if v.usesRedis(config) && r.URL == "" && r.Address == "" {
		v.addError("redis.address", "address or url is required for the redis backend")
	}
	if r.URL != "" && !strings.HasPrefix(r.URL, "redis://") && !strings.HasPrefix(r.URL, "rediss://") && !strings.HasPrefix(r.URL, "unix://") {
		v.addError("redis.url", fmt.Sprintf("unsupported url scheme: %s", r.URL))
	}
	if r.DB < 0 {
		v.addError("redis.db", "db must be non-negative")
	}
	if r.PoolSize < 0 {
		v.addError("redis.pool_size", "pool_size must be non-negative")
	}
	for path, d := range map[string]Duration{
		"redis.dial_timeout":  r.DialTimeout,
		"redis.read_timeout":  r.ReadTimeout,
		"redis.write_timeout": r.WriteTimeout,
	} {
		if d < 0 {
			v.addError(path, "timeout must be non-negative")
		}
	}
}

func (v *Validator) validateCache(config *Config) {
	c := config.Cache
	if c.Backend != "" && !validBackends[c.Backend] {
		v.addError("cache.backend", fmt.Sprintf("invalid backend: %s", c.Backend))
	}
	if c.DefaultTTL != 0 && c.DefaultTTL.Duration() < time.Second {
		v.addError("cache.default_ttl", "default_ttl must be at least 1s")
	}
	if c.MaxSize < 0 {
		v.addError("cache.max_size", "max_size must be non-negative")
	}
	if c.CleanupInterval < 0 {
		v.addError("cache.cleanup_interval", "cleanup_interval must be non-negative")
	}
	if c.LocalSize < 0 {
		v.addError("cache.local_size", "local_size must be non-negative")
	}
	if c.LocalTTL < 0 {
		v.addError("cache.local_ttl", "local_ttl must be non-negative")
	}
	if c.LocalSize > 0 && c.Backend != BackendRedis {
		v.addError("cache.local_size", "local tier requires the redis backend")
	}
}

func (v *Validator) validateRateLimit(config *Config) {
	rl := config.RateLimit
	if rl.Backend != "" && !validBackends[rl.Backend] {
		v.addError("rate_limit.backend", fmt.Sprintf("invalid backend: %s", rl.Backend))
	}
	if rl.Strategy != "" {
		if !validStrategies[rl.Strategy] {
			v.addError("rate_limit.strategy", fmt.Sprintf("invalid strategy: %s", rl.Strategy))
		} else if rl.Strategy != StrategyFixedWindow && rl.Backend == BackendRedis {
			v.addError("rate_limit.strategy", fmt.Sprintf("strategy %s is only available with the memory backend", rl.Strategy))
		}
	}
	if rl.Points < 0 {
		v.addError("rate_limit.points", "points must be positive")
	}
	if rl.Duration < 0 {
		v.addError("rate_limit.duration", "duration must be positive")
	} else if rl.Duration != 0 && rl.Duration.Duration() < time.Millisecond {
		v.addError("rate_limit.duration", "duration must be at least 1ms")
	}
	if rl.SweepInterval < 0 {
		v.addError("rate_limit.sweep_interval", "sweep_interval must be non-negative")
	}
}

func (v *Validator) validateLogging(config *Config) {
	if l := config.Logging.Level; l != "" && !validLevels[strings.ToLower(l)] {
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", l))
	}
	if f := config.Logging.Format; f != "" && !validFormats[f] {
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", f))
	}
}

func (v *Validator) validateTelemetry(config *Config) {
	t := config.Telemetry
	if t.TraceExporter != "" && !validExporters[t.TraceExporter] {
		v.addError("telemetry.trace_exporter", fmt.Sprintf("invalid exporter: %s", t.TraceExporter))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.addError("telemetry.sample_rate", "sample_rate must be between 0 and 1")
	}
}

func (v *Validator) validateResilience(config *Config) {
	cb := config.Resilience.CircuitBreaker
	if !cb.Enabled {
		return
	}
	if cb.Threshold < 0 {
		v.addError("resilience.circuit_breaker.threshold", "threshold must be positive when enabled")
	}
	if cb.Timeout < 0 {
		v.addError("resilience.circuit_breaker.timeout", "timeout must be non-negative")
	}
	if cb.HalfOpenRequests < 0 {
		v.addError("resilience.circuit_breaker.half_open_requests", "half_open_requests must be non-negative")
	}
}
