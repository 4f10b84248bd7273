// Package config provides domain models for kvguard configuration.
package config

import "time"

// Backend names accepted for cache.backend and rate_limit.backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Trace exporters accepted for telemetry.trace_exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Limiter strategies accepted for rate_limit.strategy.
const (
	StrategyFixedWindow   = "fixed_window"
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
)

// Config represents the complete kvguard configuration.
type Config struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`
	// Description describes the deployment.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Redis is the connection shared by every redis-backed component.
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
	// Cache contains cache settings.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
	// RateLimit contains rate limiter settings.
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	// Logging contains logger settings.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry contains metrics settings.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	// Resilience contains circuit breaker settings for the cache store.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. It takes precedence over Address.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Address is host:port.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Password is the AUTH password.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB is the database number.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
	// PoolSize is the maximum number of socket connections.
	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`
	// DialTimeout bounds connection establishment.
	DialTimeout Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty"`
	// ReadTimeout bounds socket reads.
	ReadTimeout Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	// WriteTimeout bounds socket writes.
	WriteTimeout Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
}

// CacheConfig configures the cache layer.
type CacheConfig struct {
	// Backend is memory or redis (default: memory).
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// DefaultTTL applies when Set is called without a TTL (default: 1h).
	DefaultTTL Duration `json:"default_ttl,omitempty" yaml:"default_ttl,omitempty"`
	// KeyPrefix namespaces every cache key.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	// MaxSize bounds the memory backend.
	MaxSize int `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	// CleanupInterval controls how often the memory backend drops expired
	// entries (default: 1m).
	CleanupInterval Duration `json:"cleanup_interval,omitempty" yaml:"cleanup_interval,omitempty"`
	// LocalSize enables an in-process tier in front of redis.
	LocalSize int `json:"local_size,omitempty" yaml:"local_size,omitempty"`
	// LocalTTL bounds staleness of the in-process tier.
	LocalTTL Duration `json:"local_ttl,omitempty" yaml:"local_ttl,omitempty"`
	// Fallback recomputes values when the store is unreachable.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// Backend is memory or redis (default: memory).
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Strategy is fixed_window, sliding_window or token_bucket.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	// Points is the budget per window (default: 5).
	Points int `json:"points,omitempty" yaml:"points,omitempty"`
	// Duration is the window length (default: 60s).
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	// KeyPrefix namespaces limiter keys (default: ratelimit:).
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	// SweepInterval controls how often idle memory buckets are dropped.
	SweepInterval Duration `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
	// FailOpen admits requests when the limiter itself fails.
	FailOpen bool `json:"fail_open,omitempty" yaml:"fail_open,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is console or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig configures metric instruments and action tracing.
type TelemetryConfig struct {
	// Enabled records cache and limiter metrics.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// ServiceName names the meter and trace resource (default: kvguard).
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// TraceExporter is none, stdout or otlp (default: none).
	TraceExporter string `json:"trace_exporter,omitempty" yaml:"trace_exporter,omitempty"`
	// TraceEndpoint is the OTLP gRPC collector address (default: localhost:4317).
	TraceEndpoint string `json:"trace_endpoint,omitempty" yaml:"trace_endpoint,omitempty"`
	// TraceInsecure disables TLS towards the collector.
	TraceInsecure bool `json:"trace_insecure,omitempty" yaml:"trace_insecure,omitempty"`
	// SampleRate is the fraction of actions traced (default: 1).
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// ResilienceConfig contains resilience settings.
type ResilienceConfig struct {
	// CircuitBreaker guards the cache store.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Enabled enables circuit breaker.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests int `json:"half_open_requests,omitempty" yaml:"half_open_requests,omitempty"`
}

// Default returns a configuration with every default filled in.
func Default() Config {
	var cfg Config
	cfg.Name = "kvguard"
	cfg.Version = "1.0"
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Redis.Address == "" && c.Redis.URL == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = Duration(5 * time.Second)
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = Duration(time.Hour)
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}

	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = BackendMemory
	}
	if c.RateLimit.Strategy == "" {
		c.RateLimit.Strategy = StrategyFixedWindow
	}
	if c.RateLimit.Points == 0 {
		c.RateLimit.Points = 5
	}
	if c.RateLimit.Duration == 0 {
		c.RateLimit.Duration = Duration(time.Minute)
	}
	if c.RateLimit.KeyPrefix == "" {
		c.RateLimit.KeyPrefix = "ratelimit:"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "kvguard"
	}
	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = ExporterNone
	}
	if c.Telemetry.TraceExporter == ExporterOTLP && c.Telemetry.TraceEndpoint == "" {
		c.Telemetry.TraceEndpoint = "localhost:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1
	}

	if c.Resilience.CircuitBreaker.Enabled {
		if c.Resilience.CircuitBreaker.Threshold == 0 {
			c.Resilience.CircuitBreaker.Threshold = 5
		}
		if c.Resilience.CircuitBreaker.Timeout == 0 {
			c.Resilience.CircuitBreaker.Timeout = Duration(30 * time.Second)
		}
		if c.Resilience.CircuitBreaker.HalfOpenRequests == 0 {
			c.Resilience.CircuitBreaker.HalfOpenRequests = 1
		}
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

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

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
