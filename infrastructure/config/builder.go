package config

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domainconfig "github.com/felixgeelhaar/kvguard/domain/config"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
	"github.com/felixgeelhaar/kvguard/infrastructure/resilience"
	"github.com/felixgeelhaar/kvguard/infrastructure/storage/redis"
	"github.com/felixgeelhaar/kvguard/infrastructure/telemetry"
)

// Builder builds component settings from configuration.
type Builder struct {
	config *domainconfig.Config
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.Config) *Builder {
	return &Builder{config: config}
}

// BuildResult contains the component settings derived from configuration.
type BuildResult struct {
	// Redis is the connection configuration, set when any backend is redis.
	Redis *redis.Config
	// Cache holds cache store settings.
	Cache CacheSettings
	// Limiter holds rate limiter settings.
	Limiter LimiterSettings
	// Logging is the logger configuration.
	Logging logging.Config
	// Breaker holds circuit breaker options; nil when disabled.
	Breaker []resilience.Option
	// Metrics is the metrics configuration; nil when telemetry is disabled.
	Metrics *telemetry.MetricsConfig
	// Tracing is the trace pipeline configuration; nil without an exporter.
	Tracing *telemetry.TracingConfig
}

// CacheSettings configures the cache store and typed cache.
type CacheSettings struct {
	Backend    string
	DefaultTTL time.Duration
	MaxSize    int
	Fallback   bool
	// CleanupInterval is how often the memory backend drops expired
	// entries; zero for redis.
	CleanupInterval time.Duration
}

// LimiterSettings configures the rate limiter.
type LimiterSettings struct {
	Backend       string
	Strategy      string
	Policy        ratelimit.Policy
	SweepInterval time.Duration
	FailOpen      bool
}

// Build builds the component settings. Defaults are applied to a copy, so
// the builder accepts configurations that were not loaded through Loader.
func (b *Builder) Build() (*BuildResult, error) {
	cfg := *b.config
	cfg.ApplyDefaults()

	result := &BuildResult{
		Logging: logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: logging.DefaultConfig().Output,
		},
	}

	result.Cache = CacheSettings{
		Backend:    cfg.Cache.Backend,
		DefaultTTL: cfg.Cache.DefaultTTL.Duration(),
		MaxSize:    cfg.Cache.MaxSize,
		Fallback:   cfg.Cache.Fallback,
	}
	if cfg.Cache.Backend == domainconfig.BackendMemory {
		result.Cache.CleanupInterval = cfg.Cache.CleanupInterval.Duration()
		if result.Cache.CleanupInterval == 0 {
			result.Cache.CleanupInterval = time.Minute
		}
	}

	if err := b.buildLimiter(&cfg, result); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %w", domainconfig.ErrBuildFailed, err)
	}

	if cfg.Cache.Backend == domainconfig.BackendRedis || cfg.RateLimit.Backend == domainconfig.BackendRedis {
		result.Redis = buildRedis(&cfg)
	}

	if cb := cfg.Resilience.CircuitBreaker; cb.Enabled {
		result.Breaker = []resilience.Option{
			resilience.WithName(cfg.Cache.Backend),
			resilience.WithThreshold(cb.Threshold),
			resilience.WithTimeout(cb.Timeout.Duration()),
			resilience.WithHalfOpenRequests(cb.HalfOpenRequests),
		}
	}

	if cfg.Telemetry.Enabled {
		metrics := telemetry.DefaultMetricsConfig()
		metrics.Attributes = []attribute.KeyValue{
			attribute.String("service.name", cfg.Telemetry.ServiceName),
		}
		result.Metrics = &metrics
	}

	if t := cfg.Telemetry; t.TraceExporter != domainconfig.ExporterNone {
		result.Tracing = &telemetry.TracingConfig{
			ServiceName:    t.ServiceName,
			ServiceVersion: cfg.Version,
			Exporter:       t.TraceExporter,
			Endpoint:       t.TraceEndpoint,
			Insecure:       t.TraceInsecure,
			SampleRate:     t.SampleRate,
		}
	}

	return result, nil
}

// buildLimiter derives the limiter policy.
func (b *Builder) buildLimiter(cfg *domainconfig.Config, result *BuildResult) error {
	rl := cfg.RateLimit
	policy := ratelimit.Policy{
		Points:    rl.Points,
		Duration:  rl.Duration.Duration(),
		KeyPrefix: rl.KeyPrefix,
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if rl.Backend == domainconfig.BackendRedis && rl.Strategy != domainconfig.StrategyFixedWindow {
		return fmt.Errorf("strategy %q is not available on the redis backend", rl.Strategy)
	}

	sweep := rl.SweepInterval.Duration()
	if sweep == 0 {
		sweep = policy.Duration
	}

	result.Limiter = LimiterSettings{
		Backend:       rl.Backend,
		Strategy:      rl.Strategy,
		Policy:        policy,
		SweepInterval: sweep,
		FailOpen:      rl.FailOpen,
	}
	return nil
}

// buildRedis maps the connection settings onto the store configuration,
// keeping store defaults for anything left unset.
func buildRedis(cfg *domainconfig.Config) *redis.Config {
	rc := redis.DefaultConfig()
	r := cfg.Redis

	rc.URL = r.URL
	if r.Address != "" {
		rc.Address = r.Address
	}
	rc.Password = r.Password
	rc.DB = r.DB
	if r.PoolSize > 0 {
		rc.PoolSize = r.PoolSize
	}
	if r.DialTimeout > 0 {
		rc.DialTimeout = r.DialTimeout.Duration()
	}
	if r.ReadTimeout > 0 {
		rc.ReadTimeout = r.ReadTimeout.Duration()
	}
	if r.WriteTimeout > 0 {
		rc.WriteTimeout = r.WriteTimeout.Duration()
	}

	if cfg.Cache.KeyPrefix != "" {
		rc.KeyPrefix = cfg.Cache.KeyPrefix
	}
	if cfg.Cache.LocalSize > 0 {
		rc.LocalCacheSize = cfg.Cache.LocalSize
		if cfg.Cache.LocalTTL > 0 {
			rc.LocalCacheTTL = cfg.Cache.LocalTTL.Duration()
		}
	}
	return &rc
}
