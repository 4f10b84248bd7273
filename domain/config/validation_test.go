package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{Name: "api", Version: "1.0"}
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Config)
		wantErrPaths []string
	}{
		{
			name:   "minimal",
			mutate: func(*Config) {},
		},
		{
			name: "missing name and version",
			mutate: func(c *Config) {
				c.Name = ""
				c.Version = ""
			},
			wantErrPaths: []string{"name", "version"},
		},
		{
			name: "redis backend with url",
			mutate: func(c *Config) {
				c.Cache.Backend = BackendRedis
				c.Redis.URL = "rediss://user:pw@cache:6380/1"
			},
		},
		{
			name: "redis backend without address",
			mutate: func(c *Config) {
				c.RateLimit.Backend = BackendRedis
			},
			wantErrPaths: []string{"redis.address"},
		},
		{
			name: "bad redis url scheme",
			mutate: func(c *Config) {
				c.Redis.URL = "http://cache:6379"
			},
			wantErrPaths: []string{"redis.url"},
		},
		{
			name: "negative redis numbers",
			mutate: func(c *Config) {
				c.Redis.DB = -1
				c.Redis.PoolSize = -1
				c.Redis.ReadTimeout = Duration(-time.Second)
			},
			wantErrPaths: []string{"redis.db", "redis.pool_size", "redis.read_timeout"},
		},
		{
			name: "unknown cache backend",
			mutate: func(c *Config) {
				c.Cache.Backend = "memcached"
			},
			wantErrPaths: []string{"cache.backend"},
		},
		{
			name: "sub-second default ttl",
			mutate: func(c *Config) {
				c.Cache.DefaultTTL = Duration(500 * time.Millisecond)
			},
			wantErrPaths: []string{"cache.default_ttl"},
		},
		{
			name: "local tier on memory backend",
			mutate: func(c *Config) {
				c.Cache.LocalSize = 100
			},
			wantErrPaths: []string{"cache.local_size"},
		},
		{
			name: "negative sizes",
			mutate: func(c *Config) {
				c.Cache.Backend = BackendRedis
				c.Redis.Address = "localhost:6379"
				c.Cache.MaxSize = -1
				c.Cache.LocalSize = -1
				c.Cache.CleanupInterval = Duration(-time.Second)
			},
			wantErrPaths: []string{"cache.max_size", "cache.cleanup_interval", "cache.local_size"},
		},
		{
			name: "unknown strategy",
			mutate: func(c *Config) {
				c.RateLimit.Strategy = "leaky_bucket"
			},
			wantErrPaths: []string{"rate_limit.strategy"},
		},
		{
			name: "sliding window on redis",
			mutate: func(c *Config) {
				c.Redis.Address = "localhost:6379"
				c.RateLimit.Backend = BackendRedis
				c.RateLimit.Strategy = StrategySlidingWindow
			},
			wantErrPaths: []string{"rate_limit.strategy"},
		},
		{
			name: "token bucket on memory",
			mutate: func(c *Config) {
				c.RateLimit.Strategy = StrategyTokenBucket
			},
		},
		{
			name: "negative points and duration",
			mutate: func(c *Config) {
				c.RateLimit.Points = -5
				c.RateLimit.Duration = Duration(-time.Minute)
			},
			wantErrPaths: []string{"rate_limit.points", "rate_limit.duration"},
		},
		{
			name: "sub-millisecond window",
			mutate: func(c *Config) {
				c.RateLimit.Duration = Duration(time.Microsecond)
			},
			wantErrPaths: []string{"rate_limit.duration"},
		},
		{
			name: "logging",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
				c.Logging.Format = "xml"
			},
			wantErrPaths: []string{"logging.level", "logging.format"},
		},
		{
			name: "logging level is case-insensitive",
			mutate: func(c *Config) {
				c.Logging.Level = "WARN"
			},
		},
		{
			name: "stdout tracing",
			mutate: func(c *Config) {
				c.Telemetry.TraceExporter = ExporterStdout
				c.Telemetry.SampleRate = 0.25
			},
		},
		{
			name: "bad tracing settings",
			mutate: func(c *Config) {
				c.Telemetry.TraceExporter = "jaeger"
				c.Telemetry.SampleRate = 1.5
			},
			wantErrPaths: []string{"telemetry.trace_exporter", "telemetry.sample_rate"},
		},
		{
			name: "disabled breaker is not checked",
			mutate: func(c *Config) {
				c.Resilience.CircuitBreaker.Threshold = -1
			},
		},
		{
			name: "enabled breaker",
			mutate: func(c *Config) {
				c.Resilience.CircuitBreaker = CircuitBreakerConfig{
					Enabled:          true,
					Threshold:        -1,
					Timeout:          Duration(-time.Second),
					HalfOpenRequests: -1,
				}
			},
			wantErrPaths: []string{
				"resilience.circuit_breaker.threshold",
				"resilience.circuit_breaker.timeout",
				"resilience.circuit_breaker.half_open_requests",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := NewValidator().Validate(cfg)
			assertErrorPaths(t, errs, tt.wantErrPaths)
		})
	}
}

func TestValidator_Reusable(t *testing.T) {
	v := NewValidator()
	if errs := v.Validate(&Config{}); len(errs) != 2 {
		t.Fatalf("first Validate() = %v, want 2 errors", errs)
	}
	if errs := v.Validate(validConfig()); errs.HasErrors() {
		t.Errorf("second Validate() carried errors over: %v", errs)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	tests := []struct {
		name string
		errs ValidationErrors
		want []string
	}{
		{name: "empty", errs: nil, want: []string{"no validation errors"}},
		{
			name: "single",
			errs: ValidationErrors{{Path: "cache.backend", Message: "invalid backend: x"}},
			want: []string{"cache.backend: invalid backend: x"},
		},
		{
			name: "no path",
			errs: ValidationErrors{{Message: "broken"}},
			want: []string{"broken"},
		},
		{
			name: "multiple",
			errs: ValidationErrors{
				{Path: "name", Message: "name is required"},
				{Path: "version", Message: "version is required"},
			},
			want: []string{"2 validation errors", "name: name is required", "version: version is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.errs.Error()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func assertErrorPaths(t *testing.T, errs ValidationErrors, wantPaths []string) {
	t.Helper()

	if len(errs) != len(wantPaths) {
		t.Errorf("got %d errors, want %d:\n%v", len(errs), len(wantPaths), errs)
		return
	}

	for _, wantPath := range wantPaths {
		found := false
		for _, err := range errs {
			if err.Path == wantPath {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing expected error path %q in errors:\n%v", wantPath, errs)
		}
	}
}
