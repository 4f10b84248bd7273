package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/felixgeelhaar/kvguard/domain/cache"
	domainconfig "github.com/felixgeelhaar/kvguard/domain/config"
	domainmw "github.com/felixgeelhaar/kvguard/domain/middleware"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
	infraconfig "github.com/felixgeelhaar/kvguard/infrastructure/config"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
	mw "github.com/felixgeelhaar/kvguard/infrastructure/middleware"
	infraratelimit "github.com/felixgeelhaar/kvguard/infrastructure/ratelimit"
	"github.com/felixgeelhaar/kvguard/infrastructure/resilience"
	"github.com/felixgeelhaar/kvguard/infrastructure/storage/memory"
	"github.com/felixgeelhaar/kvguard/infrastructure/storage/redis"
	"github.com/felixgeelhaar/kvguard/infrastructure/telemetry"
)

// Resources owns the cache store and rate limiter built from one
// configuration. Handlers receive a *Resources explicitly; nothing here is
// process-global. Close releases connections and background work.
type Resources struct {
	// Store is the cache store, decorated with the breaker and metrics
	// when configured.
	Store cache.Store
	// Limiter is the rate limiter, decorated with metrics when configured.
	Limiter ratelimit.Limiter
	// Metrics records measurements; a no-op when telemetry is disabled.
	Metrics telemetry.Metrics

	settings *infraconfig.BuildResult
	client   *goredis.Client
	breaker  *resilience.BreakerStore
	tracer   *sdktrace.TracerProvider

	clock     func() time.Time
	sweepCtx  context.Context
	stopSweep context.CancelFunc
	sweeps    sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	meterProvider metric.MeterProvider
	traceWriter   io.Writer
	clock         func() time.Time
}

// WithMeterProvider sets the meter provider used when telemetry is enabled.
// Defaults to the global provider.
func WithMeterProvider(provider metric.MeterProvider) OpenOption {
	return func(o *openOptions) {
		o.meterProvider = provider
	}
}

// WithTraceWriter redirects the stdout trace exporter.
func WithTraceWriter(w io.Writer) OpenOption {
	return func(o *openOptions) {
		o.traceWriter = w
	}
}

// WithClock sets the time source of the memory cache.
func WithClock(now func() time.Time) OpenOption {
	return func(o *openOptions) {
		o.clock = now
	}
}

// Open connects the configured backends and assembles the store and limiter.
// On error every resource acquired so far is released.
func Open(ctx context.Context, cfg domainconfig.Config, opts ...OpenOption) (*Resources, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	settings, err := infraconfig.NewBuilder(&cfg).Build()
	if err != nil {
		return nil, err
	}

	r := &Resources{
		settings: settings,
		Metrics:  telemetry.NoopMetricsProvider{},
		clock:    o.clock,
	}

	if settings.Metrics != nil {
		mcfg := *settings.Metrics
		mcfg.Provider = o.meterProvider
		mp := telemetry.NewMetricsProvider(mcfg)
		if err := mp.Error(); err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
		r.Metrics = mp
	}

	if settings.Tracing != nil {
		tcfg := *settings.Tracing
		tcfg.Writer = o.traceWriter
		r.tracer, err = telemetry.NewTracerProvider(ctx, tcfg)
		if err != nil {
			return nil, fmt.Errorf("creating tracer: %w", err)
		}
	}

	if settings.Redis != nil {
		r.client, err = redis.Connect(ctx, *settings.Redis)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
	}

	if err := r.openStore(); err != nil {
		_ = r.Close()
		return nil, err
	}
	if err := r.openLimiter(); err != nil {
		_ = r.Close()
		return nil, err
	}

	logging.Info().
		Add(logging.Component("resources")).
		Add(logging.Backend(settings.Cache.Backend)).
		Add(logging.Strategy(settings.Limiter.Strategy)).
		Add(logging.Str("limiter_backend", settings.Limiter.Backend)).
		Msg("resources opened")
	return r, nil
}

func (r *Resources) openStore() error {
	s := r.settings.Cache

	var store cache.Store
	switch s.Backend {
	case domainconfig.BackendRedis:
		store = redis.NewCacheFromConfig(r.client, *r.settings.Redis)
	case domainconfig.BackendMemory:
		opts := []memory.CacheOption{memory.WithMaxSize(s.MaxSize)}
		if r.clock != nil {
			opts = append(opts, memory.WithClock(r.clock))
		}
		mem := memory.NewCache(opts...)
		if s.CleanupInterval > 0 {
			r.startSweeper("cache", "dropped expired entries", s.CleanupInterval, mem.Cleanup)
		}
		store = mem
	default:
		return fmt.Errorf("%w: unknown cache backend %q", domainconfig.ErrBuildFailed, s.Backend)
	}

	if r.settings.Breaker != nil {
		opts := make([]resilience.Option, 0, len(r.settings.Breaker)+1)
		opts = append(opts, r.settings.Breaker...)
		opts = append(opts, resilience.WithStateChange(func(name, _, to string) {
			r.Metrics.RecordCircuitBreakerStateChange(context.Background(), name, to == "open")
		}))
		r.breaker = resilience.NewBreakerStore(store, opts...)
		store = r.breaker
	}

	if _, ok := r.Metrics.(*telemetry.MetricsProvider); ok {
		store = telemetry.InstrumentStore(store, r.Metrics, s.Backend)
	}
	r.Store = store
	return nil
}

func (r *Resources) openLimiter() error {
	s := r.settings.Limiter

	var (
		limiter ratelimit.Limiter
		err     error
	)
	switch {
	case s.Backend == domainconfig.BackendRedis:
		limiter, err = redis.NewLimiter(r.client, s.Policy)
	case s.Strategy == domainconfig.StrategySlidingWindow:
		limiter, err = infraratelimit.NewSlidingWindow(s.Policy)
	case s.Strategy == domainconfig.StrategyTokenBucket:
		limiter, err = infraratelimit.NewTokenBucket(s.Policy)
	default:
		limiter, err = memory.NewLimiter(s.Policy)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domainconfig.ErrBuildFailed, err)
	}

	if sw, ok := limiter.(sweeper); ok && s.SweepInterval > 0 {
		r.startSweeper("limiter", "swept idle buckets", s.SweepInterval, sw.Sweep)
	}

	if _, ok := r.Metrics.(*telemetry.MetricsProvider); ok {
		limiter = telemetry.InstrumentLimiter(limiter, r.Metrics, s.Strategy)
	}
	r.Limiter = limiter
	return nil
}

// sweeper is implemented by in-process limiters holding per-key state.
type sweeper interface {
	Sweep() int
}

// startSweeper runs sweep every interval until Close. sweep returns the
// number of entries it dropped.
func (r *Resources) startSweeper(component, msg string, interval time.Duration, sweep func() int) {
	if r.stopSweep == nil {
		r.sweepCtx, r.stopSweep = context.WithCancel(context.Background())
	}
	ctx := r.sweepCtx

	r.sweeps.Add(1)
	go func() {
		defer r.sweeps.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sweep(); n > 0 {
					logging.Debug().
						Add(logging.Component(component)).
						Add(logging.Count(n)).
						Msg(msg)
				}
			}
		}
	}()
}

// Settings returns the component settings derived from the configuration.
func (r *Resources) Settings() *infraconfig.BuildResult {
	return r.settings
}

// BreakerState reports the store circuit state, or "" without a breaker.
func (r *Resources) BreakerState() string {
	if r.breaker == nil {
		return ""
	}
	return r.breaker.State()
}

// Guard returns the action middleware for these resources: tracing when an
// exporter is configured, logging, metrics, rate limiting by scope, then
// result caching.
func (r *Resources) Guard(scope mw.RateLimitScope) domainmw.Middleware {
	tracing := domainmw.Noop()
	if r.tracer != nil {
		tracing = mw.NewTracing(mw.WithTracer(r.tracer.Tracer("github.com/felixgeelhaar/kvguard")))
	}

	return domainmw.Chain(
		tracing,
		mw.Logging(mw.LoggingConfig{}),
		mw.Metrics(r.Metrics),
		mw.RateLimit(mw.RateLimitConfig{
			Limiter:  r.Limiter,
			Scope:    scope,
			FailOpen: r.settings.Limiter.FailOpen,
		}),
		mw.Caching(mw.CachingConfig{
			Store: r.Store,
			TTL:   r.settings.Cache.DefaultTTL,
		}),
	)
}

// Close stops background work, flushes pending spans and releases
// connections. It is safe to call more than once.
func (r *Resources) Close() error {
	r.closeOnce.Do(func() {
		if r.stopSweep != nil {
			r.stopSweep()
			r.sweeps.Wait()
		}
		if r.client != nil {
			if err := r.client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
				r.closeErr = err
			}
		}
		if r.tracer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.tracer.Shutdown(ctx); err != nil {
				r.closeErr = errors.Join(r.closeErr, fmt.Errorf("flushing traces: %w", err))
			}
		}
	})
	return r.closeErr
}

// NewTypedCache returns a typed cache over the resources' store, carrying
// the configured default TTL and fallback behavior.
func NewTypedCache[T any](r *Resources, opts ...CacheOption) *Cache[T] {
	base := []CacheOption{
		WithDefaultTTL(r.settings.Cache.DefaultTTL),
		WithFallback(r.settings.Cache.Fallback),
	}
	return NewCache[T](r.Store, append(base, opts...)...)
}
