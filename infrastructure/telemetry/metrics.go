// Package telemetry provides OpenTelemetry metrics for kvguard caches,
// rate limiters and guarded actions.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider provides access to metrics instruments.
type MetricsProvider struct {
	meter metric.Meter
	attrs []attribute.KeyValue

	// Cache
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	cacheErrors  metric.Int64Counter
	cacheEvicted metric.Int64Counter
	cacheFlushes metric.Int64Counter

	// Rate limiting
	rateLimitAllowed  metric.Int64Counter
	rateLimitRejected metric.Int64Counter
	rateLimitErrors   metric.Int64Counter

	// Actions
	actionCalls    metric.Int64Counter
	actionDuration metric.Float64Histogram

	breakerOpen metric.Int64UpDownCounter

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: "github.com/felixgeelhaar/kvguard").
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Provider supplies the meter. Defaults to the global provider.
	Provider metric.MeterProvider
	// Attributes are default attributes to attach to all metrics.
	Attributes []attribute.KeyValue
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/kvguard",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
// Instrument creation errors are reported by Error; recording on a provider
// with a failed instrument is a no-op for that instrument.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.Provider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion)),
		attrs: config.Attributes,
	}
	mp.initErr = mp.initInstruments()
	return mp
}

// initInstruments initializes all metric instruments.
func (mp *MetricsProvider) initInstruments() error {
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&mp.cacheHits, "kvguard.cache.hits", "Number of cache hits", "{hit}"},
		{&mp.cacheMisses, "kvguard.cache.misses", "Number of cache misses", "{miss}"},
		{&mp.cacheErrors, "kvguard.cache.errors", "Number of failed cache operations", "{error}"},
		{&mp.cacheEvicted, "kvguard.cache.evicted", "Keys removed by prefix eviction", "{key}"},
		{&mp.cacheFlushes, "kvguard.cache.flushes", "Number of full cache flushes", "{flush}"},
		{&mp.rateLimitAllowed, "kvguard.ratelimit.allowed", "Consumptions within budget", "{request}"},
		{&mp.rateLimitRejected, "kvguard.ratelimit.rejected", "Consumptions rejected as over budget", "{request}"},
		{&mp.rateLimitErrors, "kvguard.ratelimit.errors", "Failed limiter operations", "{error}"},
		{&mp.actionCalls, "kvguard.action.calls", "Number of guarded action invocations", "{call}"},
	}
	for _, c := range counters {
		counter, err := mp.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	mp.actionDuration, err = mp.meter.Float64Histogram(
		"kvguard.action.duration",
		metric.WithDescription("Duration of guarded actions"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	mp.breakerOpen, err = mp.meter.Int64UpDownCounter(
		"kvguard.circuitbreaker.open",
		metric.WithDescription("Number of open store circuit breakers"),
		metric.WithUnit("{circuit}"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

func (mp *MetricsProvider) with(attrs ...attribute.KeyValue) metric.MeasurementOption {
	if len(mp.attrs) == 0 {
		return metric.WithAttributes(attrs...)
	}
	all := make([]attribute.KeyValue, 0, len(mp.attrs)+len(attrs))
	all = append(all, mp.attrs...)
	return metric.WithAttributes(append(all, attrs...)...)
}

// RecordCacheHit records a cache hit.
func (mp *MetricsProvider) RecordCacheHit(ctx context.Context, store string) {
	if mp.cacheHits != nil {
		mp.cacheHits.Add(ctx, 1, mp.with(attribute.String("cache.store", store)))
	}
}

// RecordCacheMiss records a cache miss.
func (mp *MetricsProvider) RecordCacheMiss(ctx context.Context, store string) {
	if mp.cacheMisses != nil {
		mp.cacheMisses.Add(ctx, 1, mp.with(attribute.String("cache.store", store)))
	}
}

// RecordCacheError records a failed cache operation.
func (mp *MetricsProvider) RecordCacheError(ctx context.Context, store, operation string) {
	if mp.cacheErrors != nil {
		mp.cacheErrors.Add(ctx, 1, mp.with(
			attribute.String("cache.store", store),
			attribute.String("cache.operation", operation),
		))
	}
}

// RecordCacheEviction records keys removed by a prefix eviction.
func (mp *MetricsProvider) RecordCacheEviction(ctx context.Context, store string, removed int) {
	if mp.cacheEvicted != nil {
		mp.cacheEvicted.Add(ctx, int64(removed), mp.with(attribute.String("cache.store", store)))
	}
}

// RecordCacheFlush records a full flush.
func (mp *MetricsProvider) RecordCacheFlush(ctx context.Context, store string) {
	if mp.cacheFlushes != nil {
		mp.cacheFlushes.Add(ctx, 1, mp.with(attribute.String("cache.store", store)))
	}
}

// RecordRateLimit records the outcome of one consumption.
func (mp *MetricsProvider) RecordRateLimit(ctx context.Context, strategy string, allowed bool) {
	opt := mp.with(attribute.String("ratelimit.strategy", strategy))
	if allowed {
		if mp.rateLimitAllowed != nil {
			mp.rateLimitAllowed.Add(ctx, 1, opt)
		}
		return
	}
	if mp.rateLimitRejected != nil {
		mp.rateLimitRejected.Add(ctx, 1, opt)
	}
}

// RecordRateLimitError records a failed limiter operation.
func (mp *MetricsProvider) RecordRateLimitError(ctx context.Context, strategy string) {
	if mp.rateLimitErrors != nil {
		mp.rateLimitErrors.Add(ctx, 1, mp.with(attribute.String("ratelimit.strategy", strategy)))
	}
}

// RecordAction records a guarded action invocation.
// Status is "success", "error" or "rate_limited".
func (mp *MetricsProvider) RecordAction(ctx context.Context, action, status string, cached bool, duration time.Duration) {
	opt := mp.with(
		attribute.String("action.name", action),
		attribute.String("status", status),
		attribute.Bool("cached", cached),
	)
	if mp.actionCalls != nil {
		mp.actionCalls.Add(ctx, 1, opt)
	}
	if mp.actionDuration != nil {
		mp.actionDuration.Record(ctx, float64(duration.Microseconds())/1000, opt)
	}
}

// RecordCircuitBreakerStateChange records a store breaker transition.
func (mp *MetricsProvider) RecordCircuitBreakerStateChange(ctx context.Context, name string, isOpen bool) {
	if mp.breakerOpen == nil {
		return
	}
	delta := int64(-1)
	if isOpen {
		delta = 1
	}
	mp.breakerOpen.Add(ctx, delta, mp.with(attribute.String("circuit.name", name)))
}

// NoopMetricsProvider is a no-op metrics provider for when metrics are disabled.
type NoopMetricsProvider struct{}

func (NoopMetricsProvider) RecordCacheHit(context.Context, string)                            {}
func (NoopMetricsProvider) RecordCacheMiss(context.Context, string)                           {}
func (NoopMetricsProvider) RecordCacheError(context.Context, string, string)                  {}
func (NoopMetricsProvider) RecordCacheEviction(context.Context, string, int)                  {}
func (NoopMetricsProvider) RecordCacheFlush(context.Context, string)                          {}
func (NoopMetricsProvider) RecordRateLimit(context.Context, string, bool)                     {}
func (NoopMetricsProvider) RecordRateLimitError(context.Context, string)                      {}
func (NoopMetricsProvider) RecordAction(context.Context, string, string, bool, time.Duration) {}
func (NoopMetricsProvider) RecordCircuitBreakerStateChange(context.Context, string, bool)     {}

// Metrics defines the interface for metrics recording.
type Metrics interface {
	RecordCacheHit(ctx context.Context, store string)
	RecordCacheMiss(ctx context.Context, store string)
	RecordCacheError(ctx context.Context, store, operation string)
	RecordCacheEviction(ctx context.Context, store string, removed int)
	RecordCacheFlush(ctx context.Context, store string)
	RecordRateLimit(ctx context.Context, strategy string, allowed bool)
	RecordRateLimitError(ctx context.Context, strategy string)
	RecordAction(ctx context.Context, action, status string, cached bool, duration time.Duration)
	RecordCircuitBreakerStateChange(ctx context.Context, name string, isOpen bool)
}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetricsProvider{}
)
