package middleware_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	domainmw "github.com/felixgeelhaar/kvguard/domain/middleware"
	mw "github.com/felixgeelhaar/kvguard/infrastructure/middleware"
	"github.com/felixgeelhaar/kvguard/infrastructure/telemetry"
)

func TestMetrics_RecordsStatus(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics := telemetry.NewMetricsProvider(telemetry.MetricsConfig{Provider: provider})
	if err := metrics.Error(); err != nil {
		t.Fatalf("metrics provider: %v", err)
	}

	var calls atomic.Int32
	handler := domainmw.Chain(
		mw.Metrics(metrics),
		mw.RateLimit(mw.RateLimitConfig{Limiter: newLimiter(t, 1)}),
	)(countingHandler(&calls))

	ctx := context.Background()
	_, _ = handler(ctx, newAction("auth.signin", "alice"))
	_, _ = handler(ctx, newAction("auth.signin", "alice"))
	_, _ = mw.Metrics(metrics)(failingHandler(errors.New("boom")))(ctx, newAction("profile.get", "alice"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	byStatus := map[string]int64{}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "kvguard.action.calls" {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("expected Sum[int64], got %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				byStatus[status.AsString()] += dp.Value
			}
		}
	}
	if !found {
		t.Fatal("kvguard.action.calls metric not found")
	}

	want := map[string]int64{"success": 1, "rate_limited": 1, "error": 1}
	for status, n := range want {
		if byStatus[status] != n {
			t.Errorf("calls[%s] = %d, want %d", status, byStatus[status], n)
		}
	}
}
