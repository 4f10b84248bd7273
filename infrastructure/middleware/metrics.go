package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/kvguard/domain/middleware"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
	"github.com/felixgeelhaar/kvguard/infrastructure/telemetry"
)

// Metrics returns middleware that records one action measurement per
// invocation, labelled success, error or rate_limited.
func Metrics(metrics telemetry.Metrics) middleware.Middleware {
	if metrics == nil {
		metrics = telemetry.NoopMetricsProvider{}
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, action *middleware.ActionContext) (middleware.Result, error) {
			start := time.Now()
			result, err := next(ctx, action)

			status := "success"
			switch {
			case errors.Is(err, ratelimit.ErrRateLimitExceeded):
				status = "rate_limited"
			case err != nil:
				status = "error"
			}
			metrics.RecordAction(ctx, action.Action, status, result.Cached, time.Since(start))

			return result, err
		}
	}
}
