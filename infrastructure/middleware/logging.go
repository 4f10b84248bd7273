package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/kvguard/domain/middleware"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
)

// LoggingConfig configures the logging middleware.
type LoggingConfig struct {
	// LogInput logs the action input (may contain credentials).
	LogInput bool
	// LogOutput logs the action output (may be large).
	LogOutput bool
}

// Logging returns middleware that logs action execution.
func Logging(cfg LoggingConfig) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, action *middleware.ActionContext) (middleware.Result, error) {
			start := time.Now()

			entry := logging.Debug().
				Add(logging.Action(action.Action)).
				Add(logging.Caller(action.Caller))
			if cfg.LogInput && len(action.Input) > 0 {
				entry = entry.Add(logging.Str("input", truncate(string(action.Input), 500)))
			}
			entry.Msg("executing action")

			result, err := next(ctx, action)
			duration := time.Since(start)
			if result.Duration == 0 && err == nil {
				result.Duration = duration
			}

			switch {
			case err == nil:
				logEntry := logging.Info().
					Add(logging.Action(action.Action)).
					Add(logging.Caller(action.Caller)).
					Add(logging.Duration(duration)).
					Add(logging.Cached(result.Cached))
				if cfg.LogOutput && len(result.Output) > 0 {
					logEntry = logEntry.Add(logging.Str("output", truncate(string(result.Output), 500)))
				}
				logEntry.Msg("action executed")
			case errors.Is(err, ratelimit.ErrRateLimitExceeded):
				// Already logged by the rate limiter.
			default:
				logging.Error().
					Add(logging.Action(action.Action)).
					Add(logging.Caller(action.Caller)).
					Add(logging.ErrorField(err)).
					Add(logging.Duration(duration)).
					Msg("action failed")
			}

			return result, err
		}
	}
}
