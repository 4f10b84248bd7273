package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/kvguard/domain/middleware"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
	"github.com/felixgeelhaar/kvguard/infrastructure/storage/memory"
)

// RateLimitScope defines how rate limiting keys are derived from an action.
type RateLimitScope string

const (
	// ScopeGlobal shares one budget across all callers and actions.
	ScopeGlobal RateLimitScope = "global"
	// ScopePerCaller gives each caller its own budget.
	ScopePerCaller RateLimitScope = "per_caller"
	// ScopePerAction gives each action its own budget.
	ScopePerAction RateLimitScope = "per_action"
	// ScopePerCallerAction gives each caller a budget per action,
	// e.g. five sign-in attempts per client address.
	ScopePerCallerAction RateLimitScope = "per_caller_action"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter enforces the budget.
	// If nil, an in-memory fixed-window limiter with the default policy is used.
	Limiter ratelimit.Limiter

	// Scope determines how rate limiting keys are generated.
	// Default is ScopePerCallerAction.
	Scope RateLimitScope

	// KeyFunc overrides Scope when set. Returning "" skips rate limiting
	// for that invocation.
	KeyFunc func(action *middleware.ActionContext) string

	// FailOpen determines behavior when the limiter itself fails.
	// If true, actions run while the limiter is unavailable.
	// If false (default), they are denied.
	FailOpen bool

	// OnLimitExceeded is called when an invocation is rejected.
	OnLimitExceeded func(ctx context.Context, action *middleware.ActionContext, exceeded *ratelimit.ExceededError)
}

// DefaultRateLimitConfig returns the per caller and action configuration
// used for authentication endpoints.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Scope: ScopePerCallerAction,
	}
}

// RateLimit returns middleware that charges one point per invocation and
// rejects over-budget invocations with *ratelimit.ExceededError without
// calling the handler.
func RateLimit(cfg RateLimitConfig) middleware.Middleware {
	limiter := cfg.Limiter
	if limiter == nil {
		// DefaultPolicy always validates.
		limiter, _ = memory.NewLimiter(ratelimit.DefaultPolicy())
	}

	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = scopeKey(cfg.Scope)
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, action *middleware.ActionContext) (middleware.Result, error) {
			key := keyFunc(action)
			if key == "" {
				return next(ctx, action)
			}

			res, err := limiter.Consume(ctx, key)
			if err == nil {
				return next(ctx, action)
			}

			if exceeded, ok := ratelimit.IsRateLimited(err); ok {
				logging.Warn().
					Add(logging.Key(key)).
					Add(logging.Action(action.Action)).
					Add(logging.Caller(action.Caller)).
					Add(logging.RetryAfter(exceeded.RetryAfter)).
					Msg("rate limit exceeded")

				if cfg.OnLimitExceeded != nil {
					cfg.OnLimitExceeded(ctx, action, exceeded)
				}
				return middleware.Result{}, exceeded
			}

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return middleware.Result{}, err
			}

			if cfg.FailOpen {
				logging.Warn().
					Add(logging.Key(key)).
					Add(logging.Action(action.Action)).
					Add(logging.Remaining(res.Remaining)).
					Add(logging.ErrorField(err)).
					Msg("rate limiter unavailable, allowing action")
				return next(ctx, action)
			}

			logging.Error().
				Add(logging.Key(key)).
				Add(logging.Action(action.Action)).
				Add(logging.ErrorField(err)).
				Msg("rate limiter unavailable, denying action")
			return middleware.Result{}, fmt.Errorf("rate limit check for %s: %w", action.Action, err)
		}
	}
}

// scopeKey builds the key function for scope.
func scopeKey(scope RateLimitScope) func(*middleware.ActionContext) string {
	switch scope {
	case ScopeGlobal:
		return func(*middleware.ActionContext) string { return "global" }
	case ScopePerCaller:
		return func(a *middleware.ActionContext) string { return "caller:" + a.Caller }
	case ScopePerAction:
		return func(a *middleware.ActionContext) string { return "action:" + a.Action }
	default:
		return func(a *middleware.ActionContext) string {
			return "action:" + a.Action + ":caller:" + a.Caller
		}
	}
}
