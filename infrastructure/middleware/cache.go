package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/felixgeelhaar/kvguard/domain/cache"
	"github.com/felixgeelhaar/kvguard/domain/middleware"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
)

// ResultKeyPrefix namespaces cached action results in the store. It differs
// from the "action:" rate limit scope so both can share one Redis.
const ResultKeyPrefix = "result:"

// CachingConfig configures the caching middleware.
type CachingConfig struct {
	// Store holds cached results. Caching is disabled when nil.
	Store cache.Store
	// TTL is the lifetime of a cached result. Zero uses cache.DefaultTTL.
	TTL time.Duration
}

// Caching returns middleware that serves results of cacheable actions from
// the store. Results are keyed by action name and a SHA-256 of the input.
// Store failures never fail the action: reads fall through to the handler
// and writes are logged and dropped.
func Caching(cfg CachingConfig) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, action *middleware.ActionContext) (middleware.Result, error) {
			if cfg.Store == nil || !action.Cacheable {
				return next(ctx, action)
			}

			key := CacheKey(action.Action, action.Input)

			if result, ok := lookup(ctx, cfg.Store, key); ok {
				logging.Debug().
					Add(logging.Action(action.Action)).
					Add(logging.Cached(true)).
					Msg("serving cached action result")
				return result, nil
			}

			result, err := next(ctx, action)
			if err != nil {
				return result, err
			}

			data, err := json.Marshal(result)
			if err != nil {
				logging.Warn().
					Add(logging.Action(action.Action)).
					Add(logging.ErrorField(errors.Join(cache.ErrUnsupportedValue, err))).
					Msg("action result not cacheable")
				return result, nil
			}
			if err := cfg.Store.Set(ctx, key, data, cache.SetOptions{TTL: cfg.TTL}); err != nil {
				logging.Warn().
					Add(logging.Action(action.Action)).
					Add(logging.ErrorField(err)).
					Msg("failed to cache action result")
			}

			return result, nil
		}
	}
}

// lookup reads a cached result. Misses, store failures and corrupt entries
// all report false.
func lookup(ctx context.Context, store cache.Store, key string) (middleware.Result, bool) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		logging.Warn().
			Add(logging.Key(key)).
			Add(logging.ErrorField(err)).
			Msg("cache read failed, executing action")
		return middleware.Result{}, false
	}
	if !ok {
		return middleware.Result{}, false
	}

	var result middleware.Result
	if err := json.Unmarshal(data, &result); err != nil {
		logging.Error().
			Add(logging.Key(key)).
			Add(logging.ErrorField(errors.Join(cache.ErrCorruptValue, err))).
			Msg("discarding corrupt cached result")
		return middleware.Result{}, false
	}
	result.Cached = true
	return result, true
}

// CacheKey returns the store key for an action invocation:
// result:<len(action)>:<action>:<sha256(input)>. The length keeps the
// prefixes of "a" and "a:b" disjoint.
func CacheKey(action string, input []byte) string {
	h := sha256.Sum256(input)
	return actionPrefix(action) + hex.EncodeToString(h[:])
}

func actionPrefix(action string) string {
	return ResultKeyPrefix + strconv.Itoa(len(action)) + ":" + action + ":"
}

// InvalidateAction removes every cached result of action.
func InvalidateAction(ctx context.Context, store cache.Store, action string) (int, error) {
	return store.DeletePrefix(ctx, actionPrefix(action))
}
