package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

// fixedWindow increments the key and starts its window on the first hit.
// A key that lost its expiry (e.g. persisted by hand) gets a fresh one so
// it cannot lock a caller out forever.
var fixedWindow = redis.NewScript(`
local consumed = redis.call("INCR", KEYS[1])
if consumed == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {consumed, ttl}
`)

// Limiter is a fixed-window implementation of ratelimit.Limiter backed by
// Redis INCR and PEXPIRE. Every instance sharing the Redis server enforces
// one global budget per key.
type Limiter struct {
	client redis.Cmdable
	policy ratelimit.Policy
}

// NewLimiter creates a Redis limiter over an existing client.
func NewLimiter(client redis.Cmdable, policy ratelimit.Policy) (*Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{client: client, policy: policy}, nil
}

// bucketKey namespaces key with the policy prefix.
func (l *Limiter) bucketKey(key string) string {
	return l.policy.KeyPrefix + key
}

// Consume charges one point to key atomically.
func (l *Limiter) Consume(ctx context.Context, key string) (ratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Result{}, err
	}
	if key == "" {
		return ratelimit.Result{}, ratelimit.ErrInvalidKey
	}

	vals, err := fixedWindow.Run(ctx, l.client, []string{l.bucketKey(key)}, l.policy.Duration.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Result{}, unavailable(err)
	}
	if len(vals) != 2 {
		return ratelimit.Result{}, errors.Join(ratelimit.ErrLimiterUnavailable, errors.New("unexpected script reply"))
	}

	consumed := int(vals[0])
	res := ratelimit.NewResult(l.policy.Points, consumed, time.Duration(vals[1])*time.Millisecond)
	if consumed > l.policy.Points {
		return res, ratelimit.Exceeded(key, res)
	}
	return res, nil
}

// Get returns the key's state without consuming.
func (l *Limiter) Get(ctx context.Context, key string) (ratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Result{}, err
	}

	bucket := l.bucketKey(key)
	pipe := l.client.Pipeline()
	getCmd := pipe.Get(ctx, bucket)
	ttlCmd := pipe.PTTL(ctx, bucket)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return ratelimit.Result{}, unavailable(err)
	}

	consumed, err := getCmd.Int()
	if errors.Is(err, redis.Nil) {
		return ratelimit.NewResult(l.policy.Points, 0, 0), nil
	}
	if err != nil {
		return ratelimit.Result{}, unavailable(err)
	}

	return ratelimit.NewResult(l.policy.Points, consumed, ttlCmd.Val()), nil
}

// Reset clears the key's bucket.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.client.Del(ctx, l.bucketKey(key)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Policy returns the enforced policy.
func (l *Limiter) Policy() ratelimit.Policy {
	return l.policy
}

// unavailable classifies a backend failure for limiter callers.
func unavailable(err error) error {
	return errors.Join(ratelimit.ErrLimiterUnavailable, wrapError(err))
}

var _ ratelimit.Limiter = (*Limiter)(nil)
