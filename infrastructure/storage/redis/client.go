package redis

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/kvguard/domain/cache"
)

// Connect builds a client from the configuration and verifies it with PING.
// The caller owns the returned client and must close it.
func Connect(ctx context.Context, cfg Config, opts ...ConfigOption) (*redis.Client, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	options, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(options)

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(cache.ErrConnectionFailed, err)
	}
	return client, nil
}

// clientOptions maps Config onto go-redis options.
func clientOptions(cfg Config) (*redis.Options, error) {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Join(cache.ErrConnectionFailed, err)
		}
		options = parsed
	}

	options.MaxRetries = cfg.MaxRetries
	options.DialTimeout = cfg.DialTimeout
	options.ReadTimeout = cfg.ReadTimeout
	options.WriteTimeout = cfg.WriteTimeout
	options.PoolSize = cfg.PoolSize
	options.MinIdleConns = cfg.MinIdleConns
	return options, nil
}

// wrapError wraps Redis errors with domain errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(cache.ErrOperationTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.Join(cache.ErrOperationTimeout, err)
		}
		return errors.Join(cache.ErrConnectionFailed, err)
	}

	if errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Join(cache.ErrConnectionFailed, err)
	}

	return err
}
