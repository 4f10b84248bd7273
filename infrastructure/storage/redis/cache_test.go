package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/kvguard/domain/cache"
)

// newTestCache starts an in-process Redis server and a cache bound to it.
func newTestCache(t *testing.T, opts ...ConfigOption) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Address = mr.Addr()
	cfg.KeyPrefix = "test:"

	c, err := NewCache(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewCache_ConnectionFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.MaxRetries = -1
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := NewCache(context.Background(), cfg)
	if !errors.Is(err, cache.ErrConnectionFailed) {
		t.Errorf("NewCache() error = %v, want ErrConnectionFailed", err)
	}
}

func TestNewCache_URL(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c, err := NewCache(context.Background(), DefaultConfig(), WithURL("redis://"+mr.Addr()+"/0"))
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestCache_prefixKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		keyPrefix string
		key       string
		expected  string
	}{
		{"default prefix", "kvguard:", "user:123", "kvguard:user:123"},
		{"empty prefix", "", "session:abc", "session:abc"},
		{"nested key", "prod:", "api:v1:users:list", "prod:api:v1:users:list"},
		{"empty key", "kvguard:", "", "kvguard:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCacheFromClient(nil, tt.keyPrefix)
			if got := c.prefixKey(tt.key); got != tt.expected {
				t.Errorf("prefixKey(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEscapePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"user:1:", "user:1:"},
		{"a*b", `a\*b`},
		{"q?", `q\?`},
		{"[x]", `\[x\]`},
		{`back\slash`, `back\\slash`},
		{"\xff:", "\xff:"},
		{"\xfe*", "\xfe\\*"},
	}

	for _, tt := range tests {
		if got := escapePattern(tt.in); got != tt.want {
			t.Errorf("escapePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCache_SetGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t)

	if err := c.Set(ctx, "user:123:profile", []byte(`{"id":123}`), cache.SetOptions{TTL: 30 * time.Second}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := c.Get(ctx, "user:123:profile")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || string(value) != `{"id":123}` {
		t.Errorf("Get() = %s, %v; want {\"id\":123}, true", value, found)
	}

	if ttl := mr.TTL("test:user:123:profile"); ttl != 30*time.Second {
		t.Errorf("stored TTL = %v, want 30s", ttl)
	}

	_, found, err = c.Get(ctx, "never-set")
	if err != nil || found {
		t.Errorf("Get() of missing key = %v, %v; want false, nil", found, err)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit 1 miss", stats)
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t)

	_ = c.Set(ctx, "k", []byte("1"), cache.SetOptions{})
	if ttl := mr.TTL("test:k"); ttl != time.Hour {
		t.Errorf("stored TTL = %v, want 1h", ttl)
	}

	mr.FastForward(time.Hour + time.Second)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("entry should be absent after ttl")
	}
}

func TestCache_InvalidInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t)

	if err := c.Set(ctx, "", []byte("v"), cache.SetOptions{}); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set() with empty key error = %v, want ErrInvalidKey", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), cache.SetOptions{TTL: 10 * time.Millisecond}); !errors.Is(err, cache.ErrInvalidTTL) {
		t.Errorf("Set() with sub-second ttl error = %v, want ErrInvalidTTL", err)
	}
}

func TestCache_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t)

	_ = c.Set(ctx, "k", []byte("v"), cache.SetOptions{})
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if exists, _ := c.Exists(ctx, "k"); exists {
		t.Error("key should not exist after Delete()")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of absent key error = %v, want nil", err)
	}
}

func TestCache_DeletePrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t)

	_ = c.Set(ctx, "user:1:a", []byte("1"), cache.SetOptions{})
	_ = c.Set(ctx, "user:1:b", []byte("2"), cache.SetOptions{})
	_ = c.Set(ctx, "user:2:a", []byte("3"), cache.SetOptions{})
	_ = c.Set(ctx, "user:1*", []byte("4"), cache.SetOptions{})

	removed, err := c.DeletePrefix(ctx, "user:1:")
	if err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeletePrefix() = %d, want 2", removed)
	}

	for _, key := range []string{"user:1:a", "user:1:b"} {
		if _, found, _ := c.Get(ctx, key); found {
			t.Errorf("%s should be absent", key)
		}
	}
	for key, want := range map[string]string{"user:2:a": "3", "user:1*": "4"} {
		got, found, _ := c.Get(ctx, key)
		if !found || string(got) != want {
			t.Errorf("%s = %s, %v; want %s", key, got, found, want)
		}
	}

	removed, err = c.DeletePrefix(ctx, "none:")
	if err != nil || removed != 0 {
		t.Errorf("DeletePrefix() with no matches = %d, %v; want 0, nil", removed, err)
	}
}

func TestCache_DeletePrefix_ManyKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t)

	for i := 0; i < 1200; i++ {
		_ = c.Set(ctx, fmt.Sprintf("bulk:%d", i), []byte("v"), cache.SetOptions{})
	}
	_ = c.Set(ctx, "keep", []byte("v"), cache.SetOptions{})

	removed, err := c.DeletePrefix(ctx, "bulk:")
	if err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if removed != 1200 {
		t.Errorf("DeletePrefix() = %d, want 1200", removed)
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "test:keep" {
		t.Errorf("remaining keys = %v, want [test:keep]", keys)
	}
}

func TestCache_Flush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t)

	_ = c.Set(ctx, "a:1", []byte("v"), cache.SetOptions{})
	_ = c.Set(ctx, "b:1", []byte("v"), cache.SetOptions{})
	_ = mr.Set("foreign", "v")

	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("keys after Flush() = %v, want none", keys)
	}
}

func TestCache_LocalTier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t, WithLocalCache(100, time.Minute))

	_ = c.Set(ctx, "hot", []byte("v1"), cache.SetOptions{})

	// Served from the local tier even if Redis lost the key.
	mr.Del("test:hot")
	if got, found, _ := c.Get(ctx, "hot"); !found || string(got) != "v1" {
		t.Errorf("Get() = %s, %v; want local hit", got, found)
	}

	_ = c.Set(ctx, "hot", []byte("v2"), cache.SetOptions{})
	if n, _ := c.DeletePrefix(ctx, "ho"); n != 1 {
		t.Errorf("DeletePrefix() = %d, want 1", n)
	}
	if _, found, _ := c.Get(ctx, "hot"); found {
		t.Error("DeletePrefix() should evict matching keys from the local tier")
	}

	_ = c.Set(ctx, "warm", []byte("v"), cache.SetOptions{})
	_ = c.Flush(ctx)
	if _, found, _ := c.Get(ctx, "warm"); found {
		t.Error("Flush() should drop the local tier")
	}
}

func TestCache_LocalTierShortTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t, WithLocalCache(100, time.Minute))

	if err := c.Set(ctx, "short", []byte("1"), cache.SetOptions{TTL: time.Second}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, found, _ := c.Get(ctx, "short"); !found || string(got) != "1" {
		t.Fatalf("Get() = %s, %v; want 1, true", got, found)
	}

	mr.FastForward(2 * time.Second)

	if _, found, err := c.Get(ctx, "short"); err != nil || found {
		t.Errorf("Get() after TTL = %v, %v; want false, nil", found, err)
	}
}

func TestCache_LocalTierNotFilledByReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t, WithLocalCache(100, time.Minute))

	// Written by another instance with a TTL shorter than the local tier's.
	_ = mr.Set("test:remote", "v")
	mr.SetTTL("test:remote", 5*time.Second)

	if got, found, _ := c.Get(ctx, "remote"); !found || string(got) != "v" {
		t.Fatalf("Get() = %s, %v; want v, true", got, found)
	}

	mr.FastForward(10 * time.Second)

	if _, found, _ := c.Get(ctx, "remote"); found {
		t.Error("Get() after TTL should miss")
	}
}

func TestCache_ServerDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t, func(cfg *Config) { cfg.MaxRetries = -1 })
	mr.Close()

	_, _, err := c.Get(ctx, "k")
	if !cache.IsInfrastructure(err) {
		t.Errorf("Get() error = %v, want infrastructure error", err)
	}
	err = c.Set(ctx, "k", []byte("v"), cache.SetOptions{})
	if !cache.IsInfrastructure(err) {
		t.Errorf("Set() error = %v, want infrastructure error", err)
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	t.Run("returns nil for nil error", func(t *testing.T) {
		t.Parallel()
		if err := wrapError(nil); err != nil {
			t.Errorf("wrapError(nil) = %v, want nil", err)
		}
	})

	t.Run("wraps deadline exceeded as timeout", func(t *testing.T) {
		t.Parallel()
		err := wrapError(context.DeadlineExceeded)
		if !errors.Is(err, cache.ErrOperationTimeout) {
			t.Error("wrapError(DeadlineExceeded) should wrap as ErrOperationTimeout")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("wrapped error should contain original error")
		}
	})

	t.Run("wraps closed client as connection failure", func(t *testing.T) {
		t.Parallel()
		if err := wrapError(redis.ErrClosed); !errors.Is(err, cache.ErrConnectionFailed) {
			t.Errorf("wrapError(ErrClosed) = %v, want ErrConnectionFailed", err)
		}
	})

	t.Run("returns other errors unchanged", func(t *testing.T) {
		t.Parallel()
		originalErr := errors.New("WRONGTYPE")
		if err := wrapError(originalErr); err != originalErr {
			t.Error("wrapError() should return original error for unclassified errors")
		}
	})
}

func TestCache_ContextCancellation(t *testing.T) {
	t.Parallel()

	c := NewCacheFromClient(nil, "test:")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := c.Get(ctx, "key"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if err := c.Set(ctx, "key", []byte("value"), cache.SetOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
	if err := c.Delete(ctx, "key"); !errors.Is(err, context.Canceled) {
		t.Errorf("Delete() error = %v, want context.Canceled", err)
	}
	if _, err := c.DeletePrefix(ctx, "key"); !errors.Is(err, context.Canceled) {
		t.Errorf("DeletePrefix() error = %v, want context.Canceled", err)
	}
	if _, err := c.Exists(ctx, "key"); !errors.Is(err, context.Canceled) {
		t.Errorf("Exists() error = %v, want context.Canceled", err)
	}
	if err := c.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Flush() error = %v, want context.Canceled", err)
	}
}
