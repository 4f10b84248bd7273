package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/kvguard/domain/cache"
	domainmw "github.com/felixgeelhaar/kvguard/domain/middleware"
	mw "github.com/felixgeelhaar/kvguard/infrastructure/middleware"
	"github.com/felixgeelhaar/kvguard/infrastructure/storage/memory"
)

// downStore fails reads and writes as an unreachable backend would.
type downStore struct {
	*memory.Cache
}

func (downStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, cache.ErrConnectionFailed
}

func (downStore) Set(context.Context, string, []byte, cache.SetOptions) error {
	return cache.ErrConnectionFailed
}

func cacheableAction(name, input string) *domainmw.ActionContext {
	return &domainmw.ActionContext{
		Action:    name,
		Caller:    "alice",
		Input:     json.RawMessage(input),
		Cacheable: true,
	}
}

func TestCaching(t *testing.T) {
	t.Parallel()

	t.Run("serves repeated invocation from store", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		handler := mw.Caching(mw.CachingConfig{Store: memory.NewCache()})(countingHandler(&calls))
		ctx := context.Background()

		first, err := handler(ctx, cacheableAction("profile.get", `{"id":1}`))
		if err != nil {
			t.Fatalf("first call: %v", err)
		}
		second, err := handler(ctx, cacheableAction("profile.get", `{"id":1}`))
		if err != nil {
			t.Fatalf("second call: %v", err)
		}

		if calls.Load() != 1 {
			t.Errorf("handler calls = %d, want 1", calls.Load())
		}
		if first.Cached {
			t.Error("first result should not be cached")
		}
		if !second.Cached {
			t.Error("second result should be cached")
		}
		if string(second.Output) != string(first.Output) {
			t.Errorf("cached output = %s, want %s", second.Output, first.Output)
		}
	})

	t.Run("different input misses", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		handler := mw.Caching(mw.CachingConfig{Store: memory.NewCache()})(countingHandler(&calls))
		ctx := context.Background()

		_, _ = handler(ctx, cacheableAction("profile.get", `{"id":1}`))
		_, _ = handler(ctx, cacheableAction("profile.get", `{"id":2}`))
		if calls.Load() != 2 {
			t.Errorf("handler calls = %d, want 2", calls.Load())
		}
	})

	t.Run("non-cacheable always executes", func(t *testing.T) {
		t.Parallel()

		store := memory.NewCache()
		var calls atomic.Int32
		handler := mw.Caching(mw.CachingConfig{Store: store})(countingHandler(&calls))
		ctx := context.Background()

		for range 2 {
			if _, err := handler(ctx, newAction("auth.signin", "alice")); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if calls.Load() != 2 {
			t.Errorf("handler calls = %d, want 2", calls.Load())
		}
		if store.Size() != 0 {
			t.Errorf("store size = %d, want 0", store.Size())
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		t.Parallel()

		store := memory.NewCache()
		handler := mw.Caching(mw.CachingConfig{Store: store})(failingHandler(errors.New("boom")))

		if _, err := handler(context.Background(), cacheableAction("profile.get", `{}`)); err == nil {
			t.Fatal("expected error")
		}
		if store.Size() != 0 {
			t.Errorf("store size = %d, want 0", store.Size())
		}
	})

	t.Run("store failure falls through to handler", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		handler := mw.Caching(mw.CachingConfig{Store: downStore{memory.NewCache()}})(countingHandler(&calls))
		ctx := context.Background()

		for range 2 {
			if _, err := handler(ctx, cacheableAction("profile.get", `{}`)); err != nil {
				t.Fatalf("store failure must not fail the action: %v", err)
			}
		}
		if calls.Load() != 2 {
			t.Errorf("handler calls = %d, want 2", calls.Load())
		}
	})

	t.Run("corrupt entry is recomputed and replaced", func(t *testing.T) {
		t.Parallel()

		store := memory.NewCache()
		ctx := context.Background()
		key := mw.CacheKey("profile.get", []byte(`{}`))
		if err := store.Set(ctx, key, []byte("not json"), cache.SetOptions{}); err != nil {
			t.Fatalf("Set: %v", err)
		}

		var calls atomic.Int32
		handler := mw.Caching(mw.CachingConfig{Store: store})(countingHandler(&calls))

		result, err := handler(ctx, cacheableAction("profile.get", `{}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Cached || calls.Load() != 1 {
			t.Errorf("cached = %v, calls = %d; want fresh execution", result.Cached, calls.Load())
		}

		result, _ = handler(ctx, cacheableAction("profile.get", `{}`))
		if !result.Cached {
			t.Error("replacement entry should be served from the cache")
		}
	})
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	a := mw.CacheKey("profile.get", []byte(`{"id":1}`))
	if a != mw.CacheKey("profile.get", []byte(`{"id":1}`)) {
		t.Error("key should be deterministic")
	}
	if a == mw.CacheKey("profile.get", []byte(`{"id":2}`)) {
		t.Error("different input should produce a different key")
	}
	if !strings.HasPrefix(a, "result:11:profile.get:") {
		t.Errorf("key %q lacks action prefix", a)
	}
	// 64 hex characters of SHA-256
	if got := len(a) - len("result:11:profile.get:"); got != 64 {
		t.Errorf("digest length = %d, want 64", got)
	}
}

func TestInvalidateAction(t *testing.T) {
	t.Parallel()

	store := memory.NewCache()
	var calls atomic.Int32
	handler := mw.Caching(mw.CachingConfig{Store: store})(countingHandler(&calls))
	ctx := context.Background()

	_, _ = handler(ctx, cacheableAction("profile.get", `{"id":1}`))
	_, _ = handler(ctx, cacheableAction("profile.get", `{"id":2}`))
	_, _ = handler(ctx, cacheableAction("profile.list", `{}`))

	removed, err := mw.InvalidateAction(ctx, store, "profile.get")
	if err != nil {
		t.Fatalf("InvalidateAction: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if store.Size() != 1 {
		t.Errorf("remaining entries = %d, want 1", store.Size())
	}
}

func TestInvalidateAction_NestedNames(t *testing.T) {
	t.Parallel()

	store := memory.NewCache()
	var calls atomic.Int32
	handler := mw.Caching(mw.CachingConfig{Store: store})(countingHandler(&calls))
	ctx := context.Background()

	_, _ = handler(ctx, cacheableAction("a", `{}`))
	_, _ = handler(ctx, cacheableAction("a:b", `{}`))
	// Shares the rate limit key layout for action "a".
	_ = store.Set(ctx, "action:a:caller:alice", []byte("1"), cache.SetOptions{})

	removed, err := mw.InvalidateAction(ctx, store, "a")
	if err != nil {
		t.Fatalf("InvalidateAction: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if store.Size() != 2 {
		t.Errorf("remaining entries = %d, want 2", store.Size())
	}
}
