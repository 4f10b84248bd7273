// Package main demonstrates guarding action handlers with the standard
// middleware chain: tracing, logging, per-caller rate limiting and result
// caching. Spans are printed to stdout when the process exits.
//
// Point KVGUARD_CACHE_BACKEND and KVGUARD_RATE_LIMIT_BACKEND at redis (with
// KVGUARD_REDIS_ADDRESS) to share the cache and limits between processes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/felixgeelhaar/kvguard/application"
	domainmw "github.com/felixgeelhaar/kvguard/domain/middleware"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
	infraconfig "github.com/felixgeelhaar/kvguard/infrastructure/config"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
	mw "github.com/felixgeelhaar/kvguard/infrastructure/middleware"
)

const config = `
name: guarded-actions
version: "1.0"
cache:
  default_ttl: 5m
rate_limit:
  points: 3
  duration: 10s
logging:
  level: debug
telemetry:
  service_name: guarded-actions
  trace_exporter: stdout
`

func main() {
	ctx := context.Background()

	// 1. Load configuration (KVGUARD_* variables still apply)
	cfg, err := infraconfig.NewLoader().LoadString(config, infraconfig.FormatYAML)
	if err != nil {
		log.Fatal(err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	res, err := application.Open(ctx, *cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer res.Close()

	// 2. Wrap a handler with the guard chain
	lookups := 0
	handler := res.Guard(mw.ScopePerCallerAction)(func(_ context.Context, action *domainmw.ActionContext) (domainmw.Result, error) {
		lookups++
		out, err := json.Marshal(map[string]any{"action": action.Action, "lookup": lookups})
		if err != nil {
			return domainmw.Result{}, err
		}
		return domainmw.Result{Output: out}, nil
	})

	// 3. Cacheable reads are served from the cache after the first call
	read := &domainmw.ActionContext{
		Action:    "profile.get",
		Caller:    "alice",
		Input:     json.RawMessage(`{"id":1}`),
		Cacheable: true,
	}
	for range 3 {
		result, err := handler(ctx, read)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("profile.get -> %s (cached=%v)\n", result.Output, result.Cached)
	}

	// 4. Writes are throttled per caller and action
	write := &domainmw.ActionContext{
		Action: "profile.update",
		Caller: "alice",
		Input:  json.RawMessage(`{"id":1,"name":"Ada"}`),
	}
	for attempt := 1; attempt <= 4; attempt++ {
		_, err := handler(ctx, write)
		if exceeded, ok := ratelimit.IsRateLimited(err); ok {
			fmt.Printf("profile.update #%d rejected, retry after %s\n", attempt, exceeded.RetryAfter)
			continue
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("profile.update #%d ok\n", attempt)
	}

	// 5. Drop cached results of one action
	n, err := mw.InvalidateAction(ctx, res.Store, "profile.get")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("invalidated %d cached results\n", n)
}
