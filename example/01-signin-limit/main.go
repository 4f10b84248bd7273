// Package main demonstrates the cache and rate limiter with the in-memory
// backends: caching a user profile and throttling sign-in attempts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/felixgeelhaar/kvguard/application"
	domainconfig "github.com/felixgeelhaar/kvguard/domain/config"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

type profile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func main() {
	ctx := context.Background()

	// 1. Open the default resources: memory cache, 5 sign-ins per minute
	res, err := application.Open(ctx, domainconfig.Default())
	if err != nil {
		log.Fatal(err)
	}
	defer res.Close()

	// 2. Cache profiles; the second lookup never reaches the loader
	profiles := application.NewTypedCache[profile](res)
	loads := 0
	load := func(context.Context) (profile, error) {
		loads++
		return profile{ID: 1, Name: "Ada"}, nil
	}

	for range 2 {
		p, err := profiles.GetOrCompute(ctx, "user:1:profile", load)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("profile: %+v\n", p)
	}
	fmt.Printf("loader calls: %d\n\n", loads)

	// 3. Invalidate everything cached for user 1
	if err := profiles.DeletePrefix(ctx, "user:1:"); err != nil {
		log.Fatal(err)
	}

	// 4. Throttle sign-ins per client address
	for attempt := 1; attempt <= 6; attempt++ {
		result, err := res.Limiter.Consume(ctx, "signin:203.0.113.7")
		var exceeded *ratelimit.ExceededError
		switch {
		case errors.As(err, &exceeded):
			fmt.Printf("attempt %d: rejected, retry after %s\n", attempt, exceeded.RetryAfter.Round(time.Second))
		case err != nil:
			log.Fatal(err)
		default:
			fmt.Printf("attempt %d: allowed, %d remaining\n", attempt, result.Remaining)
		}
	}
}
