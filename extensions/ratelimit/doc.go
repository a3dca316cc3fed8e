// Package ratelimit provides rate-limit registries for the duplicate payment guard.
//
// # Overview
//
// The guard in the checkout package counts declined payment attempts per
// session and refuses further attempts once the count reaches a threshold
// within a rolling window. The counts live in a checkout.RateLimitRegistry;
// this package provides two of them.
//
// # Usage
//
// In-memory registry for a single instance:
//
//	registry := ratelimit.NewMemoryRegistry(
//	    ratelimit.WithWindow(10 * time.Minute),
//	)
//	guard := checkout.NewDuplicatePaymentGuard(registry, checkout.WithThreshold(5))
//
// Redis registry shared by a cluster:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	registry := ratelimit.NewRedisRegistry(rdb,
//	    ratelimit.WithWindow(10 * time.Minute),
//	    ratelimit.WithKeyPrefix("shop-1:"),
//	)
//
// # Windows
//
// A window opens with the first decline of a session and lasts for the
// configured duration. Declines inside the window add to the count; the first
// decline after it opens a new window. A successful payment resets the
// session.
//
// The memory registry drops expired windows lazily. Long-running processes
// should call Prune periodically to bound memory for abandoned sessions.
// The Redis registry relies on key expiry instead.
package ratelimit
