// Package cache provides optional response caching with a Redis backend.
//
// The partner API charges every request against a per-endpoint rate
// budget, so a cached read is a permit saved: the client consults the
// cache before acquiring a rate permit and a hit costs no budget.
// Responses carry no caching headers, so each endpoint descriptor
// supplies its own TTL (pricing stays fresh for minutes, catalog
// attributes for hours).
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager
//	manager := cache.NewManager(redisClient)
//
//	// Create cache key
//	key := cache.Key{
//		Endpoint: "/products/pricing/v0/competitivePrice",
//		Query:    url.Values{"Asins": []string{"B0EXAMPLE1"}},
//	}
//
//	// Get from cache
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from the API
//	}
//
//	// Store a response for 15 minutes
//	entry = cache.NewEntry(resp.StatusCode, body, 15*time.Minute)
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - spapi_cache_hits_total - Cache hits
//   - spapi_cache_misses_total - Cache misses
//   - spapi_cache_errors_total{operation} - Cache operation errors
package cache
