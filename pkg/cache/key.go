package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key represents a unique identifier for a cached API response.
type Key struct {
	// Endpoint is the request path (e.g., "/orders/v0/orders").
	Endpoint string

	// Query is the request query string.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: spapi:endpoint:query1=val1:query2=val2
//
// Example:
//
//	spapi:orders/v0/orders:CreatedAfter=2025-01-01T00:00:00Z:MarketplaceIds=A1F83G8C2ARO7P
func (k Key) String() string {
	parts := []string{"spapi"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism; repeated params joined.
	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Query[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
