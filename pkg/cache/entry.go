package cache

import (
	"time"
)

// Entry represents a cached API response.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// CachedAt is when the response was cached.
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale. Responses carry no
	// cache headers, so this comes from the endpoint's configured TTL.
	Expires time.Time `json:"expires"`
}

// NewEntry builds an entry for a response body with the given TTL.
func NewEntry(statusCode int, body []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:       body,
		StatusCode: statusCode,
		CachedAt:   now,
		Expires:    now.Add(ttl),
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
