// Package client provides the signed partner API HTTP client with rate
// limiting, response caching, bounded retries, and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FridaySalami/spapi-sync/pkg/auth"
	"github.com/FridaySalami/spapi-sync/pkg/cache"
	"github.com/FridaySalami/spapi-sync/pkg/ratelimit"
	"github.com/FridaySalami/spapi-sync/pkg/signing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for partner API client operations.
var (
	spapiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spapi_requests_total",
		Help: "Total partner API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	spapiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spapi_request_duration_seconds",
		Help:    "Partner API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	spapiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spapi_errors_total",
		Help: "Total partner API errors by kind",
	}, []string{"kind"})
)

// Request describes one partner API call.
type Request struct {
	// Op names the operation for logs and metrics, e.g. "getOrders".
	Op string

	// Class is the rate limit class the call draws a permit from.
	Class string

	// Path is the request path below the configured endpoint base.
	Path string

	// Query holds the query parameters. The client encodes them in the
	// canonical signed form before sending.
	Query url.Values

	// CacheTTL stores a successful response for this long. Zero disables
	// caching for the call.
	CacheTTL time.Duration
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the API base URL, e.g. https://sellingpartnerapi-eu.amazon.com.
	Endpoint string

	// UserAgent identifies this integration to the partner.
	UserAgent string

	// Tokens supplies short-lived access credentials.
	Tokens *auth.Manager

	// Signer signs every outbound request.
	Signer *signing.Signer

	// Limiter paces requests per resource class.
	Limiter *ratelimit.Limiter

	// Cache holds successful responses. Nil disables response caching.
	Cache *cache.Manager

	// Retry bounds the per-request retry loop. Zero value uses
	// DefaultRetryConfig.
	Retry RetryConfig

	// HTTPClient overrides the default 30 second timeout transport.
	HTTPClient *http.Client
}

// Client is the partner API client.
type Client struct {
	cfg        Config
	base       string
	httpClient *http.Client
	retry      RetryConfig
	logger     zerolog.Logger
}

// New creates a new partner API client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if u, err := url.Parse(cfg.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("endpoint %q is not an absolute URL", cfg.Endpoint)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("request signer is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.BackoffBase == 0 {
		retry = DefaultRetryConfig()
	}
	retry.OnUnauthorized = cfg.Tokens.Invalidate

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		cfg:        cfg,
		base:       strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: httpClient,
		retry:      retry,
		logger:     log.With().Str("component", "spapi-client").Logger(),
	}, nil
}

// Do performs one partner API call: response cache lookup, then a retry
// loop of rate permit, fresh access token, signature, send, and
// classification. Successful bodies are decoded into out when out is
// non-nil.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	start := time.Now()
	defer func() {
		spapiRequestDuration.WithLabelValues(r.Op).Observe(time.Since(start).Seconds())
	}()

	var key cache.Key
	cacheable := c.cfg.Cache != nil && r.CacheTTL > 0
	if cacheable {
		key = cache.Key{Endpoint: r.Op, Query: r.Query}
		entry, err := c.cfg.Cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().
				Str("endpoint", r.Op).
				Bool("cache_hit", true).
				Msg("Serving response from cache")
			return c.decode(r.Op, entry.Data, out)
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", r.Op).Msg("Cache get error")
		}
	}

	var body []byte
	var status int
	err := Execute(ctx, c.retry, r.Class, func() error {
		b, st, err := c.roundTrip(ctx, r)
		if err != nil {
			return err
		}
		body, status = b, st
		return nil
	})
	if err != nil {
		return err
	}

	if cacheable && status == http.StatusOK {
		if err := c.cfg.Cache.Set(ctx, key, cache.NewEntry(status, body, r.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", r.Op).Msg("Cache set error")
		}
	}

	return c.decode(r.Op, body, out)
}

// roundTrip performs a single signed attempt against the partner API.
func (c *Client) roundTrip(ctx context.Context, r Request) ([]byte, int, error) {
	if err := c.cfg.Limiter.Acquire(ctx, r.Class); err != nil {
		return nil, 0, fmt.Errorf("acquire permit: %w", err)
	}

	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+r.Path, nil)
	if err != nil {
		return nil, 0, &APIError{Kind: KindPermanent, Endpoint: r.Op, Message: "build request", Err: err}
	}
	if len(r.Query) > 0 {
		req.URL.RawQuery = signing.CanonicalQuery(r.Query)
	}

	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	if err := c.cfg.Signer.Sign(req, signing.EmptyBodyHash, time.Now().UTC()); err != nil {
		return nil, 0, &APIError{Kind: KindPermanent, Endpoint: r.Op, Message: "sign request", Err: err}
	}

	c.logger.Debug().
		Str("endpoint", r.Op).
		Str("class", r.Class).
		Msg("Executing partner API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		spapiErrorsTotal.WithLabelValues(string(KindTransient)).Inc()
		spapiRequestsTotal.WithLabelValues(r.Op, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", r.Op).Msg("HTTP request failed")
		return nil, 0, &APIError{Kind: KindTransient, Endpoint: r.Op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	c.cfg.Limiter.ObserveHeaders(r.Class, resp.Header)

	if resp.StatusCode >= 400 {
		apiErr := newAPIError(r.Op, resp)
		spapiErrorsTotal.WithLabelValues(string(apiErr.Kind)).Inc()
		spapiRequestsTotal.WithLabelValues(r.Op, strconv.Itoa(resp.StatusCode)).Inc()
		c.logger.Warn().
			Str("endpoint", r.Op).
			Int("status_code", resp.StatusCode).
			Str("kind", string(apiErr.Kind)).
			Str("request_id", apiErr.RequestID).
			Msg("Partner API request error")
		return nil, 0, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		spapiErrorsTotal.WithLabelValues(string(KindTransient)).Inc()
		return nil, 0, &APIError{Kind: KindTransient, Endpoint: r.Op, Message: "read response", Err: err}
	}

	spapiRequestsTotal.WithLabelValues(r.Op, strconv.Itoa(resp.StatusCode)).Inc()
	return body, resp.StatusCode, nil
}

// decode unmarshals a response body into out. Decode failures are
// permanent.
func (c *Client) decode(op string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		spapiErrorsTotal.WithLabelValues(string(KindPermanent)).Inc()
		return &APIError{Kind: KindPermanent, Endpoint: op, Message: "decode response", Err: err}
	}
	return nil
}
