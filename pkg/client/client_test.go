package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FridaySalami/spapi-sync/pkg/auth"
	"github.com/FridaySalami/spapi-sync/pkg/cache"
	"github.com/FridaySalami/spapi-sync/pkg/ratelimit"
	"github.com/FridaySalami/spapi-sync/pkg/signing"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fakeLWA is a token endpoint that issues tok-1, tok-2, ... per exchange.
type fakeLWA struct {
	srv       *httptest.Server
	exchanges atomic.Int64
}

func newFakeLWA(t *testing.T) *fakeLWA {
	t.Helper()

	f := &fakeLWA{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// newTestClient wires a client against the given API and token servers
// with a single generous "orders" rate class.
func newTestClient(t *testing.T, apiURL, tokenURL string, retry RetryConfig, cacheMgr *cache.Manager) *Client {
	t.Helper()

	tokens, err := auth.NewManager(auth.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		TokenURL:     tokenURL,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("auth.NewManager() error: %v", err)
	}

	signer, err := signing.New(signing.Identity{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "test-secret-access-key",
		Region:          "eu-west-1",
	})
	if err != nil {
		t.Fatalf("signing.New() error: %v", err)
	}

	limiter, err := ratelimit.New(map[string]ratelimit.Budget{
		"orders": {RPS: 1000, Burst: 1000},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("ratelimit.New() error: %v", err)
	}

	c, err := New(Config{
		Endpoint:  apiURL,
		UserAgent: "spapi-sync/1.0 (tests)",
		Tokens:    tokens,
		Signer:    signer,
		Limiter:   limiter,
		Cache:     cacheMgr,
		Retry:     retry,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func ordersRequest() Request {
	return Request{
		Op:    "getOrders",
		Class: "orders",
		Path:  "/orders/v0/orders",
		Query: url.Values{
			"MarketplaceIds": {"A1F83G8C2ARO7P"},
			"CreatedAfter":   {"2025-01-01T00:00:00Z"},
		},
	}
}

func TestNewValidation(t *testing.T) {
	tokens, err := auth.NewManager(auth.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		TokenURL:     "https://token.example/o2/token",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("auth.NewManager() error: %v", err)
	}
	signer, err := signing.New(signing.Identity{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "test-secret-access-key",
		Region:          "eu-west-1",
	})
	if err != nil {
		t.Fatalf("signing.New() error: %v", err)
	}
	limiter, err := ratelimit.New(map[string]ratelimit.Budget{
		"orders": {RPS: 1, Burst: 1},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("ratelimit.New() error: %v", err)
	}

	valid := Config{
		Endpoint:  "https://api.example.com",
		UserAgent: "spapi-sync/1.0",
		Tokens:    tokens,
		Signer:    signer,
		Limiter:   limiter,
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:     "missing endpoint",
			mutate:   func(c *Config) { c.Endpoint = "" },
			errorMsg: "endpoint is required",
		},
		{
			name:     "relative endpoint",
			mutate:   func(c *Config) { c.Endpoint = "api.example.com/path" },
			errorMsg: `endpoint "api.example.com/path" is not an absolute URL`,
		},
		{
			name:     "missing user agent",
			mutate:   func(c *Config) { c.UserAgent = "" },
			errorMsg: "user-agent is required",
		},
		{
			name:     "missing token manager",
			mutate:   func(c *Config) { c.Tokens = nil },
			errorMsg: "token manager is required",
		},
		{
			name:     "missing signer",
			mutate:   func(c *Config) { c.Signer = nil },
			errorMsg: "request signer is required",
		},
		{
			name:     "missing rate limiter",
			mutate:   func(c *Config) { c.Limiter = nil },
			errorMsg: "rate limiter is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			c, err := New(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("New() error: %v", err)
				}
				if c == nil {
					t.Fatal("New() returned nil client")
				}
				return
			}
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if err.Error() != tt.errorMsg {
				t.Errorf("error = %q, want %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestDoSuccess(t *testing.T) {
	lwa := newFakeLWA(t)

	var mu sync.Mutex
	var gotMethod, gotPath, gotRawQuery, gotToken, gotAuthz, gotDate, gotUA string

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotRawQuery = r.URL.RawQuery
		gotToken = r.Header.Get("x-amz-access-token")
		gotAuthz = r.Header.Get("Authorization")
		gotDate = r.Header.Get("x-amz-date")
		gotUA = r.Header.Get("User-Agent")
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payload":{"Orders":[{"AmazonOrderId":"026-5310963-4131543"}]}}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(2), nil)

	var out struct {
		Payload struct {
			Orders []struct {
				AmazonOrderID string `json:"AmazonOrderId"`
			} `json:"Orders"`
		} `json:"payload"`
	}
	if err := c.Do(context.Background(), ordersRequest(), &out); err != nil {
		t.Fatalf("Do() error: %v", err)
	}

	if len(out.Payload.Orders) != 1 || out.Payload.Orders[0].AmazonOrderID != "026-5310963-4131543" {
		t.Errorf("decoded payload = %+v, want one order", out.Payload)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodGet {
		t.Errorf("method = %q, want GET", gotMethod)
	}
	if gotPath != "/orders/v0/orders" {
		t.Errorf("path = %q, want /orders/v0/orders", gotPath)
	}
	wantQuery := "CreatedAfter=2025-01-01T00%3A00%3A00Z&MarketplaceIds=A1F83G8C2ARO7P"
	if gotRawQuery != wantQuery {
		t.Errorf("raw query = %q, want %q", gotRawQuery, wantQuery)
	}
	if gotToken != "tok-1" {
		t.Errorf("x-amz-access-token = %q, want tok-1", gotToken)
	}
	if !strings.HasPrefix(gotAuthz, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/") {
		t.Errorf("Authorization = %q, want AWS4-HMAC-SHA256 credential header", gotAuthz)
	}
	if !strings.Contains(gotAuthz, "SignedHeaders=") || !strings.Contains(gotAuthz, "Signature=") {
		t.Errorf("Authorization = %q missing signed header list or signature", gotAuthz)
	}
	if gotDate == "" {
		t.Error("x-amz-date header missing")
	}
	if gotUA != "spapi-sync/1.0 (tests)" {
		t.Errorf("User-Agent = %q, want configured value", gotUA)
	}
}

func TestDoRetriesThrottledThenSucceeds(t *testing.T) {
	lwa := newFakeLWA(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"errors":[{"code":"QuotaExceeded","message":"You exceeded your quota."}]}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payload":{}}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(3), nil)

	if err := c.Do(context.Background(), ordersRequest(), nil); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("upstream hits = %d, want 3", got)
	}
}

func TestDoRetryCeilingExhausted(t *testing.T) {
	lwa := newFakeLWA(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"errors":[{"code":"QuotaExceeded","message":"You exceeded your quota."}]}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(2), nil)

	err := c.Do(context.Background(), ordersRequest(), nil)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() = %v, want ErrRetriesExhausted", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("upstream hits = %d, want 3 (first attempt plus two retries)", got)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Do() = %v, want wrapped *APIError", err)
	}
	if apiErr.Kind != KindThrottled || apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("wrapped error = %+v, want throttled 429", apiErr)
	}
}

func TestDoPermanentNotRetried(t *testing.T) {
	lwa := newFakeLWA(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[{"code":"NotFound","message":"Order not found."}]}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(3), nil)

	err := c.Do(context.Background(), ordersRequest(), nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Do() = %v, want *APIError", err)
	}
	if apiErr.Kind != KindPermanent || apiErr.Status != http.StatusNotFound {
		t.Errorf("error = %+v, want permanent 404", apiErr)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("permanent failures must not be reported as exhausted")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestDoUnauthorizedRefreshesTokenOnce(t *testing.T) {
	lwa := newFakeLWA(t)

	var hits atomic.Int64
	var mu sync.Mutex
	var tokensSeen []string

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokensSeen = append(tokensSeen, r.Header.Get("x-amz-access-token"))
		mu.Unlock()

		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"errors":[{"code":"Unauthorized","message":"Access token expired."}]}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payload":{}}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(3), nil)

	if err := c.Do(context.Background(), ordersRequest(), nil); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2", got)
	}
	if got := lwa.exchanges.Load(); got != 2 {
		t.Errorf("token exchanges = %d, want 2 (initial plus refresh after 401)", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"tok-1", "tok-2"}
	if len(tokensSeen) != 2 || tokensSeen[0] != want[0] || tokensSeen[1] != want[1] {
		t.Errorf("tokens seen = %v, want %v", tokensSeen, want)
	}
}

func TestDoSecondUnauthorizedAborts(t *testing.T) {
	lwa := newFakeLWA(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":[{"code":"Unauthorized","message":"Access denied."}]}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(3), nil)

	err := c.Do(context.Background(), ordersRequest(), nil)
	if !errors.Is(err, auth.ErrAuthFailed) {
		t.Fatalf("Do() = %v, want auth.ErrAuthFailed", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2", got)
	}
}

func TestDoQuotaExceededForbiddenBacksOff(t *testing.T) {
	lwa := newFakeLWA(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"errors":[{"code":"QuotaExceeded","message":"Request rejected."}]}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payload":{}}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(3), nil)

	if err := c.Do(context.Background(), ordersRequest(), nil); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2", got)
	}
	if got := lwa.exchanges.Load(); got != 1 {
		t.Errorf("token exchanges = %d, want 1 (quota rejections must not invalidate the token)", got)
	}
}

func TestDoDecodeErrorPermanent(t *testing.T) {
	lwa := newFakeLWA(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `this is not json`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(3), nil)

	var out map[string]any
	err := c.Do(context.Background(), ordersRequest(), &out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindPermanent {
		t.Fatalf("Do() = %v, want permanent *APIError", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestDoNetworkErrorRetriedAsTransient(t *testing.T) {
	lwa := newFakeLWA(t)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	apiURL := api.URL
	api.Close()

	c := newTestClient(t, apiURL, lwa.srv.URL, fastRetry(1), nil)

	err := c.Do(context.Background(), ordersRequest(), nil)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() = %v, want ErrRetriesExhausted", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindTransient {
		t.Fatalf("Do() = %v, want wrapped transient *APIError", err)
	}
}

// setupTestRedis skips the test when no local Redis is available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return rdb
}

func TestDoCachesResponses(t *testing.T) {
	lwa := newFakeLWA(t)
	rdb := setupTestRedis(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payload":{"n":1}}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(2), cache.NewManager(rdb))

	req := ordersRequest()
	req.CacheTTL = time.Minute

	var first, second map[string]any
	if err := c.Do(context.Background(), req, &first); err != nil {
		t.Fatalf("first Do() error: %v", err)
	}
	if err := c.Do(context.Background(), req, &second); err != nil {
		t.Fatalf("second Do() error: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1 (second call served from cache)", got)
	}

	other := ordersRequest()
	other.CacheTTL = time.Minute
	other.Query.Set("CreatedAfter", "2025-02-01T00:00:00Z")
	if err := c.Do(context.Background(), other, nil); err != nil {
		t.Fatalf("third Do() error: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2 (different query misses the cache)", got)
	}
}

func TestDoZeroTTLSkipsCache(t *testing.T) {
	lwa := newFakeLWA(t)
	rdb := setupTestRedis(t)

	var hits atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payload":{}}`)
	}))
	t.Cleanup(api.Close)

	c := newTestClient(t, api.URL, lwa.srv.URL, fastRetry(2), cache.NewManager(rdb))

	req := ordersRequest()
	for i := 0; i < 2; i++ {
		if err := c.Do(context.Background(), req, nil); err != nil {
			t.Fatalf("Do() error: %v", err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2 (zero TTL disables caching)", got)
	}
}
