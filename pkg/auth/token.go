// Package auth manages the short-lived access token derived from the
// long-lived refresh credential.
//
// The manager caches one access token and hands it out until its expiry
// comes within the configured safety margin, then exchanges the refresh
// credential for a fresh one. Concurrent refreshes are coalesced: only
// one exchange is in flight at a time and all callers share its result.
// The refresh credential, client secret, and access token are never
// logged and never persisted.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for token management.
var (
	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spapi_token_refreshes_total",
			Help: "Total number of token exchanges by outcome",
		},
		[]string{"outcome"},
	)

	tokenCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spapi_token_cache_hits_total",
			Help: "Total number of credential requests served from cache",
		},
	)
)

// ErrAuthFailed indicates the token exchange was rejected. Auth
// failures are permanent: the manager never retries them on its own and
// callers are expected to abort the run.
var ErrAuthFailed = errors.New("auth: token exchange failed")

// Config holds token manager configuration.
type Config struct {
	// ClientID and ClientSecret identify the application to the token
	// endpoint.
	ClientID     string
	ClientSecret string

	// RefreshToken is the long-lived refresh credential. Read-only for
	// the engine's lifetime.
	RefreshToken string

	// TokenURL is the token exchange endpoint.
	TokenURL string

	// SafetyMargin is how long before expiry a cached token stops being
	// handed out (default: 60s).
	SafetyMargin time.Duration

	// HTTPClient is the client used for the exchange (default: 30s
	// timeout).
	HTTPClient *http.Client
}

// Manager caches and refreshes the access token.
type Manager struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger

	// now is injectable for tests with a fake clock.
	now func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// NewManager creates a token manager.
func NewManager(cfg Config, logger zerolog.Logger) (*Manager, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("auth: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("auth: client secret is required")
	}
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("auth: refresh token is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("auth: token url is required")
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Manager{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Token returns a valid access token, refreshing it first if the cached
// one is absent or within the safety margin of expiry. The cached path
// takes a read lock only.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if tok, ok := m.cached(); ok {
		tokenCacheHitsTotal.Inc()
		return tok, nil
	}

	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		// A refresh that completed while this caller queued suffices.
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next Token call performs a
// fresh exchange. Used when the API rejects a request as unauthorized
// mid-run.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiry = time.Time{}
	m.mu.Unlock()

	m.logger.Debug().Msg("Cached access token invalidated")
}

// cached returns the token if its expiry is more than the safety margin
// away. The raw expiry is stored; the margin is applied here on read.
func (m *Manager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" {
		return "", false
	}
	if m.expiry.Sub(m.now()) <= m.cfg.SafetyMargin {
		return "", false
	}
	return m.token, true
}

// tokenResponse is the token endpoint's success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenError is the token endpoint's error body. Its fields carry no
// secrets and are safe to log.
type tokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// refresh performs one token exchange and caches the result. Any
// failure surfaces ErrAuthFailed and caches nothing.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.cfg.RefreshToken},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tokenRefreshesTotal.WithLabelValues("error").Inc()

		var lwaErr tokenError
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, &lwaErr)

		m.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("error_code", lwaErr.Code).
			Msg("Token exchange rejected")

		if lwaErr.Code != "" {
			return "", fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, lwaErr.Code)
		}
		return "", fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		tokenRefreshesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: decode response: %w", ErrAuthFailed, err)
	}
	if tok.AccessToken == "" || tok.ExpiresIn <= 0 {
		tokenRefreshesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: response missing token or ttl", ErrAuthFailed)
	}

	expiry := m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	m.mu.Lock()
	m.token = tok.AccessToken
	m.expiry = expiry
	m.mu.Unlock()

	tokenRefreshesTotal.WithLabelValues("ok").Inc()
	m.logger.Info().
		Int64("expires_in", tok.ExpiresIn).
		Msg("Access token refreshed")

	return tok.AccessToken, nil
}
