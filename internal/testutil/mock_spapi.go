// Package testutil provides in-process fakes for exercising the sync
// engine without partner API access.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// TokenPath is the path the mock serves credential exchanges on. Point
// the token manager at URL()+TokenPath.
const TokenPath = "/auth/o2/token"

// MockResponse defines the behavior for one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSPAPI is a configurable in-process partner API server. It serves
// the credential exchange endpoint alongside the operation paths,
// counts requests per path, and records the headers of the most recent
// operation request so tests can assert on signing and token use.
// Credential exchanges are counted separately and issue a fresh token
// each time.
type MockSPAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	TokenExchanges    int
	pathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockSPAPI creates a new mock partner API server.
func NewMockSPAPI() *MockSPAPI {
	mock := &MockSPAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == TokenPath {
			mock.mu.Lock()
			mock.TokenExchanges++
			n := mock.TokenExchanges
			mock.mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"mock-token-%d","token_type":"bearer","expires_in":3600}`, n)
			return
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSPAPI) URL() string {
	return m.server.URL
}

// TokenURL returns the credential exchange URL.
func (m *MockSPAPI) TokenURL() string {
	return m.server.URL + TokenPath
}

// Close shuts down the mock server.
func (m *MockSPAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSPAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.TokenExchanges = 0
	m.pathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSPAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockSPAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, resp)
	})
}

// GetRequestCount returns the number of operation requests served.
// Credential exchanges are not included.
func (m *MockSPAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetTokenExchanges returns the number of credential exchanges served.
func (m *MockSPAPI) GetTokenExchanges() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenExchanges
}

// RequestsTo returns the number of operation requests served on path.
func (m *MockSPAPI) RequestsTo(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// defaultHandler answers unscripted paths with an empty payload.
func (m *MockSPAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("x-amzn-RequestId", "mock-request-id")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"payload":{}}`))
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPayloadResponse creates a 200 response carrying the given JSON
// body with the usual partner API headers.
func NewPayloadResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":           "application/json",
			"x-amzn-RequestId":       "mock-request-id",
			"x-amzn-RateLimit-Limit": "0.5",
		},
	}
}

// NewThrottledResponse creates a 429 QuotaExceeded response.
func NewThrottledResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"code":"QuotaExceeded","message":"You exceeded your quota for the requested resource."}]}`,
		Headers: map[string]string{
			"Content-Type":           "application/json",
			"x-amzn-RequestId":       "mock-throttle-id",
			"x-amzn-RateLimit-Limit": "0.0167",
		},
	}
}

// NewServerErrorResponse creates a 500 InternalFailure response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"code":"InternalFailure","message":"We encountered an internal error. Please try again."}]}`,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"x-amzn-RequestId": "mock-failure-id",
		},
	}
}

// NewUnauthorizedResponse creates a 401 Unauthorized response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"errors":[{"code":"Unauthorized","message":"Access to requested resource is denied."}]}`,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"x-amzn-RequestId": "mock-denied-id",
		},
	}
}

// NewNotFoundResponse creates a 404 NotFound response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"errors":[{"code":"NotFound","message":"The requested resource does not exist."}]}`,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"x-amzn-RequestId": "mock-missing-id",
		},
	}
}

// NewSequenceHandler creates a handler that serves the given responses
// in order. Once the script is exhausted the last response repeats.
func NewSequenceHandler(responses ...MockResponse) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	next := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		writeMockResponse(w, resp)
	}
}
