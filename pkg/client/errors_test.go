package client

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want bool
	}{
		{name: "throttled is retryable", kind: KindThrottled, want: true},
		{name: "transient is retryable", kind: KindTransient, want: true},
		{name: "permanent is not retryable", kind: KindPermanent, want: false},
		{name: "unauthorized is not budget retryable", kind: KindUnauthorized, want: false},
		{name: "empty kind is not retryable", kind: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.kind); got != tt.want {
				t.Errorf("retryable(%q) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{status: 429, want: KindThrottled},
		{status: 401, want: KindUnauthorized},
		{status: 403, want: KindUnauthorized},
		{status: 500, want: KindTransient},
		{status: 503, want: KindTransient},
		{status: 400, want: KindPermanent},
		{status: 404, want: KindPermanent},
		{status: 422, want: KindPermanent},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestAPIErrorError(t *testing.T) {
	tests := []struct {
		name   string
		apiErr *APIError
		want   string
	}{
		{
			name: "status and message",
			apiErr: &APIError{
				Status:   429,
				Kind:     KindThrottled,
				Endpoint: "getOrders",
				Message:  "QuotaExceeded: request rate too high",
			},
			want: "spapi throttled error (status 429) on getOrders: QuotaExceeded: request rate too high",
		},
		{
			name: "network failure without status",
			apiErr: &APIError{
				Kind:     KindTransient,
				Endpoint: "getOrderItems",
				Message:  "request failed",
				Err:      errors.New("connection refused"),
			},
			want: "spapi transient error on getOrderItems: request failed: connection refused",
		},
		{
			name: "status without message",
			apiErr: &APIError{
				Status:   503,
				Kind:     KindTransient,
				Endpoint: "getCatalogItem",
			},
			want: "spapi transient error (status 503) on getCatalogItem",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiErr.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	wrapped := errors.New("dial tcp: connection refused")
	apiErr := &APIError{
		Kind:     KindTransient,
		Endpoint: "getOrders",
		Message:  "request failed",
		Err:      wrapped,
	}

	if !errors.Is(apiErr, wrapped) {
		t.Error("errors.Is should reach the wrapped error")
	}

	var target *APIError
	if !errors.As(error(apiErr), &target) {
		t.Error("errors.As should match *APIError")
	}
}

func newErrorResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    Kind
		wantMessage string
	}{
		{
			name:        "throttled with envelope",
			status:      429,
			body:        `{"errors":[{"code":"QuotaExceeded","message":"You exceeded your quota."}]}`,
			wantKind:    KindThrottled,
			wantMessage: "QuotaExceeded: You exceeded your quota.",
		},
		{
			name:        "quota code upgrades forbidden to throttled",
			status:      403,
			body:        `{"errors":[{"code":"QuotaExceeded","message":"Request rejected."}]}`,
			wantKind:    KindThrottled,
			wantMessage: "QuotaExceeded: Request rejected.",
		},
		{
			name:        "unauthorized stays unauthorized",
			status:      403,
			body:        `{"errors":[{"code":"Unauthorized","message":"Access denied."}]}`,
			wantKind:    KindUnauthorized,
			wantMessage: "Unauthorized: Access denied.",
		},
		{
			name:        "garbage body falls back to status text",
			status:      500,
			body:        `<html>bad gateway</html>`,
			wantKind:    KindTransient,
			wantMessage: http.StatusText(500),
		},
		{
			name:        "empty envelope falls back to status text",
			status:      404,
			body:        `{"errors":[]}`,
			wantKind:    KindPermanent,
			wantMessage: http.StatusText(404),
		},
		{
			name:        "code only",
			status:      400,
			body:        `{"errors":[{"code":"InvalidInput"}]}`,
			wantKind:    KindPermanent,
			wantMessage: "InvalidInput",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := newErrorResponse(tt.status, tt.body, nil)
			apiErr := newAPIError("getOrders", resp)

			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Endpoint != "getOrders" {
				t.Errorf("Endpoint = %q, want %q", apiErr.Endpoint, "getOrders")
			}
		})
	}
}

func TestNewAPIErrorRequestID(t *testing.T) {
	header := http.Header{}
	header.Set("x-amzn-RequestId", "7a3f9c2e-0b41-4d8a-9f6d-1c2e3a4b5c6d")

	resp := newErrorResponse(429, `{"errors":[{"code":"QuotaExceeded","message":"slow down"}]}`, header)
	apiErr := newAPIError("getOrders", resp)

	if apiErr.RequestID != "7a3f9c2e-0b41-4d8a-9f6d-1c2e3a4b5c6d" {
		t.Errorf("RequestID = %q, want header value", apiErr.RequestID)
	}
}
