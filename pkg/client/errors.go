package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrRetriesExhausted is returned when the retry budget is spent
// without a successful attempt. It wraps the last attempt's error.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// Kind classifies a partner API failure for retry decisions and metrics.
type Kind string

const (
	// KindThrottled marks requests rejected for exceeding the rate budget
	// (HTTP 429 or a QuotaExceeded error code in the body).
	KindThrottled Kind = "throttled"

	// KindTransient marks network failures, timeouts, and 5xx responses.
	KindTransient Kind = "transient"

	// KindPermanent marks failures a retry cannot fix.
	KindPermanent Kind = "permanent"

	// KindUnauthorized marks 401/403 responses.
	KindUnauthorized Kind = "unauthorized"
)

// APIError carries the classified context of a failed partner API call.
type APIError struct {
	Status    int
	Kind      Kind
	Endpoint  string
	RequestID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("spapi %s error on %s", e.Kind, e.Endpoint)
	if e.Status != 0 {
		msg = fmt.Sprintf("spapi %s error (status %d) on %s", e.Kind, e.Status, e.Endpoint)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// retryable reports whether a failure kind may draw from the retry
// budget. Unauthorized failures are handled separately: one credential
// refresh, then stop.
func retryable(kind Kind) bool {
	switch kind {
	case KindThrottled, KindTransient:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to a failure kind.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindThrottled
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// errorEnvelope is the error body the partner API returns on non-2xx
// responses.
type errorEnvelope struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// newAPIError builds an APIError from a non-2xx response, consuming at
// most 4 KiB of the body. A QuotaExceeded error code reclassifies the
// failure as throttled regardless of status.
func newAPIError(endpoint string, resp *http.Response) *APIError {
	apiErr := &APIError{
		Status:    resp.StatusCode,
		Kind:      classifyStatus(resp.StatusCode),
		Endpoint:  endpoint,
		RequestID: resp.Header.Get("x-amzn-RequestId"),
		Message:   resp.Status,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return apiErr
	}

	first := envelope.Errors[0]
	switch {
	case first.Code != "" && first.Message != "":
		apiErr.Message = first.Code + ": " + first.Message
	case first.Message != "":
		apiErr.Message = first.Message
	case first.Code != "":
		apiErr.Message = first.Code
	}

	for _, e := range envelope.Errors {
		if e.Code == "QuotaExceeded" {
			apiErr.Kind = KindThrottled
			break
		}
	}
	return apiErr
}
