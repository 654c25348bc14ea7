// Package metrics provides the centralized Prometheus metrics registry for
// the SP-API sync engine. All metrics are defined in their respective
// packages (client, cache, ratelimit, auth, sync) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the sync engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - spapi_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - spapi_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - spapi_errors_total{kind} (Counter): Errors by kind (throttled, transient, permanent, unauthorized)
//
// Retry Metrics (pkg/client):
//   - spapi_retries_total{kind} (Counter): Retry attempts by error kind
//   - spapi_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - spapi_retries_exhausted_total{kind} (Counter): Requests that exhausted the retry budget
//
// Rate Limit Metrics (pkg/ratelimit):
//   - spapi_rate_permit_wait_seconds{class} (Histogram): Time spent waiting for a permit
//   - spapi_rate_permits_total{class} (Counter): Permits granted by resource class
//   - spapi_rate_observed_limit{class} (Gauge): Rate ceiling observed from response headers
//
// Token Metrics (pkg/auth):
//   - spapi_token_refreshes_total{outcome} (Counter): Token exchanges by outcome (ok, error)
//   - spapi_token_cache_hits_total (Counter): Credential requests served from cache
//
// Cache Metrics (pkg/cache):
//   - spapi_cache_hits_total (Counter): Response cache hits
//   - spapi_cache_misses_total (Counter): Response cache misses
//   - spapi_cache_errors_total{operation} (Counter): Cache operation errors (get, set, delete)
//
// Sync Metrics (pkg/sync):
//   - spapi_sync_items_total{job, outcome} (Counter): Work items by job and outcome (succeeded, failed)
//   - spapi_sync_records_written_total{job} (Counter): Records reported written to the sink
//   - spapi_sync_run_duration_seconds{job} (Histogram): Run duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(spapi_cache_hits_total[5m])) /
//   (sum(rate(spapi_cache_hits_total[5m])) + sum(rate(spapi_cache_misses_total[5m])))
//
//   # Throttle Pressure
//   rate(spapi_errors_total{kind="throttled"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(spapi_request_duration_seconds_bucket[5m]))
//
//   # Permit Wait P99 by Class
//   histogram_quantile(0.99, rate(spapi_rate_permit_wait_seconds_bucket[5m]))
//
//   # Item Failure Rate
//   rate(spapi_sync_items_total{outcome="failed"}[5m])
