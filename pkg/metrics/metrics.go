// Package metrics exposes the Prometheus registry used by the search client.
// All metrics are defined in their respective packages (client, pagination,
// pacing, ratelimit, diagnostics) to avoid circular dependencies.
//
// This package provides the HTTP handler and a reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the search client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - nyt_requests_total{status} (Counter): Search requests by HTTP status
//   - nyt_request_duration_seconds (Histogram): Search request duration
//   - nyt_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Pagination Metrics (pkg/pagination):
//   - nyt_pages_fetched_total (Counter): Result pages fetched
//   - nyt_fetch_all_total{outcome} (Counter): Paginated fetches by outcome (success, error, invalid, cancelled)
//   - nyt_duplicates_removed_total (Counter): Documents dropped as duplicate headlines
//
// Pacing Metrics (pkg/pacing):
//   - nyt_pacing_wait_seconds{pacer} (Histogram): Time spent waiting between requests
//   - nyt_pacing_cancelled_total{pacer} (Counter): Waits interrupted by cancellation
//
// Shared Rate Limit Metrics (pkg/ratelimit):
//   - nyt_ratelimit_reservations_total (Counter): Request slots reserved in Redis
//   - nyt_ratelimit_wait_seconds (Histogram): Time spent waiting for a reserved slot
//   - nyt_ratelimit_errors_total (Counter): Failed slot reservations
//
// Diagnostics Metrics (pkg/diagnostics):
//   - nyt_diagnostics_records_total{backend} (Counter): Request records stored
//   - nyt_diagnostics_record_errors_total{backend, operation} (Counter): Recorder failures
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(nyt_errors_total[5m])
//
//   # Rate Limit Rejections
//   rate(nyt_errors_total{class="rate_limit"}[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(nyt_request_duration_seconds_bucket[5m]))
//
//   # Share of Time Spent Pacing
//   rate(nyt_pacing_wait_seconds_sum[5m])
