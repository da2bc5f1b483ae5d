// Package metrics exposes Prometheus collectors for the crawl, index and
// query paths.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by several collectors.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeEmpty     = "empty"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeSkipped   = "skipped"
)

var (
	frontierPagesTotal         *prometheus.CounterVec
	frontierLinksEnqueuedTotal prometheus.Counter
	queueClaimsTotal           *prometheus.CounterVec
	indexPagesTotal            *prometheus.CounterVec
	indexPostingsTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	searchQueriesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWriters              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call more than once; every Observe function calls it.
func Init() {
	once.Do(func() {
		frontierPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_frontier_pages_total",
				Help: "Pages handled by the frontier, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		frontierLinksEnqueuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_frontier_links_enqueued_total",
				Help: "Discovered links pushed back onto the work queue.",
			},
		)

		queueClaimsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_queue_claims_total",
				Help: "Queue claim attempts, labeled by role and outcome.",
			},
			[]string{"role", "outcome"},
		)

		indexPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_index_pages_total",
				Help: "Pages handled by index writers, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		indexPostingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_index_postings_total",
				Help: "Posting upserts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_fetch_bytes_total",
				Help: "Response bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_search_queries_total",
				Help: "Keyword lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWriters = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_index_active_writers",
				Help: "Index writers currently processing a page.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFrontierPage counts one page handled by the frontier.
func ObserveFrontierPage(pageURL, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(pageURL)
	frontierPagesTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveLinksEnqueued adds n discovered links.
func ObserveLinksEnqueued(n int) {
	Init()
	if n > 0 {
		frontierLinksEnqueuedTotal.Add(float64(n))
	}
}

// ObserveClaim counts a queue claim for role ("frontier" or "indexer").
func ObserveClaim(role, outcome string) {
	Init()
	queueClaimsTotal.WithLabelValues(role, outcome).Inc()
}

// ObserveIndexPage counts one page handled by an index writer.
func ObserveIndexPage(pageURL, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(pageURL)
	indexPagesTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObservePostings records the written and failed upserts for one page.
func ObservePostings(written, failed int) {
	Init()
	if written > 0 {
		indexPostingsTotal.WithLabelValues(OutcomeSuccess).Add(float64(written))
	}
	if failed > 0 {
		indexPostingsTotal.WithLabelValues(OutcomeFailed).Add(float64(failed))
	}
}

// ObserveSearch counts a keyword lookup.
func ObserveSearch(outcome string) {
	Init()
	searchQueriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWriters increments the active writers gauge.
func IncActiveWriters() {
	Init()
	activeWriters.Inc()
}

// DecActiveWriters decrements the active writers gauge.
func DecActiveWriters() {
	Init()
	activeWriters.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
