// Package metrics exposes Prometheus collectors for the professor crawler.
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

var (
	profilesTotal              *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fallbacksTotal             *prometheus.CounterVec
	storeBatchesTotal          *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		profilesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profcrawler_profiles_total",
				Help: "Profiles processed, labeled by university and outcome.",
			},
			[]string{"university", "outcome"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profcrawler_fetches_total",
				Help: "Page fetches, labeled by site, mode (static/headless) and outcome.",
			},
			[]string{"site", "mode", "outcome"},
		)

		fallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profcrawler_llm_fallbacks_total",
				Help: "LLM fallback invocations, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		storeBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profcrawler_store_batches_total",
				Help: "Batch inserts, labeled by table and outcome.",
			},
			[]string{"table", "outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profcrawler_runs_total",
				Help: "Pipeline runs, labeled by status.",
			},
			[]string{"status"},
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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
	return promhttp.Handler()
}

// ObserveProfile counts one processed profile.
func ObserveProfile(university, outcome string) {
	Init()
	profilesTotal.WithLabelValues(university, outcome).Inc()
}

// ObserveFetch counts one page fetch.
func ObserveFetch(rawURL, mode, outcome string) {
	Init()
	fetchesTotal.WithLabelValues(SanitizeSite(rawURL), mode, outcome).Inc()
}

// ObserveFallback counts one LLM fallback call.
func ObserveFallback(strategy, outcome string) {
	Init()
	fallbacksTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveBatch counts one batch insert.
func ObserveBatch(table, outcome string) {
	Init()
	storeBatchesTotal.WithLabelValues(table, outcome).Inc()
}

// ObserveRun counts one finished run.
func ObserveRun(status string) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
