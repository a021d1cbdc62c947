// Package metrics exposes Prometheus collectors for the insights service.
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

// Tier labels for lookups.
const (
	TierCache   = "cache"
	TierStore   = "store"
	TierExtract = "extract"
)

var (
	tierLookupsTotal           *prometheus.CounterVec
	extractionDurationSeconds  *prometheus.HistogramVec
	recordsExtractedTotal      *prometheus.CounterVec
	recordsDroppedTotal        *prometheus.CounterVec
	cacheErrorsTotal           *prometheus.CounterVec
	snapshotsTotal             *prometheus.CounterVec
	acquisitionsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	navigationDelaySeconds     *prometheus.HistogramVec
	activeSessions             prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tierLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_tier_lookups_total",
				Help: "Lookups per tier, labeled by entity kind, tier and outcome.",
			},
			[]string{"kind", "tier", "outcome"},
		)

		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insights_extraction_duration_seconds",
				Help:    "Histogram of live extraction latencies, labeled by kind and outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"kind", "outcome"},
		)

		recordsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_records_extracted_total",
				Help: "Total number of records extracted from rendered pages.",
			},
			[]string{"kind"},
		)

		recordsDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_records_dropped_total",
				Help: "Total number of candidate records dropped during extraction, labeled by reason.",
			},
			[]string{"kind", "reason"},
		)

		cacheErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_cache_errors_total",
				Help: "Cache backend errors that were degraded to a miss or no-op.",
			},
			[]string{"backend", "op"},
		)

		snapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_snapshots_total",
				Help: "Rendered page snapshots archived, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		acquisitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_acquisitions_total",
				Help: "Composite acquisitions, labeled by outcome.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		navigationDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insights_navigation_delay_seconds",
				Help:    "Histogram of navigation pacing waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "insights_active_browser_sessions",
				Help: "Number of browser sessions currently open.",
			},
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

// ObserveTierLookup records one lookup against a tier.
func ObserveTierLookup(kind, tier, outcome string) {
	Init()
	tierLookupsTotal.WithLabelValues(kind, tier, outcome).Inc()
}

// ObserveExtraction records a finished extraction run.
func ObserveExtraction(kind, outcome string, records int, duration time.Duration) {
	Init()
	extractionDurationSeconds.WithLabelValues(kind, outcome).Observe(duration.Seconds())
	if records > 0 {
		recordsExtractedTotal.WithLabelValues(kind).Add(float64(records))
	}
}

// ObserveDroppedRecord counts a candidate that was discarded.
func ObserveDroppedRecord(kind, reason string) {
	Init()
	recordsDroppedTotal.WithLabelValues(kind, reason).Inc()
}

// ObserveCacheError counts a swallowed cache backend failure.
func ObserveCacheError(backend, op string) {
	Init()
	cacheErrorsTotal.WithLabelValues(backend, op).Inc()
}

// ObserveSnapshot counts an archived (or failed) page snapshot.
func ObserveSnapshot(outcome string) {
	Init()
	snapshotsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAcquisition counts a composite acquisition.
func ObserveAcquisition(outcome string) {
	Init()
	acquisitionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveNavigationDelay records the duration of a pacing wait.
func ObserveNavigationDelay(host string, duration time.Duration) {
	Init()
	navigationDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// IncActiveSessions increments the open browser sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the open browser sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}
