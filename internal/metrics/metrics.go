// Package metrics exposes Prometheus collectors for the crawler service.
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
	fetchTotal             *prometheus.CounterVec
	fetchBytesTotal        *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	fetchInFlight          prometheus.Gauge
	cyclesTotal            *prometheus.CounterVec
	cycleDurationSeconds   prometheus.Histogram
	storiesTotal           *prometheus.CounterVec
	ledgerSize             prometheus.Gauge
	sideChannelErrorsTotal *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec

	once sync.Once
)

// Fetch results used as label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultIdle  = "idle"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ycrawler_fetch_total",
				Help: "Total number of fetches, labeled by task kind and result.",
			},
			[]string{"kind", "result"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ycrawler_fetch_bytes_total",
				Help: "Total number of body bytes fetched, labeled by task kind.",
			},
			[]string{"kind"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ycrawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies including admission wait.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		fetchInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ycrawler_fetch_in_flight",
				Help: "Number of fetches currently holding an admission slot.",
			},
		)

		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ycrawler_cycles_total",
				Help: "Total number of polling cycles, labeled by result.",
			},
			[]string{"result"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ycrawler_cycle_duration_seconds",
				Help:    "Wall time per polling cycle.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		)

		storiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ycrawler_stories_total",
				Help: "Stories dispatched, labeled by outcome (complete, partial).",
			},
			[]string{"outcome"},
		)

		ledgerSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ycrawler_ledger_size",
				Help: "Number of story ids in the dedup ledger.",
			},
		)

		sideChannelErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ycrawler_side_channel_errors_total",
				Help: "Failures of optional side channels (catalog, publish).",
			},
			[]string{"channel"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of admin HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of admin HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObserveFetch records one finished fetch.
func ObserveFetch(kind string, err error, bytesFetched int, duration time.Duration) {
	Init()
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	fetchTotal.WithLabelValues(kind, result).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(kind).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncInFlight increments the in-flight fetch gauge.
func IncInFlight() {
	Init()
	fetchInFlight.Inc()
}

// DecInFlight decrements the in-flight fetch gauge.
func DecInFlight() {
	Init()
	fetchInFlight.Dec()
}

// ObserveCycle records a finished cycle with result ok, idle, or error.
func ObserveCycle(result string, duration time.Duration) {
	Init()
	cyclesTotal.WithLabelValues(result).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveStory records a dispatched story outcome.
func ObserveStory(complete bool) {
	Init()
	outcome := "complete"
	if !complete {
		outcome = "partial"
	}
	storiesTotal.WithLabelValues(outcome).Inc()
}

// SetLedgerSize publishes the current ledger size.
func SetLedgerSize(n int) {
	Init()
	ledgerSize.Set(float64(n))
}

// ObserveSideChannelError counts a catalog or publish failure.
func ObserveSideChannelError(channel string) {
	Init()
	sideChannelErrorsTotal.WithLabelValues(channel).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
