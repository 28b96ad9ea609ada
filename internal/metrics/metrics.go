// Package metrics exposes Prometheus collectors for the report crawler.
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

// Source attempt outcomes.
const (
	OutcomeRows   = "rows"
	OutcomeNoData = "no_data"
)

var (
	sourceAttemptsTotal           *prometheus.CounterVec
	countriesTotal                *prometheus.CounterVec
	unparsedPopulationTotal       *prometheus.CounterVec
	fetchesTotal                  *prometheus.CounterVec
	fetchBytesTotal               *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	runDurationSeconds            prometheus.Histogram
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	headlessPromotionsTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citypop_source_attempts_total",
				Help: "Source adapter attempts, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		countriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citypop_countries_total",
				Help: "Countries processed, labeled by whether any source yielded rows.",
			},
			[]string{"result"},
		)

		unparsedPopulationTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citypop_unparsed_population_total",
				Help: "Population cells that failed to parse, labeled by source and policy.",
			},
			[]string{"source", "policy"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citypop_fetches_total",
				Help: "Upstream page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citypop_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "citypop_run_duration_seconds",
				Help:    "Wall time of complete pipeline runs.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "citypop_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citypop_headless_promotions_total",
				Help: "Static fetches re-run through the headless browser.",
			},
			[]string{"site", "result"},
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

// ObserveSourceAttempt counts one source adapter invocation.
func ObserveSourceAttempt(source, outcome string) {
	Init()
	sourceAttemptsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveCountry counts a processed country.
func ObserveCountry(found bool) {
	Init()
	result := "found"
	if !found {
		result = "not_found"
	}
	countriesTotal.WithLabelValues(result).Inc()
}

// ObserveUnparsedPopulation counts population cells that failed to parse.
func ObserveUnparsedPopulation(source, policy string, n int) {
	if n <= 0 {
		return
	}
	Init()
	unparsedPopulationTotal.WithLabelValues(source, policy).Add(float64(n))
}

// ObserveFetch records an upstream fetch.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	fetchesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRun records the duration of a pipeline run.
func ObserveRun(duration time.Duration) {
	Init()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObservePromotion counts a static fetch promoted to the headless fetcher.
func ObservePromotion(site string, ok bool) {
	Init()
	result := "ok"
	if !ok {
		result = "failed"
	}
	headlessPromotionsTotal.WithLabelValues(SanitizeSite(site), result).Inc()
}
