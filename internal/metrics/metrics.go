// Package metrics collects and exposes Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the auth and HTTP layers.
type Recorder interface {
	RecordAuthAttempt(outcome string)
	RecordTouchFailure()
	RecordHTTPStatus(statusCode int)
	RecordWhitelistLookup(duration time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	authAttempts    *prometheus.CounterVec
	touchFailures   prometheus.Counter
	httpStatus      *prometheus.CounterVec
	whitelistLookup prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrade_auth_attempts_total",
			Help: "Mini App authentication attempts by outcome.",
		}, []string{"outcome"}),
		touchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aitrade_whitelist_touch_failures_total",
			Help: "Failed best-effort last-active updates.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aitrade_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		whitelistLookup: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aitrade_whitelist_lookup_seconds",
			Help:    "Latency of whitelist lookups in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.touchFailures,
		c.httpStatus,
		c.whitelistLookup,
	)

	return c
}

// RecordAuthAttempt counts an authentication decision. outcome is "accepted"
// or an error kind.
func (c *Collector) RecordAuthAttempt(outcome string) {
	c.authAttempts.WithLabelValues(outcome).Inc()
}

// RecordTouchFailure counts a failed last-active update.
func (c *Collector) RecordTouchFailure() {
	c.touchFailures.Inc()
}

// RecordHTTPStatus counts a response status code.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWhitelistLookup observes a whitelist lookup latency.
func (c *Collector) RecordWhitelistLookup(duration time.Duration) {
	c.whitelistLookup.Observe(duration.Seconds())
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordAuthAttempt(string)            {}
func (Nop) RecordTouchFailure()                 {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordWhitelistLookup(time.Duration) {}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
