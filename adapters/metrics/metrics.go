// Package metrics provides Prometheus metrics collection for the credit meter.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "creditmeter"

// Track outcomes.
const (
	OutcomeCharged  = "charged"
	OutcomeRejected = "rejected"
	OutcomeUnknown  = "unknown_event"
	OutcomeInvalid  = "invalid_data"
	OutcomeNoOrg    = "org_not_found"
	OutcomeError    = "error"
)

// Collector holds all Prometheus metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	// Tracking metrics
	TrackTotal      *prometheus.CounterVec
	CreditsConsumed *prometheus.CounterVec
	TrackDuration   prometheus.Histogram
	LimitWarnings   *prometheus.CounterVec

	// Catalog metrics
	CatalogRefreshes *prometheus.CounterVec
	CatalogEntries   *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Tests use a fresh registry to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		TrackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "track_total",
				Help:      "Total number of track calls by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		CreditsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_consumed_total",
				Help:      "Total credits charged by event type",
			},
			[]string{"event_type"},
		),
		TrackDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "track_duration_seconds",
				Help:      "Duration of track calls in seconds",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		LimitWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "limit_warnings_total",
				Help:      "Limit warnings attached to charges, by level",
			},
			[]string{"level"},
		),
		CatalogRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_refreshes_total",
				Help:      "Catalog refresh attempts by catalog and result",
			},
			[]string{"catalog", "result"},
		),
		CatalogEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_entries",
				Help:      "Number of entries in each cached catalog",
			},
			[]string{"catalog"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// ObserveTrack records one track call.
func (c *Collector) ObserveTrack(eventType, outcome string, credits int64, d time.Duration) {
	if c == nil {
		return
	}
	c.TrackTotal.WithLabelValues(eventType, outcome).Inc()
	c.TrackDuration.Observe(d.Seconds())
	if outcome == OutcomeCharged && credits > 0 {
		c.CreditsConsumed.WithLabelValues(eventType).Add(float64(credits))
	}
}

// ObserveWarning records a limit warning attached to a charge.
func (c *Collector) ObserveWarning(level string) {
	if c == nil {
		return
	}
	c.LimitWarnings.WithLabelValues(level).Inc()
}

// ObserveRefresh records a catalog refresh attempt and, on success, its size.
func (c *Collector) ObserveRefresh(catalog string, entries int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.CatalogRefreshes.WithLabelValues(catalog, "error").Inc()
		return
	}
	c.CatalogRefreshes.WithLabelValues(catalog, "ok").Inc()
	c.CatalogEntries.WithLabelValues(catalog).Set(float64(entries))
}

// ObserveReload records a config reload attempt.
func (c *Collector) ObserveReload(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// ObserveHTTP records a completed HTTP request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, StatusClass(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StatusClass buckets a status code as "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
