package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Engine metrics
	RotationsTotal    *prometheus.CounterVec
	ReloadsTotal      *prometheus.CounterVec
	ReloadDuration    prometheus.Histogram
	PoolSize          prometheus.Gauge
	EngineState       *prometheus.GaugeVec
	ClicksTotal       prometheus.Counter
	ImpressionsTotal  prometheus.Counter
	RecordsSkipped    *prometheus.CounterVec
	ActivationsFailed *prometheus.CounterVec

	// External API metrics
	ExternalAPICalls    *prometheus.CounterVec
	ExternalAPIDuration *prometheus.HistogramVec
	ExternalAPIFailures *prometheus.CounterVec
}

// New registers all collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		RotationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adrotator_rotations_total",
				Help: "Rotation ticks by outcome",
			},
			[]string{"result"},
		),

		ReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adrotator_reloads_total",
				Help: "Inventory reloads by outcome",
			},
			[]string{"result"},
		),

		ReloadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adrotator_reload_duration_seconds",
				Help:    "Time from issuing an inventory fetch to handling its result",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		PoolSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adrotator_pool_size",
				Help: "Number of ads in the current pool snapshot",
			},
		),

		EngineState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adrotator_engine_state",
				Help: "1 for the current engine state, 0 otherwise",
			},
			[]string{"state"},
		),

		ClicksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adrotator_clicks_total",
				Help: "User activations handled by the engine",
			},
		),

		ImpressionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adrotator_impressions_total",
				Help: "Ads shown by the engine",
			},
		),

		RecordsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adrotator_records_skipped_total",
				Help: "Inventory records dropped while building the pool",
			},
			[]string{"reason"},
		),

		ActivationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adrotator_activations_failed_total",
				Help: "User activations that could not be applied",
			},
			[]string{"reason"},
		),

		ExternalAPICalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api", "status"},
		),

		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_api_duration_seconds",
				Help:    "External API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api"},
		),

		ExternalAPIFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_failures_total",
				Help: "Total number of external API failures",
			},
			[]string{"api", "error_type"},
		),
	}
}

// HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) RecordRotation(result string) {
	m.RotationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReload(result string) {
	m.ReloadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReloadDuration(d time.Duration) {
	m.ReloadDuration.Observe(d.Seconds())
}

func (m *Metrics) SetPoolSize(n int) {
	m.PoolSize.Set(float64(n))
}

// SetEngineState flips the state gauge so exactly one label reads 1
func (m *Metrics) SetEngineState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.EngineState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) RecordClick() {
	m.ClicksTotal.Inc()
}

func (m *Metrics) RecordImpression() {
	m.ImpressionsTotal.Inc()
}

func (m *Metrics) RecordSkippedRecord(reason string) {
	m.RecordsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordActivationFailure(reason string) {
	m.ActivationsFailed.WithLabelValues(reason).Inc()
}

// External API call metrics
func (m *Metrics) RecordExternalAPICall(api, status string, duration time.Duration) {
	m.ExternalAPICalls.WithLabelValues(api, status).Inc()
	m.ExternalAPIDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// External API failure metrics
func (m *Metrics) RecordExternalAPIFailure(api, errorType string) {
	m.ExternalAPIFailures.WithLabelValues(api, errorType).Inc()
}

// HTTP requests in flight counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTP requests in flight counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
