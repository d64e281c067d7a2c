package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the camera gateway.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	tokensIssuedTotal      prometheus.Counter
	playlistsServedTotal   prometheus.Counter
	segmentsServedTotal    prometheus.Counter
	recordingsStartedTotal prometheus.Counter
	recordingsStoppedTotal prometheus.Counter
	activeRecordings       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	tokensIssuedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_stream_tokens_issued_total",
		Help: "Total number of stream tokens issued",
	})
	playlistsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_playlists_served_total",
		Help: "Total number of playlists served",
	})
	segmentsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_segments_served_total",
		Help: "Total number of media segments served",
	})
	recordingsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_recordings_started_total",
		Help: "Total number of recordings started",
	})
	recordingsStoppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_recordings_stopped_total",
		Help: "Total number of recordings stopped by request",
	})
	activeRecordings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_active_recordings",
		Help: "Number of capture processes currently recording",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		tokensIssuedTotal,
		playlistsServedTotal,
		segmentsServedTotal,
		recordingsStartedTotal,
		recordingsStoppedTotal,
		activeRecordings,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		tokensIssuedTotal:      tokensIssuedTotal,
		playlistsServedTotal:   playlistsServedTotal,
		segmentsServedTotal:    segmentsServedTotal,
		recordingsStartedTotal: recordingsStartedTotal,
		recordingsStoppedTotal: recordingsStoppedTotal,
		activeRecordings:       activeRecordings,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncTokensIssued increments the stream tokens issued counter.
func (m *Metrics) IncTokensIssued() {
	m.tokensIssuedTotal.Inc()
}

// IncPlaylistsServed increments the playlists served counter.
func (m *Metrics) IncPlaylistsServed() {
	m.playlistsServedTotal.Inc()
}

// IncSegmentsServed increments the segments served counter.
func (m *Metrics) IncSegmentsServed() {
	m.segmentsServedTotal.Inc()
}

// IncRecordingsStarted increments the recordings started counter.
func (m *Metrics) IncRecordingsStarted() {
	m.recordingsStartedTotal.Inc()
}

// IncRecordingsStopped increments the recordings stopped counter.
func (m *Metrics) IncRecordingsStopped() {
	m.recordingsStoppedTotal.Inc()
}

// SetActiveRecordings sets the active recordings gauge.
func (m *Metrics) SetActiveRecordings(n int) {
	m.activeRecordings.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active recordings).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
