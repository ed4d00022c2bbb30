package httpapi

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Metrics implementa ports.IngestObserver sobre un registry de Prometheus propio.
type Metrics struct {
	registry *prometheus.Registry

	MessagesDropped  *prometheus.CounterVec
	SignalsCommitted *prometheus.CounterVec
	CommitFailures   *prometheus.CounterVec
	CommitRetries    *prometheus.CounterVec
	Confidence       prometheus.Histogram
	LastPeriodID     prometheus.Gauge
	WSClients        prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
}

// NewMetrics crea y registra todas las métricas del servicio.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_messages_dropped_total",
				Help: "Messages that did not produce a signal, by source and reason",
			},
			[]string{"source", "reason"},
		),
		SignalsCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_signals_committed_total",
				Help: "Signals persisted to the ledger, by source and verification outcome",
			},
			[]string{"source", "verified"},
		),
		CommitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_commit_failures_total",
				Help: "Signals lost after exhausting commit retries",
			},
			[]string{"source"},
		),
		CommitRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_commit_retries_total",
				Help: "Commit attempts that failed and were retried",
			},
			[]string{"source"},
		),
		Confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalbot_signal_confidence",
				Help:    "Confidence of committed signals (0-100)",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		),
		LastPeriodID: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalbot_last_period_id",
				Help: "Last period id committed",
			},
		),
		WSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalbot_ws_clients",
				Help: "Connected websocket subscribers",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		m.MessagesDropped,
		m.SignalsCommitted,
		m.CommitFailures,
		m.CommitRetries,
		m.Confidence,
		m.LastPeriodID,
		m.WSClients,
		m.HTTPRequests,
		collectors.NewGoCollector(),
	)
	return m
}

// MessageDropped cuenta un mensaje descartado.
func (m *Metrics) MessageDropped(source, reason string) {
	m.MessagesDropped.WithLabelValues(source, reason).Inc()
}

// SignalCommitted cuenta una señal persistida.
func (m *Metrics) SignalCommitted(v domain.VerifiedSignal) {
	m.SignalsCommitted.WithLabelValues(v.Source, strconv.FormatBool(v.Verified)).Inc()
	m.Confidence.Observe(v.Confidence)
	m.LastPeriodID.Set(float64(v.PeriodID))
}

// CommitFailed cuenta una señal perdida.
func (m *Metrics) CommitFailed(source string, _ error) {
	m.CommitFailures.WithLabelValues(source).Inc()
}

// CommitRetried cuenta un reintento de commit.
func (m *Metrics) CommitRetried(source string) {
	m.CommitRetries.WithLabelValues(source).Inc()
}

// Handler expone el registry en formato Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry devuelve el registry (tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
