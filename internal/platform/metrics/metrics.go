package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the relay.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	webhooksTotal       *prometheus.CounterVec
	broadcastsTotal     prometheus.Counter
	connectedClients    prometheus.Gauge
	providerErrorsTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	webhooksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_webhooks_received_total",
		Help: "Total number of authenticated webhook notifications by event type",
	}, []string{"type"})
	broadcastsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_total",
		Help: "Total number of stream_update messages published",
	})
	connectedClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_clients",
		Help: "Number of clients subscribed to the push channel",
	})
	providerErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_provider_errors_total",
		Help: "Total number of failed video provider calls by operation",
	}, []string{"operation"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		webhooksTotal,
		broadcastsTotal,
		connectedClients,
		providerErrorsTotal,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		webhooksTotal:       webhooksTotal,
		broadcastsTotal:     broadcastsTotal,
		connectedClients:    connectedClients,
		providerErrorsTotal: providerErrorsTotal,
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

// IncWebhooksReceived counts a webhook of the given event type.
// Malformed payloads are counted under "invalid".
func (m *Metrics) IncWebhooksReceived(eventType string) {
	if eventType == "" {
		eventType = "invalid"
	}
	m.webhooksTotal.WithLabelValues(eventType).Inc()
}

// IncBroadcasts increments the published updates counter.
func (m *Metrics) IncBroadcasts() {
	m.broadcastsTotal.Inc()
}

// SetConnectedClients sets the connected clients gauge.
func (m *Metrics) SetConnectedClients(n int) {
	m.connectedClients.Set(float64(n))
}

// IncProviderErrors counts a failed provider call for operation.
func (m *Metrics) IncProviderErrors(operation string) {
	m.providerErrorsTotal.WithLabelValues(operation).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
