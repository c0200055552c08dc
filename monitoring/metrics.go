package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mlplayground/recommend"
)

// Metrics groups the service's Prometheus collectors on a private registry
// so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	TrainingRuns     *prometheus.CounterVec
	TrainingAccuracy *prometheus.GaugeVec
	Predictions      *prometheus.CounterVec
	ModelCache       *prometheus.CounterVec
	WorkerEvents     *prometheus.CounterVec
	WebsocketClients prometheus.Gauge
	RecordsRejected  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_training_runs_total",
			Help: "Completed training runs by model type",
		}, []string{"model_type"}),
		TrainingAccuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "model_training_accuracy",
			Help: "Final training accuracy of the most recent run by model type",
		}, []string{"model_type"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_predictions_total",
			Help: "Predictions served by top label",
		}, []string{"label"}),
		ModelCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_cache_lookups_total",
			Help: "Decoded model cache lookups by result",
		}, []string{"result"}),
		WorkerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommend_worker_events_total",
			Help: "Events published by the recommendation worker",
		}, []string{"type"}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Currently connected websocket clients",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "records_rejected_total",
			Help: "Input records rejected by validation",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.TrainingRuns,
		m.TrainingAccuracy,
		m.Predictions,
		m.ModelCache,
		m.WorkerEvents,
		m.WebsocketClients,
		m.RecordsRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTraining(modelType string, accuracy float64) {
	m.TrainingRuns.WithLabelValues(modelType).Inc()
	m.TrainingAccuracy.WithLabelValues(modelType).Set(accuracy)
}

// Publish counts worker events; it lets Metrics subscribe to the worker bus.
func (m *Metrics) Publish(e recommend.Event) {
	m.WorkerEvents.WithLabelValues(string(e.Type)).Inc()
}
