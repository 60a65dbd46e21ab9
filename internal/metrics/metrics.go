// Package metrics provides Prometheus metrics collection for the risk service.
// It defines the prediction, training, HTTP and dashboard metrics exposed via
// the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal  *prometheus.CounterVec   // Served predictions by kind and source
	FailuresTotal     *prometheus.CounterVec   // Failed predictions by kind and stage
	PredictionLatency *prometheus.HistogramVec // End-to-end engine latency
	RiskLevels        *prometheus.CounterVec   // Served predictions by kind and tier
	FallbackUse       *prometheus.CounterVec   // Rule fallbacks caused by an unavailable model
	CacheHits         *prometheus.CounterVec   // Predictions served from the cache
	BatchSize         prometheus.Histogram     // Items per batch request

	// Model lifecycle metrics
	Recoveries       *prometheus.CounterVec   // Recovery attempts by kind and outcome
	TrainingDuration *prometheus.HistogramVec // Training wall time
	ModelAge         *prometheus.GaugeVec     // Seconds since the serving model was trained

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration *prometheus.HistogramVec // Request duration by route
	RateLimited  prometheus.Counter       // Requests rejected by the rate limiter

	// Dashboard metrics
	DashboardClients prometheus.Gauge   // Connected dashboard websocket clients
	AlertsPublished  prometheus.Counter // AT_RISK alerts pushed to the dashboard

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_predictions_total",
			Help: "Total number of predictions served",
		}, []string{"kind", "source"}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_prediction_failures_total",
			Help: "Total number of failed predictions by stage",
		}, []string{"kind", "stage"}),
		PredictionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"kind"}),
		RiskLevels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_levels_total",
			Help: "Predictions served by risk tier",
		}, []string{"kind", "level"}),
		FallbackUse: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_fallback_use_total",
			Help: "Total number of times rules replaced an unavailable model",
		}, []string{"kind"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_cache_hits_total",
			Help: "Predictions served from the prediction cache",
		}, []string{"kind"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_batch_size",
			Help:    "Number of items per batch request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		Recoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_model_recoveries_total",
			Help: "Model recovery attempts by outcome (loaded, trained, failed)",
		}, []string{"kind", "outcome"}),
		TrainingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"kind"}),
		ModelAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_model_age_seconds",
			Help: "Age of the serving model in seconds",
		}, []string{"kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		DashboardClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_dashboard_clients",
			Help: "Connected dashboard websocket clients",
		}),
		AlertsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_alerts_published_total",
			Help: "AT_RISK alerts pushed to dashboard clients",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
