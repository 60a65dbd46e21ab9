package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces the engine and the
// HTTP layer report through, so neither imports Prometheus directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc(kind, source string) {
	w.m.PredictionsTotal.WithLabelValues(kind, source).Inc()
}

func (w *MetricsWrapper) FailuresInc(kind, stage string) {
	w.m.FailuresTotal.WithLabelValues(kind, stage).Inc()
}

func (w *MetricsWrapper) LatencyObserve(kind string, seconds float64) {
	w.m.PredictionLatency.WithLabelValues(kind).Observe(seconds)
}

func (w *MetricsWrapper) RiskLevelInc(kind, level string) {
	w.m.RiskLevels.WithLabelValues(kind, level).Inc()
}

func (w *MetricsWrapper) FallbackUseInc(kind string) {
	w.m.FallbackUse.WithLabelValues(kind).Inc()
}

func (w *MetricsWrapper) RecoveriesInc(kind, outcome string) {
	w.m.Recoveries.WithLabelValues(kind, outcome).Inc()
	if outcome == "failed" {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) TrainingObserve(kind string, seconds float64) {
	w.m.TrainingDuration.WithLabelValues(kind).Observe(seconds)
	w.m.ModelAge.WithLabelValues(kind).Set(0)
}

func (w *MetricsWrapper) CacheHitsInc(kind string) {
	w.m.CacheHits.WithLabelValues(kind).Inc()
}

func (w *MetricsWrapper) BatchSizeObserve(n int) {
	w.m.BatchSize.Observe(float64(n))
}

// ModelAgeSet records the age of the serving model for kind.
func (w *MetricsWrapper) ModelAgeSet(kind string, seconds float64) {
	w.m.ModelAge.WithLabelValues(kind).Set(seconds)
}

// HTTPObserve records one finished HTTP request.
func (w *MetricsWrapper) HTTPObserve(route string, code int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
	if code >= 500 {
		w.m.ErrorsTotal.Inc()
	}
}

// RateLimitedInc counts a request rejected by the limiter.
func (w *MetricsWrapper) RateLimitedInc() {
	w.m.RateLimited.Inc()
}

// DashboardClientsSet records the connected dashboard client count.
func (w *MetricsWrapper) DashboardClientsSet(n int) {
	w.m.DashboardClients.Set(float64(n))
}

// AlertPublishedInc counts an alert pushed to dashboard clients.
func (w *MetricsWrapper) AlertPublishedInc() {
	w.m.AlertsPublished.Inc()
}
