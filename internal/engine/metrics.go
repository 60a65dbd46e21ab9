package engine

// MetricsInterface is the instrumentation the engine reports to.
type MetricsInterface interface {
	PredictionsInc(kind, source string)
	FailuresInc(kind, stage string)
	LatencyObserve(kind string, seconds float64)
	RiskLevelInc(kind, level string)
	FallbackUseInc(kind string)
	RecoveriesInc(kind, outcome string)
	TrainingObserve(kind string, seconds float64)
	CacheHitsInc(kind string)
	BatchSizeObserve(n int)
}

type noopMetrics struct{}

func (noopMetrics) PredictionsInc(string, string) {}
func (noopMetrics) FailuresInc(string, string) {}
func (noopMetrics) LatencyObserve(string, float64) {}
func (noopMetrics) RiskLevelInc(string, string) {}
func (noopMetrics) FallbackUseInc(string) {}
func (noopMetrics) RecoveriesInc(string, string) {}
func (noopMetrics) TrainingObserve(string, float64) {}
func (noopMetrics) CacheHitsInc(string) {}
func (noopMetrics) BatchSizeObserve(int) {}
