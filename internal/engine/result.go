package engine

import (
	"time"

	"academic-risk/internal/features"
	"academic-risk/internal/ml"
)

// Source identifies what produced a score.
type Source string

const (
	SourceModel Source = "model"
	SourceRules Source = "rules"
)

// PredictionResult is the outcome of one prediction. It is never modified
// after the engine returns it.
type PredictionResult struct {
	Score        float64 `json:"score"`
	Confidence   float64 `json:"confidence"`
	RiskLevel    Level   `json:"risk_level"`
	ModelVersion string  `json:"model_version"`
	Kind         ml.Kind `json:"kind"`
	Source       Source  `json:"source"`
}

// Observation is delivered to observers after every successful prediction.
type Observation struct {
	EntityID string
	Features features.FeatureSet
	Result   PredictionResult
	At       time.Time
}

// Observer receives completed predictions. Implementations must not block.
type Observer interface {
	ObservePrediction(Observation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Observation)

func (f ObserverFunc) ObservePrediction(o Observation) { f(o) }
