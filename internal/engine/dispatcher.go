package engine

import (
	"context"

	"academic-risk/internal/features"
	"academic-risk/internal/ml"
)

// Dispatcher serialises engine work onto a bounded pool. Callers block until
// their own task finishes while the pool keeps accepting other submissions.
type Dispatcher struct {
	engine *Engine
	pool   *Pool
}

// NewDispatcher binds an engine to a pool.
func NewDispatcher(e *Engine, p *Pool) *Dispatcher {
	return &Dispatcher{engine: e, pool: p}
}

// Engine returns the underlying engine for non-blocking reads.
func (d *Dispatcher) Engine() *Engine { return d.engine }

// Predict runs a single prediction on the pool.
func (d *Dispatcher) Predict(ctx context.Context, kind ml.Kind, entityID string, fs features.FeatureSet) (PredictionResult, error) {
	return submitAndWait(ctx, d.pool, func(ctx context.Context) (PredictionResult, error) {
		return d.engine.Predict(ctx, kind, entityID, fs)
	})
}

// RunBatch runs a whole batch as one pool task.
func (d *Dispatcher) RunBatch(ctx context.Context, items []BatchItem, kind ml.Kind) ([]BatchItemResult, error) {
	return submitAndWait(ctx, d.pool, func(ctx context.Context) ([]BatchItemResult, error) {
		return d.engine.RunBatch(ctx, items, kind), nil
	})
}

// TrainResult is the outcome of a retrain.
type TrainResult struct {
	Kind    ml.Kind            `json:"kind"`
	Version string             `json:"version"`
	Metrics ml.TrainingMetrics `json:"metrics"`
}

// Retrain runs training on the pool. A nil ds uses the engine's dataset source.
func (d *Dispatcher) Retrain(ctx context.Context, kind ml.Kind, ds *ml.Dataset) (TrainResult, error) {
	return submitAndWait(ctx, d.pool, func(ctx context.Context) (TrainResult, error) {
		metrics, version, err := d.engine.Retrain(ctx, kind, ds)
		if err != nil {
			return TrainResult{}, err
		}
		return TrainResult{Kind: kind, Version: version, Metrics: metrics}, nil
	})
}

// FeatureImportance runs on the pool since it may trigger a recovery.
func (d *Dispatcher) FeatureImportance(ctx context.Context, kind ml.Kind) (map[string]float64, error) {
	return submitAndWait(ctx, d.pool, func(ctx context.Context) (map[string]float64, error) {
		return d.engine.FeatureImportance(ctx, kind)
	})
}
