package engine

import (
	"context"
	"errors"
	"fmt"

	"academic-risk/internal/features"
	"academic-risk/internal/ml"

	"github.com/rs/zerolog/log"
)

// ErrItemPanicked marks a batch item whose evaluation panicked.
var ErrItemPanicked = errors.New("batch item panicked")

// BatchItem is one entry of a batch request. Kind, when set, overrides the
// batch-level kind for this item only.
type BatchItem struct {
	EntityID string              `json:"entity_id"`
	Features features.FeatureSet `json:"features"`
	Kind     ml.Kind             `json:"kind,omitempty"`
}

// BatchItemResult carries either a prediction or an error, never both.
type BatchItemResult struct {
	EntityID   string            `json:"entity_id"`
	Success    bool              `json:"success"`
	Prediction *PredictionResult `json:"prediction,omitempty"`
	Error      string            `json:"error,omitempty"`
	Err        error             `json:"-"`
}

// RunBatch evaluates items in order. The result has one entry per item at the
// same index; a failing or panicking item is recorded and the batch goes on.
// Once ctx is done the remaining items fail with its error.
func (e *Engine) RunBatch(ctx context.Context, items []BatchItem, kind ml.Kind) []BatchItemResult {
	e.metrics.BatchSizeObserve(len(items))

	results := make([]BatchItemResult, len(items))
	failed := 0
	for i, item := range items {
		results[i] = e.runItem(ctx, item, kind)
		if !results[i].Success {
			failed++
		}
	}

	log.Info().
		Int("items", len(items)).
		Int("failed", failed).
		Str("kind", string(kind)).
		Msg("Batch completed")
	return results
}

func (e *Engine) runItem(ctx context.Context, item BatchItem, kind ml.Kind) (out BatchItemResult) {
	out.EntityID = item.EntityID
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrItemPanicked, r)
			log.Error().Interface("panic", r).Str("student_id", item.EntityID).Msg("Batch item panicked")
			out = BatchItemResult{EntityID: item.EntityID, Error: err.Error(), Err: err}
		}
	}()

	if err := ctx.Err(); err != nil {
		return BatchItemResult{EntityID: item.EntityID, Error: err.Error(), Err: err}
	}

	k := kind
	if item.Kind != "" {
		k = item.Kind
	}

	res, err := e.Predict(ctx, k, item.EntityID, item.Features)
	if err != nil {
		return BatchItemResult{EntityID: item.EntityID, Error: err.Error(), Err: err}
	}
	return BatchItemResult{EntityID: item.EntityID, Success: true, Prediction: &res}
}
