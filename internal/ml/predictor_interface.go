// Package ml provides the score models behind academic outcome prediction.
// It includes a random-forest subject model, a gradient-boosted SGPA model,
// the trainer that fits both from labelled datasets, and the rule-based
// scorers used when no trained model is available.
package ml

// ScoreModel maps a schema-ordered feature vector to a raw score.
// Implementations are read-only after construction and safe for concurrent use.
type ScoreModel interface {
	// Kind is the prediction kind this model serves.
	Kind() Kind

	// Version is the tag assigned at training time.
	Version() string

	// FeatureNames is the vector order Predict expects.
	FeatureNames() []string

	// Predict applies the fitted scaler, then the regressor.
	Predict(vector []float64) (float64, error)

	// FeatureImportance returns per-feature importances summing to 1.
	FeatureImportance() (map[string]float64, error)

	// Trained exposes the underlying parameters for persistence.
	Trained() *TrainedModel
}

// EnsembleModel is a ScoreModel whose members can be queried individually.
// Only the confidence estimator uses the per-member view.
type EnsembleModel interface {
	ScoreModel
	PerTreeEstimates(vector []float64) ([]float64, error)
}
