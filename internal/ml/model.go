package ml

import (
	"fmt"
	"math"
	"time"

	"academic-risk/internal/common"
)

// TrainingMetrics summarises a training run.
type TrainingMetrics struct {
	TrainRMSE         float64            `json:"train_rmse"`
	TestRMSE          float64            `json:"test_rmse"`
	TrainR2           float64            `json:"train_r2"`
	TestR2            float64            `json:"test_r2"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	TrainSamples      int                `json:"train_samples"`
	TestSamples       int                `json:"test_samples"`
}

// TrainedModel holds everything needed to serve predictions. It is never
// mutated after training; retraining produces a new value.
type TrainedModel struct {
	Name         string            `json:"name"`
	Kind         Kind              `json:"kind"`
	Version      string            `json:"version"`
	FeatureNames []string          `json:"feature_names"`
	Scaler       *StandardScaler   `json:"scaler"`
	Forest       *RandomForest     `json:"forest,omitempty"`
	Boosting     *GradientBoosting `json:"boosting,omitempty"`
	Importance   []float64         `json:"importance"`
	TrainedAt    time.Time         `json:"trained_at"`
	Metrics      TrainingMetrics   `json:"metrics"`
}

func (tm *TrainedModel) importanceMap() map[string]float64 {
	out := make(map[string]float64, len(tm.FeatureNames))
	for i, name := range tm.FeatureNames {
		if i < len(tm.Importance) {
			out[name] = tm.Importance[i]
		}
	}
	return out
}

func (tm *TrainedModel) scale(vector []float64) ([]float64, error) {
	if len(vector) != len(tm.FeatureNames) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(vector), len(tm.FeatureNames))
	}
	if tm.Scaler == nil {
		return vector, nil
	}
	return tm.Scaler.Transform(vector), nil
}

// SubjectScoreModel predicts final subject marks on a 100-point scale.
type SubjectScoreModel struct {
	tm *TrainedModel
}

// NewSubjectScoreModel wraps trained forest parameters.
func NewSubjectScoreModel(tm *TrainedModel) (*SubjectScoreModel, error) {
	if tm == nil || tm.Forest == nil || len(tm.Forest.Trees) == 0 {
		return nil, fmt.Errorf("subject model requires forest parameters: %w", ErrModelNotTrained)
	}
	return &SubjectScoreModel{tm: tm}, nil
}

func (m *SubjectScoreModel) ready() error {
	if m == nil || m.tm == nil {
		return &ModelNotTrainedError{Model: common.SubjectModelName}
	}
	return nil
}

func (m *SubjectScoreModel) Kind() Kind { return KindSubject }

func (m *SubjectScoreModel) Version() string {
	if m.ready() != nil {
		return ""
	}
	return m.tm.Version
}

func (m *SubjectScoreModel) FeatureNames() []string {
	if m.ready() != nil {
		return KindSubject.Schema().Names()
	}
	return append([]string(nil), m.tm.FeatureNames...)
}

func (m *SubjectScoreModel) Predict(vector []float64) (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	x, err := m.tm.scale(vector)
	if err != nil {
		return 0, err
	}
	return m.tm.Forest.Predict(x), nil
}

// PerTreeEstimates returns every tree's prediction for vector.
func (m *SubjectScoreModel) PerTreeEstimates(vector []float64) ([]float64, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	x, err := m.tm.scale(vector)
	if err != nil {
		return nil, err
	}
	return m.tm.Forest.Estimates(x), nil
}

func (m *SubjectScoreModel) FeatureImportance() (map[string]float64, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.tm.importanceMap(), nil
}

func (m *SubjectScoreModel) Trained() *TrainedModel {
	if m == nil {
		return nil
	}
	return m.tm
}

// SGPAScoreModel predicts semester SGPA on a 10-point scale.
type SGPAScoreModel struct {
	tm *TrainedModel
}

// NewSGPAScoreModel wraps trained boosting parameters.
func NewSGPAScoreModel(tm *TrainedModel) (*SGPAScoreModel, error) {
	if tm == nil || tm.Boosting == nil {
		return nil, fmt.Errorf("sgpa model requires boosting parameters: %w", ErrModelNotTrained)
	}
	return &SGPAScoreModel{tm: tm}, nil
}

func (m *SGPAScoreModel) ready() error {
	if m == nil || m.tm == nil {
		return &ModelNotTrainedError{Model: common.SGPAModelName}
	}
	return nil
}

func (m *SGPAScoreModel) Kind() Kind { return KindSemester }

func (m *SGPAScoreModel) Version() string {
	if m.ready() != nil {
		return ""
	}
	return m.tm.Version
}

func (m *SGPAScoreModel) FeatureNames() []string {
	if m.ready() != nil {
		return KindSemester.Schema().Names()
	}
	return append([]string(nil), m.tm.FeatureNames...)
}

// Predict returns the boosted estimate clamped to [0, 10].
func (m *SGPAScoreModel) Predict(vector []float64) (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	x, err := m.tm.scale(vector)
	if err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(10, m.tm.Boosting.Predict(x))), nil
}

func (m *SGPAScoreModel) FeatureImportance() (map[string]float64, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.tm.importanceMap(), nil
}

func (m *SGPAScoreModel) Trained() *TrainedModel {
	if m == nil {
		return nil
	}
	return m.tm
}

// FromTrained rebuilds the ScoreModel for a persisted TrainedModel.
func FromTrained(tm *TrainedModel) (ScoreModel, error) {
	if tm == nil {
		return nil, ErrModelNotFound
	}
	switch tm.Kind {
	case KindSubject:
		return NewSubjectScoreModel(tm)
	case KindSemester:
		return NewSGPAScoreModel(tm)
	}
	return nil, &InvalidPredictionKindError{Kind: string(tm.Kind)}
}
