package ml

import (
	"fmt"
	"time"

	"academic-risk/internal/common"

	"github.com/rs/zerolog/log"
)

// TrainerConfig holds the hyperparameters for both model kinds.
type TrainerConfig struct {
	ForestTrees      int
	ForestMaxDepth   int
	BoostingStages   int
	BoostingMaxDepth int
	LearningRate     float64
	Seed             int64
	TestRatio        float64
}

// DefaultTrainerConfig mirrors the service defaults.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		ForestTrees:      common.DefaultForestTrees,
		ForestMaxDepth:   common.DefaultForestMaxDepth,
		BoostingStages:   common.DefaultBoostingStages,
		BoostingMaxDepth: common.DefaultBoostingMaxDepth,
		LearningRate:     common.DefaultLearningRate,
		Seed:             common.DefaultSeed,
		TestRatio:        common.DefaultTestRatio,
	}
}

// Trainer fits score models from labelled datasets.
type Trainer struct {
	cfg TrainerConfig
	now func() time.Time
}

// NewTrainer creates a trainer. Zero-valued hyperparameters fall back to defaults.
func NewTrainer(cfg TrainerConfig) *Trainer {
	def := DefaultTrainerConfig()
	if cfg.ForestTrees <= 0 {
		cfg.ForestTrees = def.ForestTrees
	}
	if cfg.BoostingStages <= 0 {
		cfg.BoostingStages = def.BoostingStages
	}
	if cfg.BoostingMaxDepth <= 0 {
		cfg.BoostingMaxDepth = def.BoostingMaxDepth
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.TestRatio <= 0 || cfg.TestRatio >= 1 {
		cfg.TestRatio = def.TestRatio
	}
	return &Trainer{cfg: cfg, now: time.Now}
}

// Config returns the effective hyperparameters.
func (t *Trainer) Config() TrainerConfig { return t.cfg }

// Train fits a model of the given kind on ds. The split, bootstrap draws and
// therefore the resulting model are fully determined by the seed.
func (t *Trainer) Train(kind Kind, ds *Dataset) (ScoreModel, TrainingMetrics, error) {
	if !kind.Valid() {
		return nil, TrainingMetrics{}, &InvalidPredictionKindError{Kind: string(kind)}
	}

	names := kind.Schema().Names()
	X, y, err := ds.Matrix(names, kind.Target())
	if err != nil {
		return nil, TrainingMetrics{}, err
	}

	trainIdx, testIdx, err := split(len(X), t.cfg.TestRatio, t.cfg.Seed)
	if err != nil {
		return nil, TrainingMetrics{}, err
	}
	xTrain, yTrain := gather(X, y, trainIdx)
	xTest, yTest := gather(X, y, testIdx)

	scaler := FitScaler(xTrain)
	sTrain := scaler.TransformAll(xTrain)
	sTest := scaler.TransformAll(xTest)

	started := t.now()
	tm := &TrainedModel{
		Name:         kind.ModelName(),
		Kind:         kind,
		FeatureNames: names,
		Scaler:       scaler,
		TrainedAt:    started.UTC(),
		Version:      fmt.Sprintf("%s-%s", kind, started.UTC().Format("20060102T150405Z")),
	}

	var predict func([]float64) float64
	switch kind {
	case KindSubject:
		tm.Forest, tm.Importance = fitForest(sTrain, yTrain, t.cfg.ForestTrees, t.cfg.ForestMaxDepth, t.cfg.Seed)
		predict = tm.Forest.Predict
	case KindSemester:
		tm.Boosting, tm.Importance = fitBoosting(sTrain, yTrain, t.cfg.BoostingStages, t.cfg.BoostingMaxDepth, t.cfg.LearningRate)
		predict = func(x []float64) float64 {
			v := tm.Boosting.Predict(x)
			if v < 0 {
				return 0
			}
			if v > 10 {
				return 10
			}
			return v
		}
	}

	trainPred := predictAll(predict, sTrain)
	testPred := predictAll(predict, sTest)

	tm.Metrics = TrainingMetrics{
		TrainRMSE:         RMSE(yTrain, trainPred),
		TestRMSE:          RMSE(yTest, testPred),
		TrainR2:           R2(yTrain, trainPred),
		TestR2:            R2(yTest, testPred),
		FeatureImportance: tm.importanceMap(),
		TrainSamples:      len(yTrain),
		TestSamples:       len(yTest),
	}

	log.Info().
		Str("model", tm.Name).
		Str("version", tm.Version).
		Int("train_samples", len(yTrain)).
		Int("test_samples", len(yTest)).
		Float64("test_rmse", tm.Metrics.TestRMSE).
		Float64("test_r2", tm.Metrics.TestR2).
		Dur("duration", t.now().Sub(started)).
		Msg("Model trained")

	model, err := FromTrained(tm)
	if err != nil {
		return nil, TrainingMetrics{}, err
	}
	return model, tm.Metrics, nil
}

// TrainSubject fits the random-forest subject model.
func (t *Trainer) TrainSubject(ds *Dataset) (*SubjectScoreModel, TrainingMetrics, error) {
	m, metrics, err := t.Train(KindSubject, ds)
	if err != nil {
		return nil, metrics, err
	}
	return m.(*SubjectScoreModel), metrics, nil
}

// TrainSemester fits the gradient-boosted SGPA model.
func (t *Trainer) TrainSemester(ds *Dataset) (*SGPAScoreModel, TrainingMetrics, error) {
	m, metrics, err := t.Train(KindSemester, ds)
	if err != nil {
		return nil, metrics, err
	}
	return m.(*SGPAScoreModel), metrics, nil
}

func predictAll(predict func([]float64) float64, X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = predict(x)
	}
	return out
}
