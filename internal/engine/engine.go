// Package engine turns feature sets into risk-classified predictions. It owns
// model availability and recovery, strategy selection between trained models
// and rules, confidence estimation, tier classification and batch execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"academic-risk/internal/common"
	"academic-risk/internal/features"
	"academic-risk/internal/ml"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Strategy selects how scores are produced.
type Strategy string

const (
	// StrategyAuto uses the model when one can be made ready, otherwise rules.
	StrategyAuto Strategy = "auto"
	// StrategyModel fails when no model can be made ready.
	StrategyModel Strategy = "model"
	// StrategyRules never touches a model.
	StrategyRules Strategy = "rules"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyAuto:
		return StrategyAuto, nil
	case StrategyModel:
		return StrategyModel, nil
	case StrategyRules:
		return StrategyRules, nil
	}
	return "", fmt.Errorf("unknown prediction strategy %q", s)
}

// ModelStore persists trained models by name. LoadModel returns an error
// matching ml.ErrModelNotFound when nothing is stored under name.
type ModelStore interface {
	LoadModel(name string) (*ml.TrainedModel, error)
	SaveModel(name string, tm *ml.TrainedModel) error
}

// DatasetSource supplies training data for a kind.
type DatasetSource func(kind ml.Kind) (*ml.Dataset, error)

// Config controls engine behaviour.
type Config struct {
	Strategy   Strategy
	AutoTrain  bool
	RangeCheck bool
	CacheTTL   time.Duration
	Trainer    ml.TrainerConfig
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:  StrategyAuto,
		AutoTrain: common.DefaultAutoTrain,
		CacheTTL:  5 * time.Minute,
		Trainer:   ml.DefaultTrainerConfig(),
	}
}

// Option customises an Engine.
type Option func(*Engine)

// WithStore sets the model repository.
func WithStore(s ModelStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithDatasetSource sets where training data comes from during recovery.
func WithDatasetSource(src DatasetSource) Option {
	return func(e *Engine) { e.source = src }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m MetricsInterface) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithObserver registers an observer for completed predictions.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// Engine serves predictions for both kinds. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	store     ModelStore
	source    DatasetSource
	trainer   *ml.Trainer
	rules     *ml.RulePredictor
	metrics   MetricsInterface
	observers []Observer
	slots     map[ml.Kind]*modelSlot
	recovery  singleflight.Group
	cache     *cache.Cache
}

// New builds an engine. No model is loaded until Start or the first request.
func New(cfg Config, opts ...Option) *Engine {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}

	e := &Engine{
		cfg:     cfg,
		trainer: ml.NewTrainer(cfg.Trainer),
		rules:   ml.NewRulePredictor(),
		metrics: noopMetrics{},
		slots:   make(map[ml.Kind]*modelSlot, len(ml.Kinds)),
	}
	for _, k := range ml.Kinds {
		e.slots[k] = newModelSlot(k)
	}
	if cfg.CacheTTL > 0 {
		e.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy { return e.cfg.Strategy }

// Start makes models ready ahead of traffic: each kind is loaded from the
// store or, failing that, trained. Failures are logged, not returned; the
// per-request recovery path will try again.
func (e *Engine) Start(ctx context.Context) error {
	if e.cfg.Strategy == StrategyRules {
		log.Info().Msg("Rule-based strategy configured, skipping model load")
		return nil
	}
	for _, k := range ml.Kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.restore(ctx, k); err != nil {
			log.Warn().Err(err).Str("kind", string(k)).Msg("Model unavailable at startup")
		}
	}
	return nil
}

// Ready reports whether predictions can currently be served under the
// configured strategy.
func (e *Engine) Ready() bool {
	if e.cfg.Strategy != StrategyModel {
		return true
	}
	for _, s := range e.slots {
		if _, ok := s.load().Model(); !ok {
			return false
		}
	}
	return true
}

// PredictSubject scores a subject-level feature set.
func (e *Engine) PredictSubject(ctx context.Context, studentID string, fs features.FeatureSet) (PredictionResult, error) {
	return e.Predict(ctx, ml.KindSubject, studentID, fs)
}

// PredictSemester scores a semester-level feature set.
func (e *Engine) PredictSemester(ctx context.Context, studentID string, fs features.FeatureSet) (PredictionResult, error) {
	return e.Predict(ctx, ml.KindSemester, studentID, fs)
}

// Predict runs one request through validation, scoring, confidence
// estimation and classification. Failures are returned as *StageError.
func (e *Engine) Predict(ctx context.Context, kind ml.Kind, entityID string, fs features.FeatureSet) (PredictionResult, error) {
	start := time.Now()
	req := &request{kind: kind, entityID: entityID}

	res, err := e.predict(ctx, req, fs)
	if err != nil {
		var se *StageError
		stage := StageFailed
		if errors.As(err, &se) {
			stage = se.Stage
		}
		e.metrics.FailuresInc(string(kind), string(stage))
		log.Debug().Err(err).
			Str("student_id", entityID).
			Str("kind", string(kind)).
			Str("stage", string(stage)).
			Msg("Prediction failed")
		return PredictionResult{}, err
	}

	latency := time.Since(start)
	e.metrics.PredictionsInc(string(kind), string(res.Source))
	e.metrics.LatencyObserve(string(kind), latency.Seconds())
	e.metrics.RiskLevelInc(string(kind), string(res.RiskLevel))

	log.Debug().
		Str("student_id", entityID).
		Str("kind", string(kind)).
		Str("model_version", res.ModelVersion).
		Str("risk_level", string(res.RiskLevel)).
		Dur("latency", latency).
		Msg("Prediction served")

	if len(e.observers) > 0 {
		obs := Observation{EntityID: entityID, Features: fs.Clone(), Result: res, At: time.Now().UTC()}
		for _, o := range e.observers {
			o.ObservePrediction(obs)
		}
	}
	return res, nil
}

func (e *Engine) predict(ctx context.Context, req *request, fs features.FeatureSet) (PredictionResult, error) {
	kind := req.kind

	req.enter(StageValidating)
	if !kind.Valid() {
		return PredictionResult{}, req.fail(&ml.InvalidPredictionKindError{Kind: string(kind)})
	}
	schema := kind.Schema()
	validated, err := features.Validate(fs, schema)
	if err != nil {
		return PredictionResult{}, req.fail(err)
	}
	if e.cfg.RangeCheck {
		if err := features.CheckRanges(fs, schema); err != nil {
			return PredictionResult{}, req.fail(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return PredictionResult{}, req.fail(err)
	}

	req.enter(StageScoring)
	model, err := e.selectModel(ctx, kind)
	if err != nil {
		return PredictionResult{}, req.fail(err)
	}

	version, source := e.rules.Version(), SourceRules
	if model != nil {
		version, source = model.Version(), SourceModel
	}

	key := cacheKey(kind, version, fs)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			e.metrics.CacheHitsInc(string(kind))
			req.enter(StageDone)
			return cached.(PredictionResult), nil
		}
	}

	var score float64
	if model != nil {
		score, err = model.Predict(schema.Vector(validated))
	} else {
		score, err = e.rules.Score(kind, validated)
	}
	if err != nil {
		return PredictionResult{}, req.fail(err)
	}

	req.enter(StageEstimating)
	confidence, err := e.confidence(kind, model, schema.Vector(validated), validated, fs, score)
	if err != nil {
		return PredictionResult{}, req.fail(err)
	}

	req.enter(StageClassifying)
	score = ml.RoundScore(score)
	res := PredictionResult{
		Score:        score,
		Confidence:   ml.RoundConfidence(confidence),
		RiskLevel:    Classify(kind, score, validated),
		ModelVersion: version,
		Kind:         kind,
		Source:       source,
	}

	if e.cache != nil {
		e.cache.SetDefault(key, res)
	}
	req.enter(StageDone)
	return res, nil
}

// selectModel returns the model to score with, or nil when rules apply.
func (e *Engine) selectModel(ctx context.Context, kind ml.Kind) (ml.ScoreModel, error) {
	if e.cfg.Strategy == StrategyRules {
		return nil, nil
	}
	if m, ok := e.slots[kind].load().Model(); ok {
		return m, nil
	}

	m, err := e.restore(ctx, kind)
	if err == nil {
		return m, nil
	}
	if e.cfg.Strategy == StrategyModel {
		return nil, err
	}
	e.metrics.FallbackUseInc(string(kind))
	return nil, nil
}

func (e *Engine) confidence(kind ml.Kind, model ml.ScoreModel, vector []float64, validated, raw features.FeatureSet, score float64) (float64, error) {
	if kind == ml.KindSemester {
		return HeuristicConfidence(score, raw), nil
	}
	if em, ok := model.(ml.EnsembleModel); ok {
		estimates, err := em.PerTreeEstimates(vector)
		if err != nil {
			return 0, err
		}
		return EnsembleConfidence(estimates), nil
	}
	return RuleSubjectConfidence(validated), nil
}

func cacheKey(kind ml.Kind, version string, fs features.FeatureSet) string {
	return string(kind) + "|" + version + "|" + fs.Key()
}

// restore makes a model ready by loading it from the store or training it.
// Concurrent callers for the same kind share one attempt.
func (e *Engine) restore(ctx context.Context, kind ml.Kind) (ml.ScoreModel, error) {
	v, err, shared := e.recovery.Do(string(kind), func() (interface{}, error) {
		return e.loadOrTrain(ctx, kind)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("kind", string(kind)).Msg("Joined in-flight model recovery")
	}
	return v.(ml.ScoreModel), nil
}

// A retrain that swaps a model in while the store is being read wins over
// whatever this recovery would install.
func (e *Engine) loadOrTrain(ctx context.Context, kind ml.Kind) (ml.ScoreModel, error) {
	slot := e.slots[kind]
	prev := slot.load()
	if m, ok := prev.Model(); ok {
		return m, nil
	}

	reason := "no model store configured"
	if e.store != nil {
		tm, err := e.store.LoadModel(kind.ModelName())
		switch {
		case err == nil:
			m, ferr := ml.FromTrained(tm)
			if ferr == nil {
				if !slot.compareAndSet(prev, Ready(m)) {
					if cur, ok := slot.load().Model(); ok {
						return cur, nil
					}
				}
				e.metrics.RecoveriesInc(string(kind), "loaded")
				log.Info().Str("kind", string(kind)).Str("model_version", m.Version()).Msg("Model loaded from store")
				return m, nil
			}
			reason = "stored model unusable: " + ferr.Error()
			log.Warn().Err(ferr).Str("kind", string(kind)).Msg("Stored model is unusable")
		case errors.Is(err, ml.ErrModelNotFound):
			reason = "no stored model"
		default:
			reason = "store error: " + err.Error()
			log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to load model")
		}
	}

	if e.cfg.AutoTrain && e.source != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, _, err := e.train(kind, nil)
		if err == nil {
			e.metrics.RecoveriesInc(string(kind), "trained")
			return m, nil
		}
		reason = "training failed: " + err.Error()
		log.Error().Err(err).Str("kind", string(kind)).Msg("Recovery training failed")
	}

	if !slot.compareAndSet(prev, Unavailable(reason)) {
		if cur, ok := slot.load().Model(); ok {
			return cur, nil
		}
	}
	e.metrics.RecoveriesInc(string(kind), "failed")
	return nil, fmt.Errorf("%w: %s", &ml.ModelNotTrainedError{Model: kind.ModelName()}, reason)
}

// train fits a new model, swaps it in and persists it. A nil ds is filled
// from the dataset source.
func (e *Engine) train(kind ml.Kind, ds *ml.Dataset) (ml.ScoreModel, ml.TrainingMetrics, error) {
	if ds == nil {
		if e.source == nil {
			return nil, ml.TrainingMetrics{}, &ml.InsufficientDataError{Reason: "no dataset source configured"}
		}
		var err error
		if ds, err = e.source(kind); err != nil {
			return nil, ml.TrainingMetrics{}, fmt.Errorf("failed to build %s dataset: %w", kind, err)
		}
	}

	start := time.Now()
	m, metrics, err := e.trainer.Train(kind, ds)
	if err != nil {
		return nil, ml.TrainingMetrics{}, err
	}
	e.metrics.TrainingObserve(string(kind), time.Since(start).Seconds())

	e.slots[kind].set(Ready(m))
	if e.cache != nil {
		e.cache.Flush()
	}

	if e.store != nil {
		if err := e.store.SaveModel(kind.ModelName(), m.Trained()); err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to persist trained model")
		}
	}
	return m, metrics, nil
}

// Retrain fits a fresh model for kind and atomically replaces the current
// one. In-flight requests finish on whichever model they started with.
func (e *Engine) Retrain(ctx context.Context, kind ml.Kind, ds *ml.Dataset) (ml.TrainingMetrics, string, error) {
	if !kind.Valid() {
		return ml.TrainingMetrics{}, "", &ml.InvalidPredictionKindError{Kind: string(kind)}
	}
	if err := ctx.Err(); err != nil {
		return ml.TrainingMetrics{}, "", err
	}
	m, metrics, err := e.train(kind, ds)
	if err != nil {
		return ml.TrainingMetrics{}, "", err
	}
	log.Info().Str("kind", string(kind)).Str("model_version", m.Version()).Msg("Model retrained")
	return metrics, m.Version(), nil
}

// FeatureImportance returns the normalised importances of kind's model,
// attempting one recovery when no model is ready.
func (e *Engine) FeatureImportance(ctx context.Context, kind ml.Kind) (map[string]float64, error) {
	if !kind.Valid() {
		return nil, &ml.InvalidPredictionKindError{Kind: string(kind)}
	}
	m, ok := e.slots[kind].load().Model()
	if !ok {
		var err error
		if m, err = e.restore(ctx, kind); err != nil {
			return nil, err
		}
	}
	return m.FeatureImportance()
}

// ModelInfo describes the serving state of one kind.
type ModelInfo struct {
	Name            string              `json:"name"`
	Kind            ml.Kind             `json:"kind"`
	Available       bool                `json:"available"`
	Reason          string              `json:"reason,omitempty"`
	Version         string              `json:"version,omitempty"`
	FeatureNames    []string            `json:"feature_names"`
	TrainedAt       *time.Time          `json:"trained_at,omitempty"`
	Metrics         *ml.TrainingMetrics `json:"metrics,omitempty"`
	RulePredictions int64               `json:"rule_predictions"`
}

// ModelInfo reports every kind's availability without attempting recovery.
func (e *Engine) ModelInfo() []ModelInfo {
	ruleUses := e.rules.Stats()
	out := make([]ModelInfo, 0, len(ml.Kinds))
	for _, k := range ml.Kinds {
		a := e.slots[k].load()
		info := ModelInfo{
			Name:            k.ModelName(),
			Kind:            k,
			FeatureNames:    k.Schema().Names(),
			RulePredictions: ruleUses[k],
		}
		if m, ok := a.Model(); ok {
			tm := m.Trained()
			info.Available = true
			info.Version = m.Version()
			info.TrainedAt = &tm.TrainedAt
			info.Metrics = &tm.Metrics
		} else {
			info.Reason = a.Reason()
		}
		out = append(out, info)
	}
	return out
}
