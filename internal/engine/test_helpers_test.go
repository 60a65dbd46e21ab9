package engine

import (
	"sync"

	"academic-risk/internal/ml"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	failures    map[string]int
	levels      map[string]int
	fallbackUse int
	recoveries  map[string]int
	trainings   int
	cacheHits   int
	batchSizes  []int
	latencySum  float64
}

func newMockMetrics() *MockMetrics {
	return &MockMetrics{
		predictions: make(map[string]int),
		failures:    make(map[string]int),
		levels:      make(map[string]int),
		recoveries:  make(map[string]int),
	}
}

func (m *MockMetrics) PredictionsInc(kind, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[kind+"/"+source]++
}

func (m *MockMetrics) FailuresInc(kind, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind+"/"+stage]++
}

func (m *MockMetrics) LatencyObserve(_ string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) RiskLevelInc(_ string, level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[level]++
}

func (m *MockMetrics) FallbackUseInc(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackUse++
}

func (m *MockMetrics) RecoveriesInc(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries[kind+"/"+outcome]++
}

func (m *MockMetrics) TrainingObserve(string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainings++
}

func (m *MockMetrics) CacheHitsInc(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *MockMetrics) BatchSizeObserve(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = append(m.batchSizes, n)
}

func (m *MockMetrics) get(f func(*MockMetrics) int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m)
}

// memoryStore is an in-memory ModelStore.
type memoryStore struct {
	mu     sync.Mutex
	models map[string]*ml.TrainedModel
	loads  int
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{models: make(map[string]*ml.TrainedModel)}
}

func (s *memoryStore) LoadModel(name string) (*ml.TrainedModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	tm, ok := s.models[name]
	if !ok {
		return nil, ml.ErrModelNotFound
	}
	return tm, nil
}

func (s *memoryStore) SaveModel(name string, tm *ml.TrainedModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.models[name] = tm
	return nil
}

func smallTrainer() ml.TrainerConfig {
	return ml.TrainerConfig{
		ForestTrees:      10,
		ForestMaxDepth:   6,
		BoostingStages:   20,
		BoostingMaxDepth: 3,
		LearningRate:     0.1,
		Seed:             42,
		TestRatio:        0.2,
	}
}

// gatedStore blocks LoadModel until release is closed, signalling entered
// once the load has started.
type gatedStore struct {
	tm      *ml.TrainedModel
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(tm *ml.TrainedModel) *gatedStore {
	return &gatedStore{tm: tm, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) LoadModel(string) (*ml.TrainedModel, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	if s.tm == nil {
		return nil, ml.ErrModelNotFound
	}
	return s.tm, nil
}

func (s *gatedStore) SaveModel(string, *ml.TrainedModel) error { return nil }
