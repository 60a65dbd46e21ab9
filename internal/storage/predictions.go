package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"academic-risk/internal/engine"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID           string             `json:"id"`
	EntityID     string             `json:"entity_id"`
	Kind         string             `json:"kind"`
	Features     map[string]float64 `json:"features"`
	Score        float64            `json:"score"`
	Confidence   float64            `json:"confidence"`
	RiskLevel    string             `json:"risk_level"`
	ModelVersion string             `json:"model_version"`
	Source       string             `json:"source"`
	Timestamp    time.Time          `json:"timestamp"`
}

// StorePrediction stores a prediction record keyed "entity_timestamp".
func (s *Store) StorePrediction(record PredictionRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal prediction record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(predictionsBucket)).Put(recordKey(record.EntityID, record.Timestamp), data)
	})
}

// GetPredictions returns an entity's predictions within [start, end],
// oldest first.
func (s *Store) GetPredictions(entityID string, start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := s.getRecordsInRange(predictionsBucket, entityID, start, end, func(data []byte) error {
		var r PredictionRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RecordFromObservation converts an engine observation to a record.
func RecordFromObservation(o engine.Observation) PredictionRecord {
	return PredictionRecord{
		ID:           uuid.NewString(),
		EntityID:     o.EntityID,
		Kind:         string(o.Result.Kind),
		Features:     o.Features,
		Score:        o.Result.Score,
		Confidence:   o.Result.Confidence,
		RiskLevel:    string(o.Result.RiskLevel),
		ModelVersion: o.Result.ModelVersion,
		Source:       string(o.Result.Source),
		Timestamp:    o.At,
	}
}

// Recorder persists engine observations off the request path. Records are
// queued and written by a single goroutine; when the queue is full the
// record is dropped and logged.
type Recorder struct {
	store   *Store
	queue   chan PredictionRecord
	done    chan struct{}
	once    sync.Once
	dropped int64
	mu      sync.Mutex
}

// NewRecorder starts a recorder with the given queue capacity.
func NewRecorder(store *Store, capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	r := &Recorder{
		store: store,
		queue: make(chan PredictionRecord, capacity),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// ObservePrediction implements engine.Observer.
func (r *Recorder) ObservePrediction(o engine.Observation) {
	if o.EntityID == "" {
		return
	}
	select {
	case r.queue <- RecordFromObservation(o):
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		log.Warn().Str("student_id", o.EntityID).Msg("Prediction history queue full, record dropped")
	}
}

// Dropped returns how many records were discarded.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		if err := r.store.StorePrediction(rec); err != nil {
			log.Error().Err(err).Str("student_id", rec.EntityID).Msg("Failed to store prediction")
		}
	}
}

// Close drains queued records and stops the writer. The recorder must not
// observe predictions after Close.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	<-r.done
}
