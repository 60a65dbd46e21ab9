package engine

import (
	"fmt"

	"academic-risk/internal/ml"
)

// Stage is a step in the life of a single prediction request.
type Stage string

const (
	StageValidating  Stage = "validating"
	StageScoring     Stage = "scoring"
	StageEstimating  Stage = "estimating"
	StageClassifying Stage = "classifying"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// StageError records the stage in which a request failed. The cause stays
// reachable through errors.Is and errors.As.
type StageError struct {
	Stage    Stage
	Kind     ml.Kind
	EntityID string
	Err      error
}

func (e *StageError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s prediction for %s failed while %s: %v", e.Kind, e.EntityID, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s prediction failed while %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// request tracks the stage of one prediction.
type request struct {
	kind     ml.Kind
	entityID string
	stage    Stage
}

func (r *request) enter(s Stage) { r.stage = s }

func (r *request) fail(err error) error {
	failed := r.stage
	r.stage = StageFailed
	return &StageError{Stage: failed, Kind: r.kind, EntityID: r.entityID, Err: err}
}
