package ml

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them through errors.Is.
var (
	ErrModelNotTrained  = errors.New("model not trained")
	ErrInsufficientData = errors.New("insufficient training data")
	ErrInvalidKind      = errors.New("invalid prediction kind")
	ErrModelNotFound    = errors.New("model not found")
	ErrFeatureMismatch  = errors.New("feature vector length mismatch")
)

// ModelNotTrainedError is returned when inference or importance is requested
// from a model that has not been trained or loaded.
type ModelNotTrainedError struct {
	Model string
}

func (e *ModelNotTrainedError) Error() string {
	return fmt.Sprintf("model %s is not trained", e.Model)
}

func (e *ModelNotTrainedError) Is(target error) bool { return target == ErrModelNotTrained }

// InsufficientDataError is returned by training on an empty dataset or one
// lacking a feature or target column.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient training data: " + e.Reason
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// InvalidPredictionKindError is returned for a kind other than subject/semester.
type InvalidPredictionKindError struct {
	Kind string
}

func (e *InvalidPredictionKindError) Error() string {
	return fmt.Sprintf("invalid prediction kind %q (want %q or %q)", e.Kind, KindSubject, KindSemester)
}

func (e *InvalidPredictionKindError) Is(target error) bool { return target == ErrInvalidKind }
