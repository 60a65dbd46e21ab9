package api

import (
	"sort"
	"time"

	"academic-risk/internal/common"
	"academic-risk/internal/engine"
	"academic-risk/internal/features"
	"academic-risk/internal/ml"
	"academic-risk/internal/storage"
)

// SubjectFeatures are the inputs of a subject prediction. Pointers let a
// present zero be told apart from a missing value.
type SubjectFeatures struct {
	AttendancePercentage *float64 `json:"attendance_percentage" validate:"required,gte=0,lte=100"`
	BestOfTwoInternals   *float64 `json:"best_of_two_internals" validate:"required,gte=0,lte=25"`
	AssignmentMarks      *float64 `json:"assignment_marks" validate:"required,gte=0,lte=20"`
	BehaviorScore        *float64 `json:"behavior_score" validate:"required,gte=0,lte=10"`
}

func (f *SubjectFeatures) featureSet() features.FeatureSet {
	fs := features.FeatureSet{}
	put(fs, common.FeatureAttendancePercentage, f.AttendancePercentage)
	put(fs, common.FeatureBestOfTwoInternals, f.BestOfTwoInternals)
	put(fs, common.FeatureAssignmentMarks, f.AssignmentMarks)
	put(fs, common.FeatureBehaviorScore, f.BehaviorScore)
	return fs
}

type SubjectPredictionRequest struct {
	StudentID string           `json:"student_id" validate:"required,max=128"`
	SubjectID string           `json:"subject_id,omitempty" validate:"max=128"`
	Features  *SubjectFeatures `json:"features" validate:"required"`
}

// SemesterFeatures are the inputs of a semester prediction.
type SemesterFeatures struct {
	MeanSubjectPrediction *float64 `json:"mean_subject_prediction" validate:"required,gte=0,lte=100"`
	ActiveBacklogCount    *float64 `json:"active_backlog_count,omitempty" validate:"omitempty,gte=0"`
	PreviousSGPA          *float64 `json:"previous_sgpa,omitempty" validate:"omitempty,gte=0,lte=10"`
	AttendanceAverage     *float64 `json:"attendance_average" validate:"required,gte=0,lte=100"`
}

func (f *SemesterFeatures) featureSet() features.FeatureSet {
	fs := features.FeatureSet{}
	put(fs, common.FeatureMeanSubjectPrediction, f.MeanSubjectPrediction)
	put(fs, common.FeatureActiveBacklogCount, f.ActiveBacklogCount)
	put(fs, common.FeaturePreviousSGPA, f.PreviousSGPA)
	put(fs, common.FeatureAttendanceAverage, f.AttendanceAverage)
	return fs
}

type SemesterPredictionRequest struct {
	StudentID string            `json:"student_id" validate:"required,max=128"`
	Semester  int               `json:"semester,omitempty" validate:"omitempty,gte=1,lte=8"`
	Features  *SemesterFeatures `json:"features" validate:"required"`
}

func put(fs features.FeatureSet, name string, v *float64) {
	if v != nil {
		fs[name] = *v
	}
}

// BatchStudent carries free-form features; they are checked by the engine.
type BatchStudent struct {
	StudentID      string             `json:"student_id" validate:"required,max=128"`
	Features       map[string]float64 `json:"features" validate:"required"`
	PredictionType string             `json:"prediction_type,omitempty"`
}

type BatchPredictionRequest struct {
	Students       []BatchStudent `json:"students" validate:"required,min=1,max=1000,dive"`
	PredictionType string         `json:"prediction_type" validate:"required"`
}

type SubjectPrediction struct {
	PredictedScore float64       `json:"predicted_score"`
	Confidence     float64       `json:"confidence"`
	RiskLevel      engine.Level  `json:"risk_level"`
	ModelVersion   string        `json:"model_version"`
	Source         engine.Source `json:"source"`
	SubjectID      string        `json:"subject_id,omitempty"`
	PredictedAt    time.Time     `json:"predicted_at"`
}

type SemesterPrediction struct {
	PredictedSGPA float64       `json:"predicted_sgpa"`
	Confidence    float64       `json:"confidence"`
	RiskLevel     engine.Level  `json:"risk_level"`
	ModelVersion  string        `json:"model_version"`
	Source        engine.Source `json:"source"`
	Semester      int           `json:"semester,omitempty"`
	PredictedAt   time.Time     `json:"predicted_at"`
}

// PredictionResponse is the envelope of both single-prediction endpoints.
type PredictionResponse struct {
	Success      bool                `json:"success"`
	PredictionID string              `json:"prediction_id"`
	Prediction   interface{}         `json:"prediction"`
	Analysis     engine.RiskAnalysis `json:"risk_analysis"`
	Message      string              `json:"message"`
}

type BatchPredictionResponse struct {
	Success     bool                     `json:"success"`
	BatchID     string                   `json:"batch_id"`
	Predictions []engine.BatchItemResult `json:"predictions"`
	TotalCount  int                      `json:"total_count"`
	FailedCount int                      `json:"failed_count"`
	Message     string                   `json:"message"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// sortedImportance orders importances descending, ties by name.
func sortedImportance(m map[string]float64) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(m))
	for name, v := range m {
		out = append(out, FeatureImportance{Feature: name, Importance: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

type FeatureImportanceResponse struct {
	Success           bool                `json:"success"`
	Model             string              `json:"model"`
	FeatureImportance []FeatureImportance `json:"feature_importance"`
}

type ModelInfoResponse struct {
	Success  bool               `json:"success"`
	Strategy engine.Strategy    `json:"strategy"`
	Models   []engine.ModelInfo `json:"models"`
}

type TrainResponse struct {
	Success bool               `json:"success"`
	Model   string             `json:"model"`
	Version string             `json:"version"`
	Metrics ml.TrainingMetrics `json:"metrics"`
	Message string             `json:"message"`
}

type HistoryResponse struct {
	Success     bool                       `json:"success"`
	StudentID   string                     `json:"student_id"`
	Count       int                        `json:"count"`
	Predictions []storage.PredictionRecord `json:"predictions"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	ErrorCode string   `json:"error_code"`
	Details   []string `json:"details,omitempty"`
}
