package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"academic-risk/internal/engine"
	"academic-risk/internal/ml"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	maxBodyBytes   = 4 << 20
	defaultHistory = 30 * 24 * time.Hour
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid request: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func (s *Server) handlePredictSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectPredictionRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	fs := req.Features.featureSet()
	res, err := s.dispatcher.Predict(ctx, ml.KindSubject, req.StudentID, fs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PredictionResponse{
		Success:      true,
		PredictionID: uuid.NewString(),
		Prediction: SubjectPrediction{
			PredictedScore: res.Score,
			Confidence:     res.Confidence,
			RiskLevel:      res.RiskLevel,
			ModelVersion:   res.ModelVersion,
			Source:         res.Source,
			SubjectID:      req.SubjectID,
			PredictedAt:    time.Now().UTC(),
		},
		Analysis: engine.Analyze(res, fs),
		Message:  "Subject performance prediction completed successfully",
	})
}

func (s *Server) handlePredictSemester(w http.ResponseWriter, r *http.Request) {
	var req SemesterPredictionRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	fs := req.Features.featureSet()
	res, err := s.dispatcher.Predict(ctx, ml.KindSemester, req.StudentID, fs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PredictionResponse{
		Success:      true,
		PredictionID: uuid.NewString(),
		Prediction: SemesterPrediction{
			PredictedSGPA: res.Score,
			Confidence:    res.Confidence,
			RiskLevel:     res.RiskLevel,
			ModelVersion:  res.ModelVersion,
			Source:        res.Source,
			Semester:      req.Semester,
			PredictedAt:   time.Now().UTC(),
		},
		Analysis: engine.Analyze(res, fs),
		Message:  "Semester SGPA prediction completed successfully",
	})
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchPredictionRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := ml.ParseKind(req.PredictionType)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]engine.BatchItem, len(req.Students))
	for i, st := range req.Students {
		items[i] = engine.BatchItem{EntityID: st.StudentID, Features: st.Features}
		if st.PredictionType != "" {
			// An unknown per-item kind is passed through so that item alone fails.
			k, err := ml.ParseKind(st.PredictionType)
			if err != nil {
				k = ml.Kind(st.PredictionType)
			}
			items[i].Kind = k
		}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	results, err := s.dispatcher.RunBatch(ctx, items, kind)
	if err != nil {
		writeError(w, err)
		return
	}

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, BatchPredictionResponse{
		Success:     true,
		BatchID:     uuid.NewString(),
		Predictions: results,
		TotalCount:  len(results),
		FailedCount: failed,
		Message:     fmt.Sprintf("Batch prediction completed for %d students", len(results)),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Message:   "prediction history is not enabled",
			ErrorCode: CodeUnavailable,
		})
		return
	}

	studentID := mux.Vars(r)["student_id"]
	to := time.Now().UTC()
	from := to.Add(-defaultHistory)
	q := r.URL.Query()
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid 'to' time: %v", err))
			return
		}
		to = t
		from = to.Add(-defaultHistory)
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid 'from' time: %v", err))
			return
		}
		from = t
	}
	if from.After(to) {
		writeBadRequest(w, "'from' must not be after 'to'")
		return
	}

	records, err := s.history.GetPredictions(studentID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Success:     true,
		StudentID:   studentID,
		Count:       len(records),
		Predictions: records,
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	e := s.dispatcher.Engine()
	writeJSON(w, http.StatusOK, ModelInfoResponse{
		Success:  true,
		Strategy: e.Strategy(),
		Models:   e.ModelInfo(),
	})
}

func (s *Server) handleFeatureImportance(w http.ResponseWriter, r *http.Request) {
	kind, err := ml.ParseKind(mux.Vars(r)["model"])
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	importance, err := s.dispatcher.FeatureImportance(ctx, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FeatureImportanceResponse{
		Success:           true,
		Model:             kind.ModelName(),
		FeatureImportance: sortedImportance(importance),
	})
}

// handleTrain retrains from the engine's dataset source. Training is not
// bound by the request timeout.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	kind, err := ml.ParseKind(mux.Vars(r)["model"])
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.dispatcher.Retrain(r.Context(), kind, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TrainResponse{
		Success: true,
		Model:   kind.ModelName(),
		Version: res.Version,
		Metrics: res.Metrics,
		Message: fmt.Sprintf("%s retrained", kind.ModelName()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	e := s.dispatcher.Engine()
	checks := map[string]string{"strategy": string(e.Strategy())}
	for _, info := range e.ModelInfo() {
		if info.Available {
			checks[info.Name] = "ready"
		} else {
			checks[info.Name] = "unavailable: " + info.Reason
		}
	}

	if !e.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}
