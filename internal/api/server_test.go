package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"academic-risk/internal/common"
	"academic-risk/internal/dataset"
	"academic-risk/internal/engine"
	"academic-risk/internal/ml"
	"academic-risk/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu          sync.Mutex
	routes      map[string]int
	rateLimited int
}

func (m *recordingMetrics) HTTPObserve(route string, code int, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.routes == nil {
		m.routes = make(map[string]int)
	}
	m.routes[route]++
}

func (m *recordingMetrics) RateLimitedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited++
}

type fakeHistory struct {
	records []storage.PredictionRecord
	gotID   string
}

func (f *fakeHistory) GetPredictions(entityID string, start, end time.Time) ([]storage.PredictionRecord, error) {
	f.gotID = entityID
	var out []storage.PredictionRecord
	for _, r := range f.records {
		if r.EntityID == entityID && !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func testTrainer() ml.TrainerConfig {
	return ml.TrainerConfig{
		ForestTrees:      8,
		ForestMaxDepth:   6,
		BoostingStages:   15,
		BoostingMaxDepth: 3,
		LearningRate:     0.1,
		Seed:             42,
		TestRatio:        0.2,
	}
}

func newTestServer(t *testing.T, ecfg engine.Config, cfg Config, opts ...engine.Option) *Server {
	t.Helper()
	ecfg.Trainer = testTrainer()
	e := engine.New(ecfg, opts...)
	pool := engine.NewPool(2, 8)
	t.Cleanup(pool.Stop)
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("# metrics\n"))
		})
	}
	return NewServer(cfg, engine.NewDispatcher(e, pool))
}

func rulesServer(t *testing.T) *Server {
	return newTestServer(t, engine.Config{Strategy: engine.StrategyRules}, Config{})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const subjectBody = `{
	"student_id": "S1",
	"subject_id": "CS101",
	"features": {
		"attendance_percentage": 90,
		"best_of_two_internals": 20,
		"assignment_marks": 16,
		"behavior_score": 8
	}
}`

func TestPredictSubject_Rules(t *testing.T) {
	s := rulesServer(t)

	rec := do(t, s, http.MethodPost, "/predict/subject", subjectBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success      bool                   `json:"success"`
		PredictionID string                 `json:"prediction_id"`
		Prediction   map[string]interface{} `json:"prediction"`
		Analysis     engine.RiskAnalysis    `json:"risk_analysis"`
		Message      string                 `json:"message"`
	}
	decodeBody(t, rec, &resp)

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.PredictionID)
	assert.Equal(t, "rules", resp.Prediction["source"])
	assert.Equal(t, "CS101", resp.Prediction["subject_id"])
	assert.Equal(t, common.RulesModelVersion, resp.Prediction["model_version"])
	// 0.4*90 + 2*20 + 2.5*16 + 2.5*8 = 136, clamped to 100
	assert.Equal(t, 100.0, resp.Prediction["predicted_score"])
	assert.Equal(t, "SAFE", resp.Prediction["risk_level"])
	assert.Equal(t, engine.LevelSafe, resp.Analysis.RiskLevel)
}

func TestPredictSubject_ValidationErrors(t *testing.T) {
	s := rulesServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed json",
			body:     `{"student_id":`,
			wantCode: http.StatusBadRequest,
			wantErr:  CodeBadRequest,
		},
		{
			name:     "missing feature",
			body:     `{"student_id":"S1","features":{"attendance_percentage":90,"best_of_two_internals":20,"assignment_marks":16}}`,
			wantCode: http.StatusBadRequest,
			wantErr:  CodeMissingFeature,
		},
		{
			name:     "missing student id",
			body:     `{"features":{"attendance_percentage":90,"best_of_two_internals":20,"assignment_marks":16,"behavior_score":8}}`,
			wantCode: http.StatusBadRequest,
			wantErr:  CodeBadRequest,
		},
		{
			name:     "out of range",
			body:     `{"student_id":"S1","features":{"attendance_percentage":120,"best_of_two_internals":20,"assignment_marks":16,"behavior_score":8}}`,
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  CodeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/predict/subject", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp ErrorResponse
			decodeBody(t, rec, &resp)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantErr, resp.ErrorCode)
		})
	}
}

func TestPredictSubject_ZeroValuesArePresent(t *testing.T) {
	s := rulesServer(t)

	body := `{"student_id":"S2","features":{"attendance_percentage":0,"best_of_two_internals":0,"assignment_marks":0,"behavior_score":0}}`
	rec := do(t, s, http.MethodPost, "/predict/subject", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictionResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, engine.LevelAtRisk, resp.Analysis.RiskLevel)
	assert.NotEmpty(t, resp.Analysis.Factors)
}

func TestPredictSemester_Rules(t *testing.T) {
	s := rulesServer(t)

	body := `{"student_id":"S1","semester":3,"features":{"mean_subject_prediction":72,"attendance_average":85}}`
	rec := do(t, s, http.MethodPost, "/predict/semester", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success    bool                   `json:"success"`
		Prediction map[string]interface{} `json:"prediction"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	sgpa, ok := resp.Prediction["predicted_sgpa"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, sgpa, 0.0)
	assert.LessOrEqual(t, sgpa, 10.0)
	assert.Equal(t, 3.0, resp.Prediction["semester"])
}

func TestPredictSemester_InvalidSemester(t *testing.T) {
	s := rulesServer(t)

	body := `{"student_id":"S1","semester":9,"features":{"mean_subject_prediction":72,"attendance_average":85}}`
	rec := do(t, s, http.MethodPost, "/predict/semester", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPredictBatch(t *testing.T) {
	s := rulesServer(t)

	body := `{
		"prediction_type": "SUBJECT",
		"students": [
			{"student_id":"A","features":{"attendance_percentage":90,"best_of_two_internals":20,"assignment_marks":16,"behavior_score":8}},
			{"student_id":"B","features":{"attendance_percentage":90}},
			{"student_id":"C","prediction_type":"SEMESTER","features":{"mean_subject_prediction":60,"attendance_average":70}},
			{"student_id":"D","prediction_type":"yearly","features":{"attendance_percentage":90}}
		]
	}`
	rec := do(t, s, http.MethodPost, "/predict/batch", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchPredictionResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Predictions, 4)
	assert.Equal(t, 4, resp.TotalCount)
	assert.Equal(t, 2, resp.FailedCount)
	assert.NotEmpty(t, resp.BatchID)

	assert.Equal(t, "A", resp.Predictions[0].EntityID)
	assert.True(t, resp.Predictions[0].Success)
	assert.False(t, resp.Predictions[1].Success)
	assert.Contains(t, resp.Predictions[1].Error, "best_of_two_internals")
	assert.True(t, resp.Predictions[2].Success)
	assert.Equal(t, ml.KindSemester, resp.Predictions[2].Prediction.Kind)
	assert.False(t, resp.Predictions[3].Success)
	assert.Nil(t, resp.Predictions[3].Prediction)
}

func TestPredictBatch_RequestErrors(t *testing.T) {
	s := rulesServer(t)

	rec := do(t, s, http.MethodPost, "/predict/batch", `{"prediction_type":"WEEKLY","students":[{"student_id":"A","features":{}}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, CodeInvalidKind, resp.ErrorCode)

	rec = do(t, s, http.MethodPost, "/predict/batch", `{"prediction_type":"SUBJECT","students":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestModelStrategy_NoModel(t *testing.T) {
	s := newTestServer(t, engine.Config{Strategy: engine.StrategyModel}, Config{})

	rec := do(t, s, http.MethodPost, "/predict/subject", subjectBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, CodeModelNotTrained, resp.ErrorCode)

	rec = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var ready ReadyResponse
	decodeBody(t, rec, &ready)
	assert.Equal(t, "not_ready", ready.Status)
	assert.Contains(t, ready.Checks["subject_predictor"], "unavailable")
}

func TestTrainAndFeatureImportance(t *testing.T) {
	s := newTestServer(t,
		engine.Config{Strategy: engine.StrategyAuto, AutoTrain: true},
		Config{},
		engine.WithDatasetSource(dataset.Synthetic(200, 42)),
	)

	rec := do(t, s, http.MethodPost, "/models/subject_predictor/train", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var train TrainResponse
	decodeBody(t, rec, &train)
	assert.True(t, train.Success)
	assert.True(t, strings.HasPrefix(train.Version, "subject-"), train.Version)
	assert.Equal(t, 160, train.Metrics.TrainSamples)

	rec = do(t, s, http.MethodGet, "/models/feature-importance/subject_predictor", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fi FeatureImportanceResponse
	decodeBody(t, rec, &fi)
	require.Len(t, fi.FeatureImportance, 4)
	for i := 1; i < len(fi.FeatureImportance); i++ {
		assert.GreaterOrEqual(t, fi.FeatureImportance[i-1].Importance, fi.FeatureImportance[i].Importance)
	}

	rec = do(t, s, http.MethodGet, "/models/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info ModelInfoResponse
	decodeBody(t, rec, &info)
	require.Len(t, info.Models, 2)
	assert.True(t, info.Models[0].Available)
	assert.Equal(t, train.Version, info.Models[0].Version)

	rec = do(t, s, http.MethodPost, "/predict/subject", subjectBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var pred struct {
		Prediction map[string]interface{} `json:"prediction"`
	}
	decodeBody(t, rec, &pred)
	assert.Equal(t, "model", pred.Prediction["source"])
	assert.Equal(t, train.Version, pred.Prediction["model_version"])
}

func TestUnknownModelName(t *testing.T) {
	s := rulesServer(t)

	for _, path := range []string{"/models/feature-importance/gpa_predictor"} {
		rec := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := do(t, s, http.MethodPost, "/models/gpa_predictor/train", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	now := time.Now().UTC()
	h := &fakeHistory{records: []storage.PredictionRecord{
		{EntityID: "S1", Score: 70, Timestamp: now.Add(-time.Hour)},
		{EntityID: "S1", Score: 71, Timestamp: now.Add(-60 * 24 * time.Hour)},
		{EntityID: "S2", Score: 50, Timestamp: now.Add(-time.Hour)},
	}}
	s := newTestServer(t, engine.Config{Strategy: engine.StrategyRules}, Config{History: h})

	rec := do(t, s, http.MethodGet, "/predictions/S1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp HistoryResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "S1", h.gotID)
	assert.Equal(t, 1, resp.Count)

	from := now.Add(-90 * 24 * time.Hour).Format(time.RFC3339)
	rec = do(t, s, http.MethodGet, "/predictions/S1?from="+from, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)

	rec = do(t, s, http.MethodGet, "/predictions/S1?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_Disabled(t *testing.T) {
	s := rulesServer(t)
	rec := do(t, s, http.MethodGet, "/predictions/S1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthReadyAndMetrics(t *testing.T) {
	s := rulesServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decodeBody(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)

	rec = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestRateLimit(t *testing.T) {
	m := &recordingMetrics{}
	s := newTestServer(t, engine.Config{Strategy: engine.StrategyRules}, Config{
		RateLimit: 0.001,
		RateBurst: 1,
		Metrics:   m,
	})

	rec := do(t, s, http.MethodPost, "/predict/subject", subjectBody)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/predict/subject", subjectBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// probes are exempt
	rec = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.rateLimited)
	assert.Equal(t, 2, m.routes["/predict/subject"])
	assert.Equal(t, 1, m.routes["/health"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{&ml.ModelNotTrainedError{Model: "subject_predictor"}, http.StatusServiceUnavailable},
		{&ml.InvalidPredictionKindError{Kind: "x"}, http.StatusBadRequest},
		{&ml.InsufficientDataError{Reason: "empty"}, http.StatusUnprocessableEntity},
		{engine.ErrPoolClosed, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.code, status, tt.err.Error())
	}
}
