package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"academic-risk/internal/api"
	"academic-risk/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) string {
	t.Helper()
	pool := engine.NewPool(1, 4)
	t.Cleanup(pool.Stop)
	e := engine.New(engine.Config{Strategy: engine.StrategyRules})
	s := api.NewServer(api.Config{MetricsHandler: http.NotFoundHandler()}, engine.NewDispatcher(e, pool))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseFeatures(t *testing.T) {
	fs, err := parseFeatures([]string{"attendance_percentage=82.5", " behavior_score = 7 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"attendance_percentage": 82.5, "behavior_score": 7}, fs)

	for _, bad := range []string{"attendance", "=3", "behavior_score=high"} {
		_, err := parseFeatures([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestDashboardStreamURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/dashboard/ws", dashboardStreamURL("http://localhost:8000/"))
	assert.Equal(t, "wss://risk.example.edu/dashboard/ws", dashboardStreamURL("https://risk.example.edu"))
}

func TestPredictSubjectCommand(t *testing.T) {
	url := newService(t)

	out, err := run(t, "--url", url, "predict", "subject", "S1",
		"-f", "attendance_percentage=95", "-f", "best_of_two_internals=25",
		"-f", "assignment_marks=20", "-f", "behavior_score=10")
	require.NoError(t, err)

	var resp struct {
		Success    bool `json:"success"`
		Prediction struct {
			PredictedScore float64      `json:"predicted_score"`
			RiskLevel      engine.Level `json:"risk_level"`
		} `json:"prediction"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, engine.LevelSafe, resp.Prediction.RiskLevel)
}

func TestPredictCommand_ServiceError(t *testing.T) {
	url := newService(t)
	_, err := run(t, "--url", url, "predict", "subject", "S1", "-f", "attendance_percentage=95")
	require.Error(t, err)
	assert.Contains(t, err.Error(), api.CodeMissingFeature)
}

func TestBatchCommand(t *testing.T) {
	url := newService(t)
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"student_id": "A", "features": {"attendance_percentage": 90, "best_of_two_internals": 20, "assignment_marks": 18, "behavior_score": 9}},
		{"student_id": "B", "features": {"mean_subject_prediction": 70, "attendance_average": 85}, "prediction_type": "semester"}
	]`), 0o644))

	out, err := run(t, "--url", url, "batch", path)
	require.NoError(t, err)

	var resp api.BatchPredictionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.TotalCount)
	assert.Equal(t, 0, resp.FailedCount)
}

func TestBatchCommand_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	_, err := run(t, "--url", "http://127.0.0.1:1", "batch", path)
	assert.ErrorContains(t, err, "no students")
}

func TestInfoCommand(t *testing.T) {
	url := newService(t)
	out, err := run(t, "--url", url, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy: rules")
	assert.Contains(t, out, "subject_predictor")
	assert.Contains(t, out, "sgpa_predictor")
}
