// Package client is a typed HTTP client for the risk service API and a
// reconnecting watcher for the dashboard alert stream.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"academic-risk/internal/api"
	"academic-risk/internal/engine"

	"github.com/go-resty/resty/v2"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("risk api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("risk api: %d %s", e.StatusCode, e.Message)
}

// Prediction is the prediction block of both single-prediction endpoints.
// Exactly one of PredictedScore and PredictedSGPA is set.
type Prediction struct {
	PredictedScore *float64      `json:"predicted_score,omitempty"`
	PredictedSGPA  *float64      `json:"predicted_sgpa,omitempty"`
	Confidence     float64       `json:"confidence"`
	RiskLevel      engine.Level  `json:"risk_level"`
	ModelVersion   string        `json:"model_version"`
	Source         engine.Source `json:"source"`
	PredictedAt    time.Time     `json:"predicted_at"`
}

// Score returns whichever score the service filled in.
func (p Prediction) Score() float64 {
	if p.PredictedScore != nil {
		return *p.PredictedScore
	}
	if p.PredictedSGPA != nil {
		return *p.PredictedSGPA
	}
	return 0
}

type PredictionResponse struct {
	Success      bool                `json:"success"`
	PredictionID string              `json:"prediction_id"`
	Prediction   Prediction          `json:"prediction"`
	Analysis     engine.RiskAnalysis `json:"risk_analysis"`
	Message      string              `json:"message"`
}

type Client struct {
	base string
	rest *resty.Client
}

// New creates a client for the service at base. Requests rejected by the
// rate limiter or failing at the transport level are retried twice.
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests
		})
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	apiErr := &api.ErrorResponse{}
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return &APIError{StatusCode: resp.StatusCode(), Code: apiErr.ErrorCode, Message: msg}
	}
	return nil
}

// PredictSubject requests a subject prediction.
func (c *Client) PredictSubject(ctx context.Context, studentID string, features map[string]float64) (*PredictionResponse, error) {
	out := &PredictionResponse{}
	body := map[string]interface{}{"student_id": studentID, "features": features}
	if err := c.do(ctx, http.MethodPost, "/predict/subject", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictSemester requests a semester SGPA prediction. A zero semester is
// omitted.
func (c *Client) PredictSemester(ctx context.Context, studentID string, semester int, features map[string]float64) (*PredictionResponse, error) {
	out := &PredictionResponse{}
	body := map[string]interface{}{"student_id": studentID, "features": features}
	if semester > 0 {
		body["semester"] = semester
	}
	if err := c.do(ctx, http.MethodPost, "/predict/semester", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Batch scores several students; per-item failures are reported in the
// response, not as an error.
func (c *Client) Batch(ctx context.Context, predictionType string, students []api.BatchStudent) (*api.BatchPredictionResponse, error) {
	out := &api.BatchPredictionResponse{}
	body := api.BatchPredictionRequest{Students: students, PredictionType: predictionType}
	if err := c.do(ctx, http.MethodPost, "/predict/batch", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FeatureImportance(ctx context.Context, model string) (*api.FeatureImportanceResponse, error) {
	out := &api.FeatureImportanceResponse{}
	if err := c.do(ctx, http.MethodGet, "/models/feature-importance/"+model, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ModelInfo(ctx context.Context) (*api.ModelInfoResponse, error) {
	out := &api.ModelInfoResponse{}
	if err := c.do(ctx, http.MethodGet, "/models/info", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Train retrains model on the server and returns the new version.
func (c *Client) Train(ctx context.Context, model string) (*api.TrainResponse, error) {
	out := &api.TrainResponse{}
	if err := c.do(ctx, http.MethodPost, "/models/"+model+"/train", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns stored predictions for studentID. Zero times use the
// server defaults.
func (c *Client) History(ctx context.Context, studentID string, from, to time.Time) (*api.HistoryResponse, error) {
	out := &api.HistoryResponse{}
	params := map[string]string{}
	if !from.IsZero() {
		params["from"] = from.UTC().Format(time.RFC3339)
	}
	if !to.IsZero() {
		params["to"] = to.UTC().Format(time.RFC3339)
	}

	apiErr := &api.ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(apiErr).
		Get(c.base + "/predictions/" + studentID)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Code: apiErr.ErrorCode, Message: apiErr.Message}
	}
	return out, nil
}

// Health returns nil when the service answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, &api.HealthResponse{})
}
