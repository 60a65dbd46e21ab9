// Package api exposes the prediction engine over HTTP. Every engine call is
// submitted to the dispatcher's worker pool and awaited by the handler.
package api

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"academic-risk/internal/engine"
	"academic-risk/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const serviceName = "academic-risk"

// HistoryReader serves stored predictions for one student.
type HistoryReader interface {
	GetPredictions(entityID string, start, end time.Time) ([]storage.PredictionRecord, error)
}

// Config holds the server settings.
type Config struct {
	Port           int
	MetricsPath    string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
	// MetricsHandler defaults to the Prometheus default registry handler.
	MetricsHandler http.Handler
	Metrics        HTTPMetrics
	History        HistoryReader
}

// Server provides the HTTP API for predictions and model management.
type Server struct {
	dispatcher *engine.Dispatcher
	history    HistoryReader
	metrics    HTTPMetrics
	validate   *validator.Validate
	limiter    *rate.Limiter
	exempt     map[string]bool
	timeout    time.Duration
	router     *mux.Router
	server     *http.Server
}

// NewServer creates a new HTTP server for the dispatcher.
func NewServer(cfg Config, d *engine.Dispatcher) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopHTTPMetrics{}
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		dispatcher: d,
		history:    cfg.History,
		metrics:    cfg.Metrics,
		validate:   v,
		limiter:    newLimiter(cfg.RateLimit, cfg.RateBurst),
		exempt:     map[string]bool{"/health": true, "/ready": true, cfg.MetricsPath: true},
		timeout:    cfg.RequestTimeout,
		router:     mux.NewRouter(),
	}

	r := s.router
	r.Use(s.loggingMiddleware, s.rateLimitMiddleware)

	r.HandleFunc("/predict/subject", s.handlePredictSubject).Methods(http.MethodPost)
	r.HandleFunc("/predict/semester", s.handlePredictSemester).Methods(http.MethodPost)
	r.HandleFunc("/predict/batch", s.handlePredictBatch).Methods(http.MethodPost)
	r.HandleFunc("/predictions/{student_id}", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/models/info", s.handleModelInfo).Methods(http.MethodGet)
	r.HandleFunc("/models/feature-importance/{model}", s.handleFeatureImportance).Methods(http.MethodGet)
	r.HandleFunc("/models/{model}/train", s.handleTrain).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle(cfg.MetricsPath, cfg.MetricsHandler).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Router exposes the router so other components can mount routes on the
// same listener.
func (s *Server) Router() *mux.Router { return s.router }

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}
