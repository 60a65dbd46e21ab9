package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// HTTPMetrics receives per-request measurements.
type HTTPMetrics interface {
	HTTPObserve(route string, code int, seconds float64)
	RateLimitedInc()
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) HTTPObserve(string, int, float64) {}
func (noopHTTPMetrics) RateLimitedInc()                  {}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// loggingMiddleware logs every request and reports it to metrics under its
// route template so path parameters do not explode label cardinality.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routeName(r)
		s.metrics.HTTPObserve(route, rec.status, elapsed.Seconds())

		evt := log.Debug()
		if rec.status >= http.StatusInternalServerError {
			evt = log.Warn()
		}
		evt.Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", elapsed).
			Msg("HTTP request")
	})
}

// rateLimitMiddleware rejects requests beyond the shared token bucket.
// Probes and the metrics endpoint are never limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.Allow() {
			s.metrics.RateLimitedInc()
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Message:   "rate limit exceeded",
				ErrorCode: CodeRateLimited,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
