package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"academic-risk/internal/engine"
	"academic-risk/internal/features"
	"academic-risk/internal/ml"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Error codes carried in ErrorResponse.ErrorCode.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeMissingFeature  = "MISSING_FEATURE"
	CodeOutOfRange      = "OUT_OF_RANGE"
	CodeInvalidKind     = "INVALID_KIND"
	CodeModelNotTrained = "MODEL_NOT_TRAINED"
	CodeInsufficient    = "INSUFFICIENT_DATA"
	CodeUnavailable     = "UNAVAILABLE"
	CodeTimeout         = "TIMEOUT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
)

// classify maps an engine or validation error to a status and error code.
func classify(err error) (int, string) {
	var missing *features.MissingFeatureError
	var outOfRange *features.RangeError
	var verrs validator.ValidationErrors

	switch {
	case errors.As(err, &verrs):
		status, code := http.StatusUnprocessableEntity, CodeOutOfRange
		for _, fe := range verrs {
			if fe.Tag() != "required" {
				continue
			}
			if strings.Contains(fe.Namespace(), ".features.") {
				return http.StatusBadRequest, CodeMissingFeature
			}
			status, code = http.StatusBadRequest, CodeBadRequest
		}
		return status, code
	case errors.As(err, &missing):
		return http.StatusBadRequest, CodeMissingFeature
	case errors.As(err, &outOfRange):
		return http.StatusUnprocessableEntity, CodeOutOfRange
	case errors.Is(err, ml.ErrInvalidKind):
		return http.StatusBadRequest, CodeInvalidKind
	case errors.Is(err, ml.ErrModelNotTrained), errors.Is(err, ml.ErrModelNotFound):
		return http.StatusServiceUnavailable, CodeModelNotTrained
	case errors.Is(err, ml.ErrInsufficientData):
		return http.StatusUnprocessableEntity, CodeInsufficient
	case errors.Is(err, engine.ErrPoolClosed):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	}
	return http.StatusInternalServerError, CodeInternal
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("field '%s' is required", fe.Field()))
		case "gte", "lte", "min", "max":
			details = append(details, fmt.Sprintf("field '%s' violates %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		default:
			details = append(details, fmt.Sprintf("field '%s' failed validation: %s", fe.Field(), fe.Tag()))
		}
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, ErrorResponse{
		Message:   err.Error(),
		ErrorCode: code,
		Details:   validationDetails(err),
	})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: msg, ErrorCode: CodeBadRequest})
}
