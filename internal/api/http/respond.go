package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	"github.com/mind-engage/mindengage-adaptive/internal/engine"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, assessment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, assessment.ErrCompleted):
		return http.StatusForbidden
	case errors.Is(err, assessment.ErrAlreadyAnswered),
		errors.Is(err, assessment.ErrAlreadyAsked),
		errors.Is(err, assessment.ErrNotServed),
		errors.Is(err, assessment.ErrCodeTaken):
		return http.StatusConflict
	case errors.Is(err, assessment.ErrInvalid),
		errors.Is(err, assessment.ErrBadAnswer):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal errors are logged and hidden.
func respondError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	switch status {
	case http.StatusInternalServerError:
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		body.Error = "internal error"
	case http.StatusServiceUnavailable:
		body.Retryable = true
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
