package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/soochol/flowdeck/internal/executor"
	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error      string                      `json:"error"`
	Violations []*flowdeck.SchemaViolation `json:"violations,omitempty"`
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, flowdeck.ErrSchemaViolation), errors.Is(err, flowdeck.ErrCycle):
		return http.StatusUnprocessableEntity
	case errors.Is(err, flowdeck.ErrNotFound),
		errors.Is(err, flowdeck.ErrNodeNotFound),
		errors.Is(err, flowdeck.ErrStepNotFound),
		errors.Is(err, flowdeck.ErrUnknownNodeType):
		return http.StatusNotFound
	case errors.Is(err, flowdeck.ErrCatalogUnavailable), errors.Is(err, services.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, executor.ErrWorkflowActive), errors.Is(err, flowdeck.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Violations: flowdeck.Violations(err)})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// parsePagination extracts limit and offset query parameters with defaults.
func parsePagination(r *http.Request) (int, int) {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
