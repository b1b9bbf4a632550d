package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// GET /api/executions?status=&limit=&offset=
func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	status := flowdeck.WorkflowStatus(r.URL.Query().Get("status"))
	records, total, err := s.history.List(r.Context(), limit, offset, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []flowdeck.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": records, "total": total})
}

// GET /api/executions/{id}
func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
