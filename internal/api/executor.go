package api

import (
	"net/http"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// The handlers below serve the execution backend contract from the
// in-process executor, so a second flowdeck in remote mode can point at
// this one.

// GET /tools
func (s *Server) executorTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.executor.ListTools(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowdeck.ToolCatalogResponse{Success: true, Tools: tools})
}

// POST /workflows/execute
func (s *Server) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	var sub flowdeck.Submission
	if !decodeBody(w, r, &sub) {
		return
	}
	if err := s.executor.Execute(r.Context(), sub); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "flowId": sub.FlowID})
}

// GET /active-workflows
func (s *Server) activeWorkflows(w http.ResponseWriter, r *http.Request) {
	records, err := s.executor.ActiveWorkflows(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []flowdeck.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": records})
}

// GET /api/executor/stats
func (s *Server) executorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.executor.Stats())
}
