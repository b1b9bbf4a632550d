package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/form"
)

// getOverview returns node types, tools and active workflows in one call.
// GET /api/overview
func (s *Server) getOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.builder.Open(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// GET /api/node-types
func (s *Server) listNodeTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry().List())
}

// GET /api/node-types/{type}
func (s *Server) getNodeType(w http.ResponseWriter, r *http.Request) {
	def, err := s.registry().Lookup(flowdeck.NodeType(chi.URLParam(r, "type")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// listTools returns the cached tool catalog, refreshed when stale.
// GET /api/tools
func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, flowdeck.ToolCatalogResponse{Success: true, Tools: s.catalog.Tools(r.Context())})
}

// POST /api/tools/refresh
func (s *Server) refreshTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.catalog.Refresh(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowdeck.ToolCatalogResponse{Success: true, Tools: tools})
}

type nodeRequest struct {
	Node flowdeck.NodeInstance `json:"node"`
}

// resolveForm returns the visible fields of a node that is not part of a
// stored graph, for example one being edited client-side.
// POST /api/forms/resolve
func (s *Server) resolveForm(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, form.ResolveForm(s.registry(), req.Node, s.catalog.Tools(r.Context())))
}

// POST /api/forms/validate
func (s *Server) validateForm(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	def, err := s.registry().Lookup(req.Node.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := form.Validate(req.Node, def, s.catalog.Tools(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}
