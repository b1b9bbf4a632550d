package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// POST /api/graphs
func (s *Server) createGraph(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.builder.CreateGraph(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GET /api/graphs
func (s *Server) listGraphs(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.builder.ListGraphs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

// GET /api/graphs/{id}
func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	d, err := s.builder.Graph(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DELETE /api/graphs/{id}
func (s *Server) deleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.builder.DeleteGraph(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/graphs/{id}/nodes
func (s *Server) addNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     flowdeck.NodeType `json:"type"`
		Position flowdeck.Position `json:"position"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	d, node, err := s.builder.AddNode(r.Context(), chi.URLParam(r, "id"), req.Type, req.Position)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"graph": d, "node": node})
}

// updateNode applies one kind of node edit: a single field (field/value),
// a data merge (data) or a move (position).
// PATCH /api/graphs/{id}/nodes/{nodeId}
func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field    string             `json:"field"`
		Value    any                `json:"value"`
		Data     map[string]any     `json:"data"`
		Position *flowdeck.Position `json:"position"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id, nodeID := chi.URLParam(r, "id"), chi.URLParam(r, "nodeId")
	ctx := r.Context()

	var err error
	switch {
	case req.Field != "":
		_, err = s.builder.UpdateNodeField(ctx, id, nodeID, req.Field, req.Value)
	case req.Data != nil:
		_, err = s.builder.UpdateNodeData(ctx, id, nodeID, req.Data)
	case req.Position != nil:
		_, err = s.builder.MoveNode(ctx, id, nodeID, *req.Position)
	default:
		badRequest(w, "one of field, data or position is required")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.builder.Graph(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DELETE /api/graphs/{id}/nodes/{nodeId}
func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) {
	d, err := s.builder.RemoveNode(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "nodeId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /api/graphs/{id}/nodes/{nodeId}/form
func (s *Server) nodeForm(w http.ResponseWriter, r *http.Request) {
	f, err := s.builder.NodeForm(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "nodeId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// POST /api/graphs/{id}/edges
func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var c flowdeck.Connection
	if !decodeBody(w, r, &c) {
		return
	}
	d, edge, err := s.builder.Connect(r.Context(), chi.URLParam(r, "id"), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"graph": d, "edge": edge})
}

// DELETE /api/graphs/{id}/edges/{edgeId}
func (s *Server) removeEdge(w http.ResponseWriter, r *http.Request) {
	d, err := s.builder.RemoveEdge(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "edgeId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// checkGraph validates every node and returns the execution order.
// POST /api/graphs/{id}/check
func (s *Server) checkGraph(w http.ResponseWriter, r *http.Request) {
	order, err := s.builder.CheckGraph(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "order": order})
}
