package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/plan"
)

// POST /api/plans
func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GoalSummary string              `json:"goalSummary"`
		Plan        []flowdeck.PlanStep `json:"plan"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.builder.CreatePlan(r.Context(), req.GoalSummary, req.Plan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GET /api/plans
func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.builder.ListPlans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

// GET /api/plans/{id}
func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	d, err := s.builder.Plan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DELETE /api/plans/{id}
func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.builder.DeletePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/plans/{id}/goal
func (s *Server) setGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GoalSummary string `json:"goalSummary"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.builder.SetGoal(r.Context(), chi.URLParam(r, "id"), req.GoalSummary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// addStep appends a step, or inserts it after the step named by "after".
// POST /api/plans/{id}/steps
func (s *Server) addStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		After *int `json:"after"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	d, step, err := s.builder.AddStep(r.Context(), chi.URLParam(r, "id"), req.After)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"plan": d, "step": step})
}

// updateStep applies a partial step update. Args text that does not parse
// is reported in "violations" while the rest of the patch is kept.
// PATCH /api/plans/{id}/steps/{stepId}
func (s *Server) updateStep(w http.ResponseWriter, r *http.Request) {
	stepID, ok := stepParam(w, r)
	if !ok {
		return
	}
	var patch plan.StepPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	d, err := s.builder.UpdateStep(r.Context(), chi.URLParam(r, "id"), stepID, patch)
	if err != nil && !errors.Is(err, flowdeck.ErrSchemaViolation) {
		writeError(w, r, err)
		return
	}
	resp := map[string]any{"plan": d}
	if err != nil {
		resp["violations"] = flowdeck.Violations(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DELETE /api/plans/{id}/steps/{stepId}
func (s *Server) removeStep(w http.ResponseWriter, r *http.Request) {
	stepID, ok := stepParam(w, r)
	if !ok {
		return
	}
	d, dangling, err := s.builder.RemoveStep(r.Context(), chi.URLParam(r, "id"), stepID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if dangling == nil {
		dangling = []plan.DanglingRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": d, "dangling": dangling})
}

// POST /api/plans/{id}/steps/{stepId}/move
func (s *Server) moveStep(w http.ResponseWriter, r *http.Request) {
	stepID, ok := stepParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Direction plan.Direction `json:"direction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Direction != plan.Up && req.Direction != plan.Down {
		badRequest(w, `direction must be "up" or "down"`)
		return
	}
	d, err := s.builder.MoveStep(r.Context(), chi.URLParam(r, "id"), stepID, req.Direction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// POST /api/plans/{id}/validate
func (s *Server) validatePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.builder.ValidatePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// submitPlan hands the draft to the executor and starts tracking it.
// POST /api/plans/{id}/submit
func (s *Server) submitPlan(w http.ResponseWriter, r *http.Request) {
	flowID, err := s.builder.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"flowId": flowID})
}

// POST /api/generate-plan
func (s *Server) generatePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.builder.GeneratePlan(r.Context(), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func stepParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "stepId"))
	if err != nil {
		badRequest(w, "invalid step id")
		return 0, false
	}
	return id, true
}
