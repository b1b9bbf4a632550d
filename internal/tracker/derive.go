package tracker

import (
	"sort"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// Eligible returns the pending steps whose dependencies have all completed,
// in plan order.
func Eligible(rec flowdeck.ExecutionRecord) []int {
	status := statuses(rec)
	var out []int
	for _, s := range rec.Plan {
		if s.Status != flowdeck.StepPending {
			continue
		}
		ready := true
		for _, dep := range s.Dependencies {
			if status[dep] != flowdeck.StepCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, s.ID)
		}
	}
	return out
}

// Blocked returns the pending steps that can never run because a
// dependency, direct or transitive, failed or does not exist. Sorted by id.
func Blocked(rec flowdeck.ExecutionRecord) []int {
	status := statuses(rec)
	deps := make(map[int][]int, len(rec.Plan))
	for _, s := range rec.Plan {
		deps[s.ID] = s.Dependencies
	}

	memo := map[int]bool{}
	visiting := map[int]bool{}
	var blocked func(id int) bool
	blocked = func(id int) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		st, ok := status[id]
		if !ok || st == flowdeck.StepFailed {
			return true
		}
		if visiting[id] {
			// a dependency cycle can never make progress
			return true
		}
		visiting[id] = true
		res := false
		for _, d := range deps[id] {
			if blocked(d) {
				res = true
				break
			}
		}
		visiting[id] = false
		memo[id] = res
		return res
	}

	var out []int
	for _, s := range rec.Plan {
		if s.Status == flowdeck.StepPending && blocked(s.ID) {
			out = append(out, s.ID)
		}
	}
	sort.Ints(out)
	return out
}

// DeriveStatus computes the workflow status implied by its steps: planning
// without steps, completed when every step completed, failed when a step
// failed and nothing else can progress, executing otherwise.
func DeriveStatus(rec flowdeck.ExecutionRecord) flowdeck.WorkflowStatus {
	if len(rec.Plan) == 0 {
		return flowdeck.WorkflowPlanning
	}
	var completed, failed, running int
	for _, s := range rec.Plan {
		switch s.Status {
		case flowdeck.StepCompleted:
			completed++
		case flowdeck.StepFailed:
			failed++
		case flowdeck.StepRunning:
			running++
		}
	}
	if completed == len(rec.Plan) {
		return flowdeck.WorkflowCompleted
	}
	if failed > 0 && running == 0 && len(Eligible(rec)) == 0 {
		return flowdeck.WorkflowFailed
	}
	return flowdeck.WorkflowExecuting
}

func statuses(rec flowdeck.ExecutionRecord) map[int]flowdeck.StepStatus {
	m := make(map[int]flowdeck.StepStatus, len(rec.Plan))
	for _, s := range rec.Plan {
		m[s.ID] = s.Status
	}
	return m
}
