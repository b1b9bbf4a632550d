package tracker

import (
	"fmt"
	"slices"
	"time"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// ValidStepTransitions lists the allowed step moves. Completed and failed
// are terminal.
var ValidStepTransitions = map[flowdeck.StepStatus][]flowdeck.StepStatus{
	flowdeck.StepPending: {flowdeck.StepRunning},
	flowdeck.StepRunning: {flowdeck.StepCompleted, flowdeck.StepFailed},
}

// ValidWorkflowTransitions lists the allowed workflow moves.
var ValidWorkflowTransitions = map[flowdeck.WorkflowStatus][]flowdeck.WorkflowStatus{
	flowdeck.WorkflowPlanning:  {flowdeck.WorkflowExecuting, flowdeck.WorkflowFailed},
	flowdeck.WorkflowExecuting: {flowdeck.WorkflowCompleted, flowdeck.WorkflowFailed},
}

// StepUpdate carries the outcome attached to a step transition.
type StepUpdate struct {
	Result   any
	Error    string
	Duration time.Duration
}

// StepTransition moves one step of rec to status to and returns the updated
// copy. A step may only start once every dependency has completed.
func StepTransition(rec flowdeck.ExecutionRecord, stepID int, to flowdeck.StepStatus, upd StepUpdate) (flowdeck.ExecutionRecord, error) {
	out := rec.Clone()
	step := out.Step(stepID)
	if step == nil {
		return rec, fmt.Errorf("%w: %d", flowdeck.ErrStepNotFound, stepID)
	}
	if !slices.Contains(ValidStepTransitions[step.Status], to) {
		return rec, fmt.Errorf("%w: step %d %s -> %s", flowdeck.ErrInvalidTransition, stepID, step.Status, to)
	}
	if to == flowdeck.StepRunning {
		for _, dep := range step.Dependencies {
			d := out.Step(dep)
			if d == nil || d.Status != flowdeck.StepCompleted {
				return rec, fmt.Errorf("%w: step %d waits for step %d", flowdeck.ErrInvalidTransition, stepID, dep)
			}
		}
	}

	step.Status = to
	if to.Terminal() {
		ms := upd.Duration.Milliseconds()
		step.Duration = &ms
		step.Result = upd.Result
		step.Error = upd.Error
	}
	return out, nil
}

// WorkflowTransition moves rec to status to. Reaching a terminal status
// stamps CompletedAt and TotalDuration.
func WorkflowTransition(rec flowdeck.ExecutionRecord, to flowdeck.WorkflowStatus, now time.Time) (flowdeck.ExecutionRecord, error) {
	if !slices.Contains(ValidWorkflowTransitions[rec.Status], to) {
		return rec, fmt.Errorf("%w: workflow %s %s -> %s", flowdeck.ErrInvalidTransition, rec.WorkflowID, rec.Status, to)
	}
	out := rec.Clone()
	out.Status = to
	if to == flowdeck.WorkflowCompleted || to == flowdeck.WorkflowFailed {
		done := now
		total := now.Sub(rec.StartedAt).Milliseconds()
		out.CompletedAt = &done
		out.TotalDuration = &total
	}
	return out, nil
}
