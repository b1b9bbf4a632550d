package flowdeck

import "time"

// WorkflowStatus is the lifecycle state of an ExecutionRecord.
type WorkflowStatus string

const (
	WorkflowPlanning  WorkflowStatus = "planning"
	WorkflowExecuting WorkflowStatus = "executing"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// StepStatus is the lifecycle state of a StepExecution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// StepExecution is a PlanStep augmented with its run state.
type StepExecution struct {
	PlanStep
	Status   StepStatus `json:"status"`
	Result   any        `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
	Duration *int64     `json:"duration,omitempty"` // milliseconds
}

// ExecutionRecord is the snapshot of one workflow run.
type ExecutionRecord struct {
	WorkflowID    string          `json:"workflowId"`
	GoalSummary   string          `json:"goalSummary"`
	Status        WorkflowStatus  `json:"status"`
	Plan          []StepExecution `json:"plan"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	TotalDuration *int64          `json:"totalDuration,omitempty"` // milliseconds
}

// Step returns a pointer to the step with the given id, or nil.
func (r *ExecutionRecord) Step(id int) *StepExecution {
	for i := range r.Plan {
		if r.Plan[i].ID == id {
			return &r.Plan[i]
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with r.
func (r ExecutionRecord) Clone() ExecutionRecord {
	cp := r
	cp.Plan = make([]StepExecution, len(r.Plan))
	for i, s := range r.Plan {
		s.Dependencies = append([]int(nil), s.Dependencies...)
		cp.Plan[i] = s
	}
	return cp
}

// NewExecutionRecord seeds a record in the planning state with every step pending.
func NewExecutionRecord(workflowID, goalSummary string, steps []PlanStep, now time.Time) ExecutionRecord {
	rec := ExecutionRecord{
		WorkflowID:  workflowID,
		GoalSummary: goalSummary,
		Status:      WorkflowPlanning,
		StartedAt:   now,
	}
	for _, s := range steps {
		rec.Plan = append(rec.Plan, StepExecution{PlanStep: s, Status: StepPending})
	}
	if len(rec.Plan) > 0 {
		rec.Status = WorkflowExecuting
	}
	return rec
}

// Live event types published on the log channel.
const (
	EventLog      = "log"
	EventStep     = "step"
	EventComplete = "complete"
	EventError    = "error"
)

// LiveEvent is one free-text log line pushed for a flow.
type LiveEvent struct {
	FlowID     string    `json:"flowId"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Seq        int       `json:"seq"`
	ReceivedAt time.Time `json:"receivedAt,omitempty"`
}
