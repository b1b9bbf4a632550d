package flowdeck

// PlanStep is one tool invocation in a plan.
type PlanStep struct {
	ID           int            `json:"id"`
	Description  string         `json:"description"`
	Tool         string         `json:"tool"`
	Args         map[string]any `json:"args"`
	Dependencies []int          `json:"dependencies"`
}

// Submission is the body sent to the executor to start a workflow.
type Submission struct {
	GoalSummary string     `json:"goalSummary"`
	Plan        []PlanStep `json:"plan"`
	FlowID      string     `json:"flowId,omitempty"`
}

// GeneratedPlan is the reply of the plan generation service.
type GeneratedPlan struct {
	Plan        []PlanStep     `json:"plan"`
	GoalSummary string         `json:"goalSummary"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
