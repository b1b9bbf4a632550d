// Package plan is the ordered list of tool steps a user authors directly or
// receives from plan generation, and the codec used to submit it.
//
// Like graph.Graph, a Plan is a value and each edit returns a new Plan.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// Plan is a draft plan. HighWater is the largest id ever assigned, so ids of
// removed steps are never handed out again.
type Plan struct {
	GoalSummary string              `json:"goalSummary"`
	Steps       []flowdeck.PlanStep `json:"steps"`
	HighWater   int                 `json:"highWater"`
}

// New builds a plan from existing steps, for example a generated plan.
func New(goal string, steps []flowdeck.PlanStep) Plan {
	p := Plan{GoalSummary: goal, Steps: cloneSteps(steps)}
	p.HighWater = p.maxID()
	return p
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// StepPatch is a partial step update. Nil fields are left unchanged. When
// both Args and ArgsText are set, ArgsText wins.
type StepPatch struct {
	Description  *string        `json:"description,omitempty"`
	Tool         *string        `json:"tool,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	ArgsText     *string        `json:"argsText,omitempty"`
	Dependencies *[]int         `json:"dependencies,omitempty"`
}

// DanglingRef is a reference left behind by RemoveStep.
type DanglingRef struct {
	StepID int    `json:"stepId"`
	Ref    int    `json:"ref"`
	Kind   string `json:"kind"` // "dependency" or "template"
}

func (d DanglingRef) String() string {
	return fmt.Sprintf("step %d still references removed step %d (%s)", d.StepID, d.Ref, d.Kind)
}

func (p Plan) maxID() int {
	m := 0
	for _, s := range p.Steps {
		if s.ID > m {
			m = s.ID
		}
	}
	return m
}

func (p Plan) indexOf(id int) int {
	for i, s := range p.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (p Plan) clone() Plan {
	p.Steps = cloneSteps(p.Steps)
	return p
}

func cloneSteps(steps []flowdeck.PlanStep) []flowdeck.PlanStep {
	if steps == nil {
		return nil
	}
	out := make([]flowdeck.PlanStep, len(steps))
	for i, s := range steps {
		s.Args = cloneArgs(s.Args)
		if s.Dependencies != nil {
			s.Dependencies = append([]int{}, s.Dependencies...)
		}
		out[i] = s
	}
	return out
}

func cloneArgs(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneArgs(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// Step returns the step with the given id.
func (p Plan) Step(id int) (flowdeck.PlanStep, bool) {
	if i := p.indexOf(id); i >= 0 {
		return p.Steps[i], true
	}
	return flowdeck.PlanStep{}, false
}

// AddStep inserts a new step after the step with id *after, or at the end.
// The default tool is the first catalog entry.
func (p Plan) AddStep(after *int, catalog []flowdeck.ToolInfo) (Plan, flowdeck.PlanStep) {
	id := max(p.maxID(), p.HighWater) + 1
	step := flowdeck.PlanStep{
		ID:           id,
		Args:         map[string]any{},
		Dependencies: []int{},
	}
	if len(catalog) > 0 {
		step.Tool = catalog[0].Name
	}

	out := p.clone()
	out.HighWater = id
	pos := len(out.Steps)
	if after != nil {
		if i := out.indexOf(*after); i >= 0 {
			pos = i + 1
		}
	}
	out.Steps = slices.Insert(out.Steps, pos, step)
	return out, step
}

// UpdateStep applies patch to a step. Description and tool always apply.
// Dependencies must name steps declared before this one, and ArgsText must
// parse as a JSON object. A rejected value leaves the previous one in place
// and the returned plan comes with the *flowdeck.SchemaViolation(s)
// describing it; the rest of the patch is still applied.
func (p Plan) UpdateStep(id int, patch StepPatch) (Plan, error) {
	idx := p.indexOf(id)
	if idx < 0 {
		return p, fmt.Errorf("%w: %d", flowdeck.ErrStepNotFound, id)
	}
	out := p.clone()
	step := &out.Steps[idx]

	if patch.Description != nil {
		step.Description = *patch.Description
	}
	if patch.Tool != nil {
		step.Tool = *patch.Tool
	}

	var errs []error
	if patch.Dependencies != nil {
		deps := *patch.Dependencies
		if err := checkDependencies(p.Steps[:idx], id, deps); err != nil {
			errs = append(errs, err)
		} else {
			step.Dependencies = append([]int{}, deps...)
		}
	}

	switch {
	case patch.ArgsText != nil:
		args, err := ParseArgs(*patch.ArgsText)
		if err != nil {
			errs = append(errs, flowdeck.Violationf(stepSubject(id), "args", "%v", err))
		} else {
			step.Args = args
		}
	case patch.Args != nil:
		step.Args = cloneArgs(patch.Args)
	}
	return out, errors.Join(errs...)
}

// checkDependencies reports deps of step id that are not among the steps
// declared before it.
func checkDependencies(earlier []flowdeck.PlanStep, id int, deps []int) error {
	known := make(map[int]bool, len(earlier))
	for _, s := range earlier {
		known[s.ID] = true
	}
	var errs []error
	for _, dep := range deps {
		switch {
		case dep == id:
			errs = append(errs, flowdeck.Violationf(stepSubject(id), "dependencies", "step depends on itself"))
		case !known[dep]:
			errs = append(errs, flowdeck.Violationf(stepSubject(id), "dependencies", "depends on step %d, which is not declared before it", dep))
		}
	}
	return errors.Join(errs...)
}

// ParseArgs parses the text of an args editor. Blank text is an empty object.
func ParseArgs(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(text), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if args == nil {
		return nil, errors.New("args must be a JSON object")
	}
	return args, nil
}

// MoveStep swaps a step with its neighbour. Moving past either end, or an
// unknown id, returns the plan unchanged.
func (p Plan) MoveStep(id int, dir Direction) Plan {
	idx := p.indexOf(id)
	if idx < 0 {
		return p
	}
	j := idx - 1
	if dir == Down {
		j = idx + 1
	}
	if j < 0 || j >= len(p.Steps) {
		return p
	}
	out := p.clone()
	out.Steps[idx], out.Steps[j] = out.Steps[j], out.Steps[idx]
	return out
}

// RemoveStep deletes a step. References to it from other steps are left in
// place and reported back so the caller can warn about them.
func (p Plan) RemoveStep(id int) (Plan, []DanglingRef, error) {
	idx := p.indexOf(id)
	if idx < 0 {
		return p, nil, fmt.Errorf("%w: %d", flowdeck.ErrStepNotFound, id)
	}
	out := p.clone()
	out.Steps = slices.Delete(out.Steps, idx, idx+1)

	var dangling []DanglingRef
	for _, s := range out.Steps {
		if slices.Contains(s.Dependencies, id) {
			dangling = append(dangling, DanglingRef{StepID: s.ID, Ref: id, Kind: "dependency"})
		}
		if slices.Contains(References(s.Args), id) {
			dangling = append(dangling, DanglingRef{StepID: s.ID, Ref: id, Kind: "template"})
		}
	}
	return out, dangling, nil
}

// Validate checks the plan invariants. Tool names are only checked against
// a non-empty catalog. All violations are returned joined.
func (p Plan) Validate(catalog []flowdeck.ToolInfo) error {
	return ValidateSteps(p.Steps, catalog)
}

// ValidateSteps checks ids are positive and unique, tools are known,
// dependencies and template references point at earlier steps.
func ValidateSteps(steps []flowdeck.PlanStep, catalog []flowdeck.ToolInfo) error {
	var errs []error
	earlier := make(map[int]bool, len(steps))
	seen := make(map[int]bool, len(steps))
	for _, id := range stepIDs(steps) {
		seen[id] = true
	}

	for _, s := range steps {
		subject := stepSubject(s.ID)
		if s.ID <= 0 {
			errs = append(errs, flowdeck.Violationf(subject, "id", "must be a positive integer"))
		}
		if earlier[s.ID] {
			errs = append(errs, flowdeck.Violationf(subject, "id", "duplicate step id"))
		}
		if s.Tool == "" {
			errs = append(errs, flowdeck.Violationf(subject, "tool", "tool is required"))
		} else if len(catalog) > 0 {
			if _, ok := flowdeck.FindTool(catalog, s.Tool); !ok {
				errs = append(errs, flowdeck.Violationf(subject, "tool", "unknown tool %q", s.Tool))
			}
		}
		for _, dep := range s.Dependencies {
			switch {
			case dep == s.ID:
				errs = append(errs, flowdeck.Violationf(subject, "dependencies", "step depends on itself"))
			case !seen[dep]:
				errs = append(errs, flowdeck.Violationf(subject, "dependencies", "depends on missing step %d", dep))
			case !earlier[dep]:
				errs = append(errs, flowdeck.Violationf(subject, "dependencies", "depends on later step %d", dep))
			}
		}
		for _, ref := range References(s.Args) {
			if !earlier[ref] {
				errs = append(errs, flowdeck.Violationf(subject, "args",
					"placeholder {{step_%d_result}} must reference an earlier step", ref))
			}
		}
		earlier[s.ID] = true
	}
	return errors.Join(errs...)
}

func stepIDs(steps []flowdeck.PlanStep) []int {
	ids := make([]int, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	sort.Ints(ids)
	return ids
}

func stepSubject(id int) string { return fmt.Sprintf("step %d", id) }

// Submission returns the body posted to the executor.
func (p Plan) Submission(flowID string) flowdeck.Submission {
	steps := cloneSteps(p.Steps)
	for i := range steps {
		if steps[i].Args == nil {
			steps[i].Args = map[string]any{}
		}
		if steps[i].Dependencies == nil {
			steps[i].Dependencies = []int{}
		}
	}
	return flowdeck.Submission{GoalSummary: p.GoalSummary, Plan: steps, FlowID: flowID}
}

// DecodeSubmission parses a submission body.
func DecodeSubmission(data []byte) (flowdeck.Submission, error) {
	var sub flowdeck.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return sub, fmt.Errorf("decode submission: %w", err)
	}
	return sub, nil
}
