package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/form"
	"github.com/soochol/flowdeck/internal/graph"
	"github.com/soochol/flowdeck/internal/plan"
	"github.com/soochol/flowdeck/internal/repository"
)

// ErrGenerationUnavailable is returned by GeneratePlan when no plan
// generator is configured.
var ErrGenerationUnavailable = errors.New("plan generation unavailable")

// BuilderService is the builder shell: it keeps graph and plan drafts,
// applies edits as pure transitions stored back into the repository,
// validates and submits plans, and starts tracking submitted flows.
type BuilderService struct {
	catalog   *CatalogService
	graphs    repository.DraftRepository[repository.GraphDraft]
	plans     repository.DraftRepository[repository.PlanDraft]
	generator ports.PlanGenerator
	submitter ports.ExecutionSubmitter
	snapshots ports.SnapshotSource
	tracking  *TrackingService
	now       func() time.Time
}

func NewBuilderService(
	catalog *CatalogService,
	graphs repository.DraftRepository[repository.GraphDraft],
	plans repository.DraftRepository[repository.PlanDraft],
	generator ports.PlanGenerator,
	submitter ports.ExecutionSubmitter,
	snapshots ports.SnapshotSource,
	tracking *TrackingService,
) *BuilderService {
	return &BuilderService{
		catalog:   catalog,
		graphs:    graphs,
		plans:     plans,
		generator: generator,
		submitter: submitter,
		snapshots: snapshots,
		tracking:  tracking,
		now:       time.Now,
	}
}

// Overview is what the builder loads when it opens.
type Overview struct {
	NodeTypes []flowdeck.NodeDefinition  `json:"nodeTypes"`
	Tools     []flowdeck.ToolInfo        `json:"tools"`
	Active    []flowdeck.ExecutionRecord `json:"active"`
	// Degraded lists the sources that could not be loaded.
	Degraded []string `json:"degraded,omitempty"`
}

// Open loads the tool catalog and the active workflows concurrently.
// Either source failing degrades the overview instead of failing it.
func (s *BuilderService) Open(ctx context.Context) (Overview, error) {
	var (
		tools      []flowdeck.ToolInfo
		active     []flowdeck.ExecutionRecord
		catalogErr error
		activeErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tools, catalogErr = s.catalog.Refresh(gctx)
		return nil
	})
	g.Go(func() error {
		active, activeErr = s.snapshots.ActiveWorkflows(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	if err := ctx.Err(); err != nil {
		return Overview{}, err
	}

	ov := Overview{
		NodeTypes: s.catalog.Registry().List(),
		Tools:     tools,
		Active:    active,
	}
	if catalogErr != nil {
		slog.WarnContext(ctx, "builder opened without tool catalog", "err", catalogErr)
		ov.Degraded = append(ov.Degraded, "tools")
	}
	if activeErr != nil {
		slog.WarnContext(ctx, "builder opened without active workflows", "err", activeErr)
		ov.Degraded = append(ov.Degraded, "active")
	}
	if ov.Tools == nil {
		ov.Tools = []flowdeck.ToolInfo{}
	}
	if ov.Active == nil {
		ov.Active = []flowdeck.ExecutionRecord{}
	}
	return ov, nil
}

// --- graph drafts ---

func (s *BuilderService) CreateGraph(ctx context.Context, name string) (repository.GraphDraft, error) {
	d := repository.GraphDraft{
		ID:        flowdeck.GenerateID("graph"),
		Name:      name,
		Graph:     graph.Graph{Nodes: []flowdeck.NodeInstance{}, Edges: []flowdeck.Edge{}},
		UpdatedAt: s.now(),
	}
	if err := s.graphs.Create(ctx, d); err != nil {
		return repository.GraphDraft{}, err
	}
	return d, nil
}

func (s *BuilderService) Graph(ctx context.Context, id string) (repository.GraphDraft, error) {
	return s.graphs.Get(ctx, id)
}

func (s *BuilderService) ListGraphs(ctx context.Context) ([]repository.GraphDraft, error) {
	return s.graphs.List(ctx)
}

func (s *BuilderService) DeleteGraph(ctx context.Context, id string) error {
	return s.graphs.Delete(ctx, id)
}

// EditGraph applies fn to the draft's graph and stores the result. When fn
// fails the draft is left unchanged.
func (s *BuilderService) EditGraph(ctx context.Context, id string, fn func(graph.Graph) (graph.Graph, error)) (repository.GraphDraft, error) {
	return s.graphs.Update(ctx, id, func(d repository.GraphDraft) (repository.GraphDraft, error) {
		g, err := fn(d.Graph)
		if err != nil {
			return d, err
		}
		d.Graph = g
		d.UpdatedAt = s.now()
		return d, nil
	})
}

func (s *BuilderService) AddNode(ctx context.Context, id string, t flowdeck.NodeType, pos flowdeck.Position) (repository.GraphDraft, flowdeck.NodeInstance, error) {
	var node flowdeck.NodeInstance
	d, err := s.EditGraph(ctx, id, func(g graph.Graph) (graph.Graph, error) {
		out, n, err := g.AddNode(s.catalog.Registry(), t, pos)
		node = n
		return out, err
	})
	return d, node, err
}

func (s *BuilderService) Connect(ctx context.Context, id string, c flowdeck.Connection) (repository.GraphDraft, flowdeck.Edge, error) {
	var edge flowdeck.Edge
	d, err := s.EditGraph(ctx, id, func(g graph.Graph) (graph.Graph, error) {
		out, e, err := g.Connect(s.catalog.Registry(), c)
		edge = e
		return out, err
	})
	return d, edge, err
}

func (s *BuilderService) RemoveNode(ctx context.Context, id, nodeID string) (repository.GraphDraft, error) {
	return s.EditGraph(ctx, id, func(g graph.Graph) (graph.Graph, error) { return g.RemoveNode(nodeID) })
}

func (s *BuilderService) RemoveEdge(ctx context.Context, id, edgeID string) (repository.GraphDraft, error) {
	return s.EditGraph(ctx, id, func(g graph.Graph) (graph.Graph, error) { return g.RemoveEdge(edgeID) })
}

func (s *BuilderService) MoveNode(ctx context.Context, id, nodeID string, pos flowdeck.Position) (repository.GraphDraft, error) {
	return s.EditGraph(ctx, id, func(g graph.Graph) (graph.Graph, error) { return g.MoveNode(nodeID, pos) })
}

func (s *BuilderService) UpdateNodeField(ctx context.Context, id, nodeID, field string, value any) (repository.GraphDraft, error) {
	return s.EditGraph(ctx, id, func(g graph.Graph) (graph.Graph, error) { return g.UpdateNodeField(nodeID, field, value) })
}

func (s *BuilderService) UpdateNodeData(ctx context.Context, id, nodeID string, patch map[string]any) (repository.GraphDraft, error) {
	return s.EditGraph(ctx, id, func(g graph.Graph) (graph.Graph, error) { return g.UpdateNodeData(nodeID, patch) })
}

// NodeForm resolves the property form of one node in a graph draft.
func (s *BuilderService) NodeForm(ctx context.Context, id, nodeID string) (form.Form, error) {
	d, err := s.graphs.Get(ctx, id)
	if err != nil {
		return form.Form{}, err
	}
	node, ok := d.Graph.Node(nodeID)
	if !ok {
		return form.Form{}, fmt.Errorf("%w: %s", flowdeck.ErrNodeNotFound, nodeID)
	}
	return form.ResolveForm(s.catalog.Registry(), node, s.catalog.Tools(ctx)), nil
}

// CheckGraph validates every node's visible fields and the graph's
// acyclicity. It returns the topological order when the graph is valid.
func (s *BuilderService) CheckGraph(ctx context.Context, id string) ([]string, error) {
	d, err := s.graphs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tools := s.catalog.Tools(ctx)
	err = d.Graph.Check(s.catalog.Registry(), func(n flowdeck.NodeInstance, def flowdeck.NodeDefinition) error {
		return form.Validate(n, def, tools)
	})
	if err != nil {
		return nil, err
	}
	return d.Graph.Order()
}

// --- plan drafts ---

func (s *BuilderService) CreatePlan(ctx context.Context, goal string, steps []flowdeck.PlanStep) (repository.PlanDraft, error) {
	d := repository.PlanDraft{
		ID:        flowdeck.GenerateID("plan"),
		Plan:      plan.New(goal, steps),
		UpdatedAt: s.now(),
	}
	if err := s.plans.Create(ctx, d); err != nil {
		return repository.PlanDraft{}, err
	}
	return d, nil
}

func (s *BuilderService) Plan(ctx context.Context, id string) (repository.PlanDraft, error) {
	return s.plans.Get(ctx, id)
}

func (s *BuilderService) ListPlans(ctx context.Context) ([]repository.PlanDraft, error) {
	return s.plans.List(ctx)
}

func (s *BuilderService) DeletePlan(ctx context.Context, id string) error {
	return s.plans.Delete(ctx, id)
}

func (s *BuilderService) editPlan(ctx context.Context, id string, fn func(plan.Plan) (plan.Plan, error)) (repository.PlanDraft, error) {
	return s.plans.Update(ctx, id, func(d repository.PlanDraft) (repository.PlanDraft, error) {
		p, err := fn(d.Plan)
		if err != nil {
			return d, err
		}
		d.Plan = p
		d.UpdatedAt = s.now()
		return d, nil
	})
}

// SetGoal replaces the plan's goal summary.
func (s *BuilderService) SetGoal(ctx context.Context, id, goal string) (repository.PlanDraft, error) {
	return s.editPlan(ctx, id, func(p plan.Plan) (plan.Plan, error) {
		p.GoalSummary = goal
		return p, nil
	})
}

func (s *BuilderService) AddStep(ctx context.Context, id string, after *int) (repository.PlanDraft, flowdeck.PlanStep, error) {
	tools := s.catalog.Tools(ctx)
	var step flowdeck.PlanStep
	d, err := s.editPlan(ctx, id, func(p plan.Plan) (plan.Plan, error) {
		out, st := p.AddStep(after, tools)
		step = st
		return out, nil
	})
	return d, step, err
}

// UpdateStep applies patch. A patch whose args text does not parse, or
// whose dependencies are not earlier steps, still stores its other fields;
// the returned error then carries the violations alongside the updated
// draft.
func (s *BuilderService) UpdateStep(ctx context.Context, id string, stepID int, patch plan.StepPatch) (repository.PlanDraft, error) {
	var violation error
	d, err := s.editPlan(ctx, id, func(p plan.Plan) (plan.Plan, error) {
		out, err := p.UpdateStep(stepID, patch)
		if errors.Is(err, flowdeck.ErrSchemaViolation) {
			violation = err
			return out, nil
		}
		return out, err
	})
	if err != nil {
		return d, err
	}
	return d, violation
}

func (s *BuilderService) MoveStep(ctx context.Context, id string, stepID int, dir plan.Direction) (repository.PlanDraft, error) {
	return s.editPlan(ctx, id, func(p plan.Plan) (plan.Plan, error) { return p.MoveStep(stepID, dir), nil })
}

// RemoveStep deletes a step without repairing references to it; the
// references left dangling are returned as warnings.
func (s *BuilderService) RemoveStep(ctx context.Context, id string, stepID int) (repository.PlanDraft, []plan.DanglingRef, error) {
	var dangling []plan.DanglingRef
	d, err := s.editPlan(ctx, id, func(p plan.Plan) (plan.Plan, error) {
		out, refs, err := p.RemoveStep(stepID)
		dangling = refs
		return out, err
	})
	return d, dangling, err
}

// ValidatePlan checks the draft against the current tool catalog.
func (s *BuilderService) ValidatePlan(ctx context.Context, id string) error {
	d, err := s.plans.Get(ctx, id)
	if err != nil {
		return err
	}
	return d.Plan.Validate(s.catalog.Tools(ctx))
}

// GeneratePlan asks the generator for a plan and stores it as a new draft.
// The reply is untrusted: it is validated against the catalog first.
func (s *BuilderService) GeneratePlan(ctx context.Context, message string) (repository.PlanDraft, error) {
	if s.generator == nil {
		return repository.PlanDraft{}, ErrGenerationUnavailable
	}
	if message == "" {
		return repository.PlanDraft{}, flowdeck.Violationf("request", "message", "is required")
	}
	gp, err := s.generator.GeneratePlan(ctx, message)
	if err != nil {
		return repository.PlanDraft{}, fmt.Errorf("generate plan: %w", err)
	}
	if err := plan.ValidateSteps(gp.Plan, s.catalog.Tools(ctx)); err != nil {
		return repository.PlanDraft{}, err
	}
	slog.InfoContext(ctx, "plan generated", "steps", len(gp.Plan))
	return s.CreatePlan(ctx, gp.GoalSummary, gp.Plan)
}

// Submit validates the draft, starts tracking a new flow id and hands the
// plan to the executor. Tracking starts first so that no early log line is
// missed; it is released again when the submission is refused.
func (s *BuilderService) Submit(ctx context.Context, id string) (string, error) {
	d, err := s.plans.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if len(d.Plan.Steps) == 0 {
		return "", flowdeck.Violationf("plan", "steps", "plan has no steps")
	}
	if err := d.Plan.Validate(s.catalog.Tools(ctx)); err != nil {
		return "", err
	}

	flowID := flowdeck.GenerateID("flow")
	if _, err := s.tracking.Track(ctx, flowID); err != nil {
		return "", fmt.Errorf("start tracking: %w", err)
	}
	if err := s.submitter.Execute(ctx, d.Plan.Submission(flowID)); err != nil {
		s.tracking.Release(flowID)
		return "", fmt.Errorf("submit plan: %w", err)
	}
	slog.InfoContext(ctx, "plan submitted", "plan_id", id, "flow_id", flowID, "steps", len(d.Plan.Steps))
	return flowID, nil
}
