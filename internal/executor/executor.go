// Package executor is the in-process reference implementation of the
// execution backend. It serves the same contract as the remote service:
// a tool catalog, plan submission, active-workflow snapshots and a live
// log channel.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soochol/flowdeck/internal/channel"
	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/logging"
	"github.com/soochol/flowdeck/internal/plan"
	"github.com/soochol/flowdeck/internal/repository"
	"github.com/soochol/flowdeck/internal/tools"
	"github.com/soochol/flowdeck/internal/tracker"
)

const (
	defaultRetention = time.Minute
	recentLimit      = 100
)

// ErrWorkflowActive is returned when a flow id is submitted while a run
// under the same id is still in flight.
var ErrWorkflowActive = errors.New("workflow already active")

var (
	_ ports.Executor   = (*Executor)(nil)
	_ ports.LiveSource = (*Executor)(nil)
)

// Executor runs submitted plans step by step in background goroutines.
// Each run owns its record; every transition is saved to the repository
// and announced on the hub.
type Executor struct {
	tools   *tools.Registry
	hub     *channel.Hub
	records repository.ExecutionRepository
	limiter *Limiter
	now     func() time.Time

	// Retention is how long finished records stay in ActiveWorkflows.
	Retention time.Duration

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(registry *tools.Registry, hub *channel.Hub, records repository.ExecutionRepository, limiter *Limiter) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		tools:     registry,
		hub:       hub,
		records:   records,
		limiter:   limiter,
		now:       time.Now,
		Retention: defaultRetention,
		running:   make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ListTools returns the registry's catalog.
func (e *Executor) ListTools(_ context.Context) ([]flowdeck.ToolInfo, error) {
	return e.tools.Catalog(), nil
}

// ActiveWorkflows returns the records still planning or executing, followed
// by those that finished within the retention window so that pollers
// observe the terminal status.
func (e *Executor) ActiveWorkflows(ctx context.Context) ([]flowdeck.ExecutionRecord, error) {
	active, err := e.records.Active(ctx)
	if err != nil {
		return nil, err
	}
	recent, _, err := e.records.List(ctx, recentLimit, 0, "")
	if err != nil {
		return nil, err
	}
	cutoff := e.now().Add(-e.Retention)
	for _, rec := range recent {
		if rec.CompletedAt != nil && rec.CompletedAt.After(cutoff) {
			active = append(active, rec)
		}
	}
	return active, nil
}

// Subscribe opens a live log subscription on the executor's hub.
func (e *Executor) Subscribe(ctx context.Context, flowID string) (ports.Subscription, error) {
	return e.hub.Subscribe(ctx, flowID)
}

// Stats reports limiter usage.
func (e *Executor) Stats() LimiterStats {
	return e.limiter.Stats()
}

// Execute validates the submission, records it and starts the run. It
// returns as soon as the run is accepted.
func (e *Executor) Execute(ctx context.Context, sub flowdeck.Submission) error {
	if sub.FlowID == "" {
		return flowdeck.Violationf("submission", "flowId", "is required")
	}
	if len(sub.Plan) == 0 {
		return flowdeck.Violationf("submission", "plan", "has no steps")
	}
	if err := plan.ValidateSteps(sub.Plan, e.tools.Catalog()); err != nil {
		return err
	}

	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return fmt.Errorf("executor stopped: %w", e.ctx.Err())
	}
	if _, ok := e.running[sub.FlowID]; ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWorkflowActive, sub.FlowID)
	}
	e.running[sub.FlowID] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	rec := flowdeck.NewExecutionRecord(sub.FlowID, sub.GoalSummary, sub.Plan, e.now())
	if err := e.records.Save(ctx, rec); err != nil {
		slog.WarnContext(ctx, "save execution record failed", "workflow_id", sub.FlowID, "err", err)
	}
	slog.InfoContext(ctx, "workflow accepted", "workflow_id", sub.FlowID, "steps", len(sub.Plan))

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.running, sub.FlowID)
			e.mu.Unlock()
		}()
		e.run(logging.WithFlowID(e.ctx, sub.FlowID), rec)
	}()
	return nil
}

// Shutdown cancels every run and waits for them to record their outcome,
// or until ctx is done.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) run(ctx context.Context, rec flowdeck.ExecutionRecord) {
	id := rec.WorkflowID
	e.hub.Log(id, fmt.Sprintf("WORKFLOW %s started: %s", id, rec.GoalSummary))

	if err := e.limiter.AcquireWorkflow(ctx); err != nil {
		e.finish(ctx, rec, err)
		return
	}
	defer e.limiter.ReleaseWorkflow()

	results := make(map[int]any, len(rec.Plan))
	for {
		eligible := tracker.Eligible(rec)
		if len(eligible) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			e.finish(ctx, rec, err)
			return
		}
		rec = e.runStep(ctx, rec, eligible[0], results)
		if rec.Step(eligible[0]).Status == flowdeck.StepPending {
			e.finish(ctx, rec, fmt.Errorf("step %d could not start", eligible[0]))
			return
		}
	}

	for _, stepID := range tracker.Blocked(rec) {
		e.hub.Log(id, fmt.Sprintf("STEP %d skipped: a dependency failed", stepID))
	}
	e.finish(ctx, rec, nil)
}

func (e *Executor) runStep(ctx context.Context, rec flowdeck.ExecutionRecord, stepID int, results map[int]any) flowdeck.ExecutionRecord {
	ctx = logging.WithStepID(ctx, stepID)
	next, err := tracker.StepTransition(rec, stepID, flowdeck.StepRunning, tracker.StepUpdate{})
	if err != nil {
		slog.ErrorContext(ctx, "start step", "err", err)
		return e.failStep(ctx, rec, stepID, err, 0)
	}
	rec = next
	e.save(ctx, rec)

	step := *rec.Step(stepID)
	e.hub.Publish(flowdeck.LiveEvent{
		FlowID:  rec.WorkflowID,
		Type:    flowdeck.EventStep,
		Message: fmt.Sprintf("STEP %d started: %s (%s)", stepID, step.Description, step.Tool),
	})

	start := time.Now()
	result, err := e.invoke(ctx, step, results)
	elapsed := time.Since(start)
	if err != nil {
		return e.failStep(ctx, rec, stepID, err, elapsed)
	}

	next, err = tracker.StepTransition(rec, stepID, flowdeck.StepCompleted, tracker.StepUpdate{Result: result, Duration: elapsed})
	if err != nil {
		slog.ErrorContext(ctx, "complete step", "err", err)
		return rec
	}
	results[stepID] = result
	e.save(ctx, next)
	e.hub.Log(rec.WorkflowID, fmt.Sprintf("STEP %d SUCCESS (%dms)", stepID, elapsed.Milliseconds()))
	slog.DebugContext(ctx, "step completed", "tool", step.Tool, "duration_ms", elapsed.Milliseconds())
	return next
}

func (e *Executor) invoke(ctx context.Context, step flowdeck.StepExecution, results map[int]any) (any, error) {
	args, err := plan.Substitute(step.Args, results)
	if err != nil {
		return nil, err
	}
	if err := e.limiter.AcquireTool(ctx, step.Tool); err != nil {
		return nil, err
	}
	defer e.limiter.ReleaseTool(step.Tool)
	return e.tools.Execute(ctx, step.Tool, args)
}

func (e *Executor) failStep(ctx context.Context, rec flowdeck.ExecutionRecord, stepID int, cause error, elapsed time.Duration) flowdeck.ExecutionRecord {
	failure := &flowdeck.ExecutionFailure{WorkflowID: rec.WorkflowID, StepID: stepID, Message: cause.Error()}
	slog.WarnContext(ctx, "step failed", "err", failure)

	next, err := tracker.StepTransition(rec, stepID, flowdeck.StepFailed, tracker.StepUpdate{Error: cause.Error(), Duration: elapsed})
	if err != nil {
		// A step that never started cannot fail; the run ends with it pending.
		slog.ErrorContext(ctx, "fail step", "err", err)
		return rec
	}
	e.save(ctx, next)
	e.hub.Log(rec.WorkflowID, fmt.Sprintf("STEP %d FAILED: %v", stepID, cause))
	return next
}

// finish moves rec to its terminal status. cause, when set, fails the run
// regardless of step states.
func (e *Executor) finish(ctx context.Context, rec flowdeck.ExecutionRecord, cause error) {
	final := tracker.DeriveStatus(rec)
	if cause != nil || final != flowdeck.WorkflowCompleted {
		final = flowdeck.WorkflowFailed
	}
	if rec.Status == flowdeck.WorkflowPlanning {
		if next, err := tracker.WorkflowTransition(rec, flowdeck.WorkflowExecuting, e.now()); err == nil {
			rec = next
		}
	}
	next, err := tracker.WorkflowTransition(rec, final, e.now())
	if err != nil {
		slog.ErrorContext(ctx, "finish workflow", "err", err)
		return
	}
	// ctx may already be cancelled on shutdown; the outcome is still recorded.
	e.save(context.WithoutCancel(ctx), next)

	if final == flowdeck.WorkflowCompleted {
		e.hub.Publish(flowdeck.LiveEvent{
			FlowID:  rec.WorkflowID,
			Type:    flowdeck.EventComplete,
			Message: fmt.Sprintf("WORKFLOW SUCCESS in %dms", *next.TotalDuration),
		})
		slog.InfoContext(ctx, "workflow completed", "duration_ms", *next.TotalDuration)
		return
	}
	msg := "WORKFLOW FAILED"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	e.hub.Publish(flowdeck.LiveEvent{FlowID: rec.WorkflowID, Type: flowdeck.EventError, Message: msg})
	slog.WarnContext(ctx, "workflow failed", "err", cause)
}

func (e *Executor) save(ctx context.Context, rec flowdeck.ExecutionRecord) {
	if err := e.records.Save(ctx, rec); err != nil {
		slog.WarnContext(ctx, "save execution record failed", "err", err)
	}
}
