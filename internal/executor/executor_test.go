package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowdeck/internal/channel"
	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/repository"
	"github.com/soochol/flowdeck/internal/tools"
)

// funcTool adapts a function to tools.Tool.
type funcTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (any, error)
}

func (f *funcTool) Name() string                  { return f.name }
func (f *funcTool) Description() string           { return f.name }
func (f *funcTool) Parameters() map[string]string { return map[string]string{"value": "string"} }
func (f *funcTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.fn(ctx, args)
}

type fixture struct {
	exec    *Executor
	hub     *channel.Hub
	records *repository.MemoryExecutionRepository
}

func newFixture(t *testing.T, extra ...tools.Tool) fixture {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(&funcTool{name: "echo", fn: func(_ context.Context, args map[string]any) (any, error) {
		return args["value"], nil
	}})
	reg.Register(&funcTool{name: "boom", fn: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	}})
	for _, tl := range extra {
		reg.Register(tl)
	}
	hub := channel.NewHub()
	records := repository.NewMemoryExecutionRepository()
	exec := New(reg, hub, records, NewLimiter(Limits{GlobalMax: 2, PerTool: 1}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = exec.Shutdown(ctx)
		hub.Close()
	})
	return fixture{exec: exec, hub: hub, records: records}
}

func (f fixture) waitTerminal(t *testing.T, id string) flowdeck.ExecutionRecord {
	t.Helper()
	var rec flowdeck.ExecutionRecord
	require.Eventually(t, func() bool {
		r, err := f.records.Get(context.Background(), id)
		if err != nil {
			return false
		}
		rec = r
		return r.Status == flowdeck.WorkflowCompleted || r.Status == flowdeck.WorkflowFailed
	}, 2*time.Second, 5*time.Millisecond)
	return rec
}

func TestExecute_RunsStepsAndSubstitutesResults(t *testing.T) {
	f := newFixture(t)
	sub, err := f.hub.Subscribe(context.Background(), "wf-1")
	require.NoError(t, err)
	defer sub.Close()

	err = f.exec.Execute(context.Background(), flowdeck.Submission{
		FlowID:      "wf-1",
		GoalSummary: "echo twice",
		Plan: []flowdeck.PlanStep{
			{ID: 1, Tool: "echo", Args: map[string]any{"value": "hello"}, Dependencies: []int{}},
			{ID: 2, Tool: "echo", Args: map[string]any{"value": "got {{step_1_result}}"}, Dependencies: []int{1}},
		},
	})
	require.NoError(t, err)

	rec := f.waitTerminal(t, "wf-1")
	assert.Equal(t, flowdeck.WorkflowCompleted, rec.Status)
	assert.Equal(t, "hello", rec.Step(1).Result)
	assert.Equal(t, "got hello", rec.Step(2).Result)
	require.NotNil(t, rec.TotalDuration)
	require.NotNil(t, rec.Step(2).Duration)

	var messages []string
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case ev := <-sub.Events():
			messages = append(messages, ev.Message)
			done = ev.Type == flowdeck.EventComplete
		case <-timeout:
			t.Fatalf("no completion event, got %v", messages)
		}
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, "STEP 1 SUCCESS")
	assert.Contains(t, joined, "STEP 2 SUCCESS")

	active, err := f.exec.ActiveWorkflows(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1, "recently finished runs stay visible to pollers")
	assert.Equal(t, flowdeck.WorkflowCompleted, active[0].Status)

	f.exec.Retention = 0
	active, err = f.exec.ActiveWorkflows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestExecute_FailedStepBlocksDependents(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.exec.Execute(context.Background(), flowdeck.Submission{
		FlowID: "wf-2",
		Plan: []flowdeck.PlanStep{
			{ID: 1, Tool: "boom", Args: map[string]any{}},
			{ID: 2, Tool: "echo", Args: map[string]any{"value": "{{step_1_result}}"}, Dependencies: []int{1}},
			{ID: 3, Tool: "echo", Args: map[string]any{"value": "independent"}},
		},
	}))

	rec := f.waitTerminal(t, "wf-2")
	assert.Equal(t, flowdeck.WorkflowFailed, rec.Status)
	assert.Equal(t, flowdeck.StepFailed, rec.Step(1).Status)
	assert.Contains(t, rec.Step(1).Error, "kaboom")
	assert.Equal(t, flowdeck.StepPending, rec.Step(2).Status)
	assert.Equal(t, flowdeck.StepCompleted, rec.Step(3).Status)
}

func TestExecute_RejectsInvalidSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.exec.Execute(ctx, flowdeck.Submission{Plan: []flowdeck.PlanStep{{ID: 1, Tool: "echo"}}})
	assert.ErrorIs(t, err, flowdeck.ErrSchemaViolation)

	err = f.exec.Execute(ctx, flowdeck.Submission{FlowID: "x"})
	assert.ErrorIs(t, err, flowdeck.ErrSchemaViolation)

	err = f.exec.Execute(ctx, flowdeck.Submission{FlowID: "x", Plan: []flowdeck.PlanStep{{ID: 1, Tool: "nope"}}})
	assert.ErrorIs(t, err, flowdeck.ErrSchemaViolation)

	_, err = f.records.Get(ctx, "x")
	assert.ErrorIs(t, err, flowdeck.ErrNotFound, "rejected submissions leave no record")
}

func TestExecute_DuplicateActiveFlow(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, &funcTool{name: "wait", fn: func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-gate:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})
	sub := flowdeck.Submission{FlowID: "wf-3", Plan: []flowdeck.PlanStep{{ID: 1, Tool: "wait"}}}
	require.NoError(t, f.exec.Execute(context.Background(), sub))

	err := f.exec.Execute(context.Background(), sub)
	assert.ErrorIs(t, err, ErrWorkflowActive)

	close(gate)
	rec := f.waitTerminal(t, "wf-3")
	assert.Equal(t, flowdeck.WorkflowCompleted, rec.Status)

	require.Eventually(t, func() bool {
		return f.exec.Execute(context.Background(), sub) == nil
	}, time.Second, 5*time.Millisecond, "finished flow ids can be submitted again")
}

func TestShutdown_FailsInFlightRuns(t *testing.T) {
	f := newFixture(t, &funcTool{name: "wait", fn: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	require.NoError(t, f.exec.Execute(context.Background(), flowdeck.Submission{
		FlowID: "wf-4", Plan: []flowdeck.PlanStep{{ID: 1, Tool: "wait"}, {ID: 2, Tool: "echo"}},
	}))
	require.Eventually(t, func() bool {
		r, _ := f.records.Get(context.Background(), "wf-4")
		return r.Step(1) != nil && r.Step(1).Status == flowdeck.StepRunning
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.exec.Shutdown(ctx))

	rec, err := f.records.Get(context.Background(), "wf-4")
	require.NoError(t, err)
	assert.Equal(t, flowdeck.WorkflowFailed, rec.Status)
	assert.Equal(t, flowdeck.StepFailed, rec.Step(1).Status)

	err = f.exec.Execute(context.Background(), flowdeck.Submission{FlowID: "wf-5", Plan: []flowdeck.PlanStep{{ID: 1, Tool: "echo"}}})
	assert.Error(t, err)
}
