package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowdeck/internal/channel"
	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/nodetypes"
	"github.com/soochol/flowdeck/internal/plan"
	"github.com/soochol/flowdeck/internal/repository"
	"github.com/soochol/flowdeck/internal/tracker"
)

type fakeCatalog struct {
	calls atomic.Int32
	tools []flowdeck.ToolInfo
	err   error
	gate  chan struct{}
}

func (f *fakeCatalog) ListTools(ctx context.Context) ([]flowdeck.ToolInfo, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.tools, f.err
}

type fakeExecutor struct {
	mu      sync.Mutex
	subs    []flowdeck.Submission
	err     error
	records []flowdeck.ExecutionRecord
}

func (f *fakeExecutor) Execute(_ context.Context, sub flowdeck.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeExecutor) ActiveWorkflows(context.Context) ([]flowdeck.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, f.err
}

type fakeGenerator struct {
	plan *flowdeck.GeneratedPlan
	err  error
}

func (f *fakeGenerator) GeneratePlan(context.Context, string) (*flowdeck.GeneratedPlan, error) {
	return f.plan, f.err
}

var testTools = []flowdeck.ToolInfo{
	{Name: "fetchUrl", Parameters: map[string]string{"url": "string"}},
	{Name: "summarize", Parameters: map[string]string{"text": "string"}},
}

type builderFixture struct {
	svc      *BuilderService
	catalog  *fakeCatalog
	exec     *fakeExecutor
	tracking *TrackingService
}

func newBuilder(t *testing.T, gen *fakeGenerator) builderFixture {
	t.Helper()
	cat := &fakeCatalog{tools: testTools}
	exec := &fakeExecutor{}
	hub := channel.NewHub()
	tracking := NewTrackingService(hub, exec, tracker.Options{PollInterval: 10 * time.Millisecond}, time.Minute)
	t.Cleanup(func() {
		tracking.Close()
		hub.Close()
	})
	catalog := NewCatalogService(cat, nodetypes.NewRegistry(), time.Minute)
	var generator ports.PlanGenerator
	if gen != nil {
		generator = gen
	}
	svc := NewBuilderService(catalog, repository.NewGraphDrafts(), repository.NewPlanDrafts(), generator, exec, exec, tracking)
	return builderFixture{svc: svc, catalog: cat, exec: exec, tracking: tracking}
}

func TestCatalogService_SharesConcurrentRefresh(t *testing.T) {
	cat := &fakeCatalog{tools: testTools, gate: make(chan struct{})}
	svc := NewCatalogService(cat, nodetypes.NewRegistry(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Refresh(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(cat.gate)
	wg.Wait()

	assert.EqualValues(t, 1, cat.calls.Load())
	assert.Len(t, svc.Tools(context.Background()), 2, "expected cached catalog")
	assert.EqualValues(t, 1, cat.calls.Load(), "fresh catalog must not refetch")
}

func TestCatalogService_DegradesOnFailure(t *testing.T) {
	cat := &fakeCatalog{err: errors.New("connection refused")}
	svc := NewCatalogService(cat, nodetypes.NewRegistry(), time.Minute)

	tools, err := svc.Refresh(context.Background())
	require.ErrorIs(t, err, flowdeck.ErrCatalogUnavailable)
	assert.Empty(t, tools)
	assert.Empty(t, svc.Tools(context.Background()))
}

func TestBuilder_OpenDegrades(t *testing.T) {
	f := newBuilder(t, nil)
	f.catalog.err = errors.New("down")

	ov, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, ov.NodeTypes)
	assert.Equal(t, []string{"tools"}, ov.Degraded)
}

func TestBuilder_GraphEdits(t *testing.T) {
	f := newBuilder(t, nil)
	ctx := context.Background()

	d, err := f.svc.CreateGraph(ctx, "demo")
	require.NoError(t, err)
	_, trig, err := f.svc.AddNode(ctx, d.ID, flowdeck.NodeTypeTrigger, flowdeck.Position{})
	require.NoError(t, err)
	_, act, err := f.svc.AddNode(ctx, d.ID, flowdeck.NodeTypeAction, flowdeck.Position{X: 200})
	require.NoError(t, err)
	_, _, err = f.svc.Connect(ctx, d.ID, flowdeck.Connection{
		Source: flowdeck.Endpoint{NodeID: trig.ID, PortID: "output"},
		Target: flowdeck.Endpoint{NodeID: act.ID, PortID: "input"},
	})
	require.NoError(t, err)

	// A rejected edit leaves the stored draft untouched.
	_, _, err = f.svc.Connect(ctx, d.ID, flowdeck.Connection{
		Source: flowdeck.Endpoint{NodeID: act.ID, PortID: "output"},
		Target: flowdeck.Endpoint{NodeID: act.ID, PortID: "input"},
	})
	require.ErrorIs(t, err, flowdeck.ErrSchemaViolation)
	stored, _ := f.svc.Graph(ctx, d.ID)
	require.Len(t, stored.Graph.Edges, 1)

	order, err := f.svc.CheckGraph(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, trig.ID, order[0])

	fm, err := f.svc.NodeForm(ctx, d.ID, act.ID)
	require.NoError(t, err)
	for _, fld := range fm.Fields {
		assert.NotEqual(t, "amount", fld.Name, "amount must be hidden for http actions")
	}

	d, err = f.svc.RemoveNode(ctx, d.ID, trig.ID)
	require.NoError(t, err)
	assert.Empty(t, d.Graph.Edges, "remove should cascade edges")
	assert.Len(t, d.Graph.Nodes, 1)
}

func TestBuilder_UpdateStepKeepsOtherFieldsOnBadArgs(t *testing.T) {
	f := newBuilder(t, nil)
	ctx := context.Background()

	d, _ := f.svc.CreatePlan(ctx, "goal", nil)
	_, step, err := f.svc.AddStep(ctx, d.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "fetchUrl", step.Tool, "new step should default to the first tool")

	desc, bad := "fetch it", "{not json"
	got, err := f.svc.UpdateStep(ctx, d.ID, step.ID, plan.StepPatch{Description: &desc, ArgsText: &bad})
	require.ErrorIs(t, err, flowdeck.ErrSchemaViolation)
	assert.Equal(t, "fetch it", got.Plan.Steps[0].Description)
	stored, _ := f.svc.Plan(ctx, d.ID)
	assert.Equal(t, "fetch it", stored.Plan.Steps[0].Description, "description should be stored despite bad args")
}

func TestBuilder_RemoveStepReportsDangling(t *testing.T) {
	f := newBuilder(t, nil)
	ctx := context.Background()

	d, _ := f.svc.CreatePlan(ctx, "goal", []flowdeck.PlanStep{
		{ID: 1, Tool: "fetchUrl", Args: map[string]any{"url": "https://x"}},
		{ID: 2, Tool: "summarize", Args: map[string]any{"text": "{{step_1_result}}"}, Dependencies: []int{1}},
	})
	d, refs, err := f.svc.RemoveStep(ctx, d.ID, 1)
	require.NoError(t, err)
	assert.Len(t, d.Plan.Steps, 1)
	assert.Len(t, refs, 2)
	assert.Error(t, f.svc.ValidatePlan(ctx, d.ID), "dangling references must fail validation")
}

func TestBuilder_GeneratePlan(t *testing.T) {
	good := &flowdeck.GeneratedPlan{GoalSummary: "news", Plan: []flowdeck.PlanStep{{ID: 1, Tool: "fetchUrl", Args: map[string]any{}}}}
	f := newBuilder(t, &fakeGenerator{plan: good})
	d, err := f.svc.GeneratePlan(context.Background(), "get the news")
	require.NoError(t, err)
	assert.Equal(t, "news", d.Plan.GoalSummary)
	assert.Len(t, d.Plan.Steps, 1)

	bad := &flowdeck.GeneratedPlan{Plan: []flowdeck.PlanStep{{ID: 1, Tool: "launchRocket"}}}
	f = newBuilder(t, &fakeGenerator{plan: bad})
	_, err = f.svc.GeneratePlan(context.Background(), "go")
	assert.ErrorIs(t, err, flowdeck.ErrSchemaViolation, "unknown tool should be rejected")

	f = newBuilder(t, nil)
	_, err = f.svc.GeneratePlan(context.Background(), "go")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestBuilder_SubmitStartsTracking(t *testing.T) {
	f := newBuilder(t, nil)
	ctx := context.Background()

	d, _ := f.svc.CreatePlan(ctx, "goal", []flowdeck.PlanStep{{ID: 1, Tool: "fetchUrl"}})
	flowID, err := f.svc.Submit(ctx, d.ID)
	require.NoError(t, err)
	f.exec.mu.Lock()
	subs := f.exec.subs
	f.exec.mu.Unlock()
	require.Len(t, subs, 1)
	assert.Equal(t, flowID, subs[0].FlowID)
	assert.NotNil(t, subs[0].Plan[0].Args, "submission must carry empty args, not null")
	assert.NotNil(t, subs[0].Plan[0].Dependencies, "submission must carry empty dependencies, not null")
	_, ok := f.tracking.Tracker(flowID)
	assert.True(t, ok, "expected a tracker for the submitted flow")

	f.exec.mu.Lock()
	f.exec.err = errors.New("executor down")
	f.exec.mu.Unlock()
	_, err = f.svc.Submit(ctx, d.ID)
	require.Error(t, err)
	assert.Len(t, f.tracking.Flows(), 1, "refused submissions must not stay tracked")
}

func TestBuilder_SubmitRejectsInvalidPlan(t *testing.T) {
	f := newBuilder(t, nil)
	ctx := context.Background()

	d, _ := f.svc.CreatePlan(ctx, "goal", []flowdeck.PlanStep{{ID: 1, Tool: "unknownTool"}})
	_, err := f.svc.Submit(ctx, d.ID)
	require.ErrorIs(t, err, flowdeck.ErrSchemaViolation)
	empty, _ := f.svc.CreatePlan(ctx, "goal", nil)
	_, err = f.svc.Submit(ctx, empty.ID)
	require.ErrorIs(t, err, flowdeck.ErrSchemaViolation, "empty plan")
	assert.Empty(t, f.exec.subs, "invalid plans must not reach the executor")
}

func TestTrackingService_SnapshotAndExpiry(t *testing.T) {
	exec := &fakeExecutor{}
	hub := channel.NewHub()
	defer hub.Close()
	svc := NewTrackingService(hub, exec, tracker.Options{PollInterval: 5 * time.Millisecond}, time.Second)
	defer svc.Close()

	_, err := svc.Snapshot("nope")
	require.ErrorIs(t, err, flowdeck.ErrNotFound)

	rec := flowdeck.NewExecutionRecord("flow-1", "g", []flowdeck.PlanStep{{ID: 1, Tool: "fetchUrl"}}, time.Now())
	exec.mu.Lock()
	exec.records = []flowdeck.ExecutionRecord{rec}
	exec.mu.Unlock()

	_, err = svc.Track(context.Background(), "flow-1")
	require.NoError(t, err)
	var snap FlowSnapshot
	require.Eventually(t, func() bool {
		snap, _ = svc.Snapshot("flow-1")
		return snap.Record != nil && hub.Subscribers("flow-1") == 1
	}, time.Second, 5*time.Millisecond, "expected a polled record")
	assert.Equal(t, []int{1}, snap.Eligible)

	hub.Log("flow-1", "STEP 1 started")
	require.Eventually(t, func() bool {
		snap, _ = svc.Snapshot("flow-1")
		return len(snap.Logs) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, snap.Watchers, "snapshots read logs without waiting on them")

	// Finished flows are dropped once they stayed terminal past the TTL.
	done := rec.Clone()
	done.Status = flowdeck.WorkflowCompleted
	exec.mu.Lock()
	exec.records = []flowdeck.ExecutionRecord{done}
	exec.mu.Unlock()
	require.Eventually(t, func() bool {
		r, _ := svc.Snapshot("flow-1")
		return r.Record != nil && r.Record.Status == flowdeck.WorkflowCompleted
	}, time.Second, 5*time.Millisecond)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	now := time.Now()
	svc.collectExpired(now)
	_, ok := svc.Tracker("flow-1")
	require.True(t, ok, "first terminal sighting only starts the TTL")
	svc.collectExpired(now.Add(2 * time.Second))
	_, ok = svc.Tracker("flow-1")
	require.False(t, ok, "expected expired tracker to be released")
	assert.Empty(t, svc.Flows())
	assert.Contains(t, logs.String(), "flow_id=flow-1")
}
