package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowdeck/internal/channel"
	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
)

func scenarioA(now time.Time) flowdeck.ExecutionRecord {
	return flowdeck.NewExecutionRecord("wf-a", "fetch and summarize", []flowdeck.PlanStep{
		{ID: 1, Tool: "fetchUrl", Args: map[string]any{"url": "https://x"}, Dependencies: []int{}},
		{ID: 2, Tool: "summarize", Args: map[string]any{"text": "{{step_1_result}}"}, Dependencies: []int{1}},
	}, now)
}

// scriptedSnapshots returns queued replies; a reply with a gate blocks
// until the gate is closed.
type scriptedSnapshots struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

type reply struct {
	records []flowdeck.ExecutionRecord
	gate    chan struct{}
	err     error
}

func (s *scriptedSnapshots) ActiveWorkflows(ctx context.Context) ([]flowdeck.ExecutionRecord, error) {
	s.mu.Lock()
	var r reply
	if s.calls < len(s.replies) {
		r = s.replies[s.calls]
	} else if len(s.replies) > 0 {
		r = s.replies[len(s.replies)-1]
		r.gate = nil
	}
	s.calls++
	s.mu.Unlock()
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.records, r.err
}

func withStep(rec flowdeck.ExecutionRecord, id int, st flowdeck.StepStatus) flowdeck.ExecutionRecord {
	out := rec.Clone()
	out.Step(id).Status = st
	return out
}

func TestScenarioA_DependentStepWaits(t *testing.T) {
	now := time.Now()
	rec := scenarioA(now)
	assert.Equal(t, flowdeck.WorkflowExecuting, rec.Status)
	assert.Equal(t, []int{1}, Eligible(rec))

	_, err := StepTransition(rec, 2, flowdeck.StepRunning, StepUpdate{})
	assert.True(t, errors.Is(err, flowdeck.ErrInvalidTransition))

	rec, err = StepTransition(rec, 1, flowdeck.StepRunning, StepUpdate{})
	require.NoError(t, err)
	assert.Empty(t, Eligible(rec))
	_, err = StepTransition(rec, 2, flowdeck.StepRunning, StepUpdate{})
	assert.Error(t, err, "step 2 stays pending while step 1 runs")

	rec, err = StepTransition(rec, 1, flowdeck.StepCompleted, StepUpdate{Result: "page", Duration: 40 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "page", rec.Step(1).Result)
	require.NotNil(t, rec.Step(1).Duration)
	assert.Equal(t, int64(40), *rec.Step(1).Duration)
	assert.Equal(t, []int{2}, Eligible(rec))

	rec, err = StepTransition(rec, 2, flowdeck.StepRunning, StepUpdate{})
	require.NoError(t, err)
	rec, err = StepTransition(rec, 2, flowdeck.StepCompleted, StepUpdate{Result: "summary"})
	require.NoError(t, err)
	assert.Equal(t, flowdeck.WorkflowCompleted, DeriveStatus(rec))

	rec, err = WorkflowTransition(rec, flowdeck.WorkflowCompleted, now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, int64(1000), *rec.TotalDuration)
}

func TestStepTransition_Monotonic(t *testing.T) {
	rec := withStep(scenarioA(time.Now()), 1, flowdeck.StepCompleted)
	_, err := StepTransition(rec, 1, flowdeck.StepRunning, StepUpdate{})
	assert.True(t, errors.Is(err, flowdeck.ErrInvalidTransition))
	_, err = StepTransition(rec, 1, flowdeck.StepPending, StepUpdate{})
	assert.Error(t, err)
	_, err = StepTransition(rec, 9, flowdeck.StepRunning, StepUpdate{})
	assert.True(t, errors.Is(err, flowdeck.ErrStepNotFound))

	_, err = WorkflowTransition(rec, flowdeck.WorkflowPlanning, time.Now())
	assert.Error(t, err)
}

func TestBlockedAndDeriveStatus(t *testing.T) {
	rec := flowdeck.NewExecutionRecord("wf", "g", []flowdeck.PlanStep{
		{ID: 1, Tool: "a"},
		{ID: 2, Tool: "b", Dependencies: []int{1}},
		{ID: 3, Tool: "c", Dependencies: []int{2}},
		{ID: 4, Tool: "d"},
	}, time.Now())
	assert.Empty(t, Blocked(rec))
	assert.Equal(t, []int{1, 4}, Eligible(rec))

	rec = withStep(rec, 1, flowdeck.StepFailed)
	assert.Equal(t, []int{2, 3}, Blocked(rec))
	assert.Equal(t, flowdeck.WorkflowExecuting, DeriveStatus(rec), "step 4 can still run")

	rec = withStep(rec, 4, flowdeck.StepRunning)
	assert.Equal(t, flowdeck.WorkflowExecuting, DeriveStatus(rec))

	rec = withStep(rec, 4, flowdeck.StepCompleted)
	assert.Equal(t, flowdeck.WorkflowFailed, DeriveStatus(rec))

	assert.Equal(t, flowdeck.WorkflowPlanning, DeriveStatus(flowdeck.NewExecutionRecord("wf", "g", nil, time.Now())))
}

func TestPollOnce_ReplacesRecords(t *testing.T) {
	base := scenarioA(time.Now())
	running := withStep(base, 1, flowdeck.StepRunning)
	snaps := &scriptedSnapshots{replies: []reply{
		{records: []flowdeck.ExecutionRecord{running}},
		{records: []flowdeck.ExecutionRecord{withStep(running, 1, flowdeck.StepCompleted)}},
	}}
	tr := New(nil, snaps, Options{})

	require.NoError(t, tr.PollOnce(context.Background()))
	got, ok := tr.Record("wf-a")
	require.True(t, ok)
	assert.Equal(t, flowdeck.StepRunning, got.Step(1).Status)

	require.NoError(t, tr.PollOnce(context.Background()))
	got, _ = tr.Record("wf-a")
	assert.Equal(t, flowdeck.StepCompleted, got.Step(1).Status)
}

func TestPollOnce_DropsStaleReply(t *testing.T) {
	base := scenarioA(time.Now())
	gate := make(chan struct{})
	snaps := &scriptedSnapshots{replies: []reply{
		{records: []flowdeck.ExecutionRecord{base}, gate: gate},
		{records: []flowdeck.ExecutionRecord{withStep(base, 1, flowdeck.StepCompleted)}},
	}}
	tr := New(nil, snaps, Options{})

	done := make(chan error, 1)
	go func() { done <- tr.PollOnce(context.Background()) }()
	require.Eventually(t, func() bool {
		snaps.mu.Lock()
		defer snaps.mu.Unlock()
		return snaps.calls == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.PollOnce(context.Background()))
	close(gate)
	require.NoError(t, <-done)

	got, _ := tr.Record("wf-a")
	assert.Equal(t, flowdeck.StepCompleted, got.Step(1).Status, "older reply must not regress status")
}

func TestPollOnce_Error(t *testing.T) {
	snaps := &scriptedSnapshots{replies: []reply{{err: errors.New("boom")}}}
	tr := New(nil, snaps, Options{})
	assert.ErrorContains(t, tr.PollOnce(context.Background()), "boom")
	_, ok := tr.Record("wf-a")
	assert.False(t, ok)
}

func TestTracker_FiltersAndOrdersLogs(t *testing.T) {
	hub := channel.NewHub()
	tr := New(hub, nil, Options{})
	require.NoError(t, tr.Start(context.Background(), "wf-1"))
	defer tr.Stop()
	require.Eventually(t, func() bool { return hub.Subscribers("wf-1") == 1 }, time.Second, 5*time.Millisecond)

	hub.Log("wf-2", "not mine")
	for _, m := range []string{"STEP 1 started", "STEP 1 SUCCESS", "STEP 2 started"} {
		hub.Log("wf-1", m)
	}
	require.Eventually(t, func() bool { return len(tr.Logs("wf-1")) == 3 }, time.Second, 5*time.Millisecond)

	logs := tr.Logs("wf-1")
	assert.Equal(t, "STEP 1 started", logs[0].Message)
	assert.Equal(t, "STEP 2 started", logs[2].Message)
	assert.Equal(t, []int{1, 2, 3}, []int{logs[0].Seq, logs[1].Seq, logs[2].Seq})
	assert.Empty(t, tr.Logs("wf-2"))

	assert.False(t, tr.OnEvent(flowdeck.LiveEvent{FlowID: "wf-2", Message: "direct"}))
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	hub := channel.NewHub()
	snaps := &scriptedSnapshots{}
	tr := New(hub, snaps, Options{PollInterval: 10 * time.Millisecond})

	tr.Stop()
	require.NoError(t, tr.Start(context.Background(), "wf-1"))
	require.Eventually(t, func() bool { return hub.Subscribers("wf-1") == 1 }, time.Second, 5*time.Millisecond)

	tr.Stop()
	tr.Stop()
	assert.Equal(t, 0, hub.Subscribers("wf-1"))
	assert.Equal(t, "", tr.Active())

	snaps.mu.Lock()
	calls := snaps.calls
	snaps.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	snaps.mu.Lock()
	assert.Equal(t, calls, snaps.calls, "polling stopped with the subscription")
	snaps.mu.Unlock()

	hub.Log("wf-1", "late")
	assert.Empty(t, tr.Logs("wf-1"))
}

func TestTracker_SwitchingWorkflowResubscribes(t *testing.T) {
	hub := channel.NewHub()
	tr := New(hub, nil, Options{})
	require.NoError(t, tr.Start(context.Background(), "wf-1"))
	require.Eventually(t, func() bool { return hub.Subscribers("wf-1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Start(context.Background(), "wf-2"))
	defer tr.Stop()
	require.Eventually(t, func() bool { return hub.Subscribers("wf-2") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.Subscribers("wf-1"))
	assert.Equal(t, "wf-2", tr.Active())

	require.NoError(t, tr.Start(context.Background(), "wf-2"))
	assert.Equal(t, 1, hub.Subscribers("wf-2"), "restarting the same id is a no-op")
}

// droppingSource hands out hub subscriptions and keeps them so a test can
// close one from the outside.
type droppingSource struct {
	hub  *channel.Hub
	mu   sync.Mutex
	subs []ports.Subscription
}

func (d *droppingSource) Subscribe(ctx context.Context, flowID string) (ports.Subscription, error) {
	sub, err := d.hub.Subscribe(ctx, flowID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
	return sub, nil
}

func (d *droppingSource) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func TestTracker_ChannelDropKeepsLogsAndResubscribes(t *testing.T) {
	hub := channel.NewHub()
	src := &droppingSource{hub: hub}
	tr := New(src, nil, Options{ResubscribeMin: 5 * time.Millisecond, ResubscribeMax: 20 * time.Millisecond})
	require.NoError(t, tr.Start(context.Background(), "wf-1"))
	defer tr.Stop()
	require.Eventually(t, func() bool { return hub.Subscribers("wf-1") == 1 }, time.Second, 5*time.Millisecond)

	hub.Log("wf-1", "before drop")
	require.Eventually(t, func() bool { return len(tr.Logs("wf-1")) == 1 }, time.Second, 5*time.Millisecond)

	src.mu.Lock()
	first := src.subs[0]
	src.mu.Unlock()
	first.Close()

	require.Eventually(t, func() bool { return src.count() == 2 && hub.Subscribers("wf-1") == 1 }, time.Second, 5*time.Millisecond)
	hub.Log("wf-1", "after drop")
	require.Eventually(t, func() bool { return len(tr.Logs("wf-1")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "before drop", tr.Logs("wf-1")[0].Message)
	assert.True(t, tr.Connected())
}

func TestLogsSince_NotifiesOnAppend(t *testing.T) {
	tr := New(channel.NewHub(), nil, Options{})
	require.NoError(t, tr.Start(context.Background(), "wf-1"))
	defer tr.Stop()

	events, notify := tr.LogsSince("wf-1", 0)
	assert.Empty(t, events)
	tr.OnEvent(flowdeck.LiveEvent{FlowID: "wf-1", Type: flowdeck.EventLog, Message: "hello"})

	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("not notified")
	}
	events, _ = tr.LogsSince("wf-1", 0)
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Message)
}

func TestLogsAfter_DoesNotRegisterWatchers(t *testing.T) {
	tr := New(channel.NewHub(), nil, Options{})
	require.NoError(t, tr.Start(context.Background(), "wf-1"))
	defer tr.Stop()

	tr.OnEvent(flowdeck.LiveEvent{FlowID: "wf-1", Type: flowdeck.EventLog, Message: "one"})
	tr.OnEvent(flowdeck.LiveEvent{FlowID: "wf-1", Type: flowdeck.EventLog, Message: "two"})
	for i := 0; i < 5; i++ {
		assert.Len(t, tr.Logs("wf-1"), 2)
	}
	assert.Equal(t, 0, tr.Watchers("wf-1"))

	rest := tr.LogsAfter("wf-1", 1)
	require.Len(t, rest, 1)
	assert.Equal(t, "two", rest[0].Message)
	assert.Nil(t, tr.LogsAfter("wf-1", 2))
	assert.Nil(t, tr.LogsAfter("wf-9", 0))

	_, notify := tr.LogsSince("wf-1", 2)
	assert.Equal(t, 1, tr.Watchers("wf-1"))
	tr.OnEvent(flowdeck.LiveEvent{FlowID: "wf-1", Type: flowdeck.EventLog, Message: "three"})
	<-notify
	assert.Equal(t, 0, tr.Watchers("wf-1"), "fired waiters are dropped")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, HighlightSuccess, Classify("STEP 1 SUCCESS"))
	assert.Equal(t, HighlightFailed, Classify("STEP 2 FAILED: timeout"))
	assert.Equal(t, HighlightError, Classify("ERROR connecting"))
	assert.Equal(t, HighlightStep, Classify("STEP 3 started"))
	assert.Equal(t, HighlightInfo, Classify("workflow queued"))
}
