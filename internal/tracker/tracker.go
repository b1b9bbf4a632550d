// Package tracker folds live log events and polled execution snapshots of a
// workflow into a read model for the builder.
//
// Two sources feed a Tracker. The push channel is authoritative for log
// order; the poll loop is authoritative for status. Polling keeps running
// while the push channel is down, and the push channel is re-subscribed
// in the background without losing the log accumulated so far.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/logging"
)

type Options struct {
	PollInterval   time.Duration
	ResubscribeMin time.Duration
	ResubscribeMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.ResubscribeMin <= 0 {
		o.ResubscribeMin = 500 * time.Millisecond
	}
	if o.ResubscribeMax < o.ResubscribeMin {
		o.ResubscribeMax = 30 * time.Second
	}
	return o
}

// logEntry buffers the events of one flow and wakes waiters on append,
// the same close-and-replace fan-out used for run event buffers.
type logEntry struct {
	events []flowdeck.LiveEvent
	subs   []chan struct{}
}

type Tracker struct {
	live      ports.LiveSource
	snapshots ports.SnapshotSource
	opts      Options

	mu         sync.Mutex
	active     string
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	connected  bool
	records    map[string]flowdeck.ExecutionRecord
	logs       map[string]*logEntry
	issuedSeq  uint64
	appliedSeq uint64
}

// New creates a tracker. live may be nil, in which case only polling runs.
func New(live ports.LiveSource, snapshots ports.SnapshotSource, opts Options) *Tracker {
	return &Tracker{
		live:      live,
		snapshots: snapshots,
		opts:      opts.withDefaults(),
		records:   make(map[string]flowdeck.ExecutionRecord),
		logs:      make(map[string]*logEntry),
	}
}

// Start begins tracking workflowID. Tracking of a different workflow is
// stopped first; starting the workflow already tracked is a no-op.
func (t *Tracker) Start(ctx context.Context, workflowID string) error {
	if workflowID == "" {
		return errors.New("workflow id is required")
	}
	t.mu.Lock()
	if t.active == workflowID && t.cancel != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	t.Stop()

	runCtx, cancel := context.WithCancel(logging.WithFlowID(context.WithoutCancel(ctx), workflowID))
	t.mu.Lock()
	t.active = workflowID
	t.cancel = cancel
	if _, ok := t.logs[workflowID]; !ok {
		t.logs[workflowID] = &logEntry{}
	}
	t.mu.Unlock()

	if t.live != nil {
		t.wg.Add(1)
		go t.consume(runCtx, workflowID)
	}
	if t.snapshots != nil {
		t.wg.Add(1)
		go t.pollLoop(runCtx)
	}
	slog.InfoContext(runCtx, "tracking started")
	return nil
}

// Stop ends the push subscription and the poll loop together and waits for
// both. Calling it when nothing is tracked is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	id := t.active
	t.cancel = nil
	t.active = ""
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	t.wg.Wait()
	t.setConnected(false)
	slog.Info("tracking stopped", "flow_id", id)
}

// Active returns the tracked workflow id, or "".
func (t *Tracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Connected reports whether the push channel is currently subscribed.
func (t *Tracker) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// OnEvent appends ev to the active workflow's log. Events for any other
// flow are ignored and reported as not accepted.
func (t *Tracker) OnEvent(ev flowdeck.LiveEvent) bool {
	t.mu.Lock()
	if t.active == "" || ev.FlowID != t.active {
		t.mu.Unlock()
		return false
	}
	entry := t.logs[ev.FlowID]
	ev.Seq = len(entry.events) + 1
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	entry.events = append(entry.events, ev)
	subs := entry.subs
	entry.subs = nil
	t.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
	return true
}

// Logs returns a copy of the log accumulated for id.
func (t *Tracker) Logs(id string) []flowdeck.LiveEvent {
	return t.LogsAfter(id, 0)
}

// LogsAfter returns the events of id after the first start ones without
// waiting for more.
func (t *Tracker) LogsAfter(id string, start int) []flowdeck.LiveEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.logs[id]
	if !ok || start >= len(entry.events) {
		return nil
	}
	return append([]flowdeck.LiveEvent(nil), entry.events[start:]...)
}

// Watchers returns how many LogsSince callers are waiting for the next
// event of id.
func (t *Tracker) Watchers(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.logs[id]; ok {
		return len(entry.subs)
	}
	return 0
}

// LogsSince returns the events of id after the first start ones, and a
// channel closed when the next event is appended. Each call registers a new
// waiter; callers keep the channel until it fires.
func (t *Tracker) LogsSince(id string, start int) ([]flowdeck.LiveEvent, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.logs[id]
	if !ok {
		entry = &logEntry{}
		t.logs[id] = entry
	}
	var out []flowdeck.LiveEvent
	if start < len(entry.events) {
		out = append(out, entry.events[start:]...)
	}
	ch := make(chan struct{})
	entry.subs = append(entry.subs, ch)
	return out, ch
}

// Record returns the last polled snapshot of id.
func (t *Tracker) Record(id string) (flowdeck.ExecutionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return flowdeck.ExecutionRecord{}, false
	}
	return rec.Clone(), true
}

// PollOnce fetches the active workflow snapshots and applies them. Each
// request is numbered; a reply that arrives after a newer one has already
// been applied is discarded. Applied records replace earlier ones.
func (t *Tracker) PollOnce(ctx context.Context) error {
	if t.snapshots == nil {
		return nil
	}
	t.mu.Lock()
	t.issuedSeq++
	seq := t.issuedSeq
	t.mu.Unlock()

	records, err := t.snapshots.ActiveWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("poll active workflows: %w", err)
	}
	t.apply(seq, records)
	return nil
}

func (t *Tracker) apply(seq uint64, records []flowdeck.ExecutionRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq <= t.appliedSeq {
		slog.Debug("dropping stale snapshot", "seq", seq, "applied", t.appliedSeq)
		return false
	}
	t.appliedSeq = seq
	for _, r := range records {
		t.records[r.WorkflowID] = r.Clone()
	}
	return true
}

func (t *Tracker) pollLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		if err := t.PollOnce(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "snapshot poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) setConnected(v bool) {
	t.mu.Lock()
	t.connected = v
	t.mu.Unlock()
}

// consume keeps a live subscription open for flowID until ctx ends.
func (t *Tracker) consume(ctx context.Context, flowID string) {
	defer t.wg.Done()
	backoff := t.opts.ResubscribeMin
	for {
		sub, err := t.live.Subscribe(ctx, flowID)
		if err == nil {
			backoff = t.opts.ResubscribeMin
			t.setConnected(true)
			for ev := range sub.Events() {
				if ev.FlowID == "" {
					ev.FlowID = flowID
				}
				t.OnEvent(ev)
			}
			sub.Close()
			t.setConnected(false)
		}
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = flowdeck.ErrChannelDrop
		}
		slog.WarnContext(ctx, "live channel unavailable, retrying", "err", err, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, t.opts.ResubscribeMax)
	}
}
