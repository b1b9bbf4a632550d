package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
	"github.com/soochol/flowdeck/internal/tracker"
)

// FlowSnapshot is the tracked state of one flow as shown in the builder.
type FlowSnapshot struct {
	FlowID    string                    `json:"flowId"`
	Record    *flowdeck.ExecutionRecord `json:"record,omitempty"`
	Eligible  []int                     `json:"eligible"`
	Blocked   []int                     `json:"blocked"`
	Logs      []flowdeck.LiveEvent      `json:"logs"`
	Connected bool                      `json:"connected"`
	// Watchers is the number of log streams waiting on the flow.
	Watchers int `json:"watchers"`
}

type trackedFlow struct {
	tracker *tracker.Tracker
	doneAt  time.Time // when a terminal record was first seen
}

// TrackingService owns one Tracker per flow view. Trackers of finished
// flows are stopped and dropped once they have been terminal for the TTL.
type TrackingService struct {
	live      ports.LiveSource
	snapshots ports.SnapshotSource
	opts      tracker.Options
	ttl       time.Duration

	mu    sync.Mutex
	flows map[string]*trackedFlow
	stop  chan struct{}
	once  sync.Once
}

func NewTrackingService(live ports.LiveSource, snapshots ports.SnapshotSource, opts tracker.Options, ttl time.Duration) *TrackingService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &TrackingService{
		live:      live,
		snapshots: snapshots,
		opts:      opts,
		ttl:       ttl,
		flows:     make(map[string]*trackedFlow),
		stop:      make(chan struct{}),
	}
	go s.gc()
	return s
}

// Track starts tracking flowID, or returns the tracker already doing so.
func (s *TrackingService) Track(ctx context.Context, flowID string) (*tracker.Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flows[flowID]; ok {
		return f.tracker, nil
	}
	t := tracker.New(s.live, s.snapshots, s.opts)
	if err := t.Start(ctx, flowID); err != nil {
		return nil, err
	}
	s.flows[flowID] = &trackedFlow{tracker: t}
	return t, nil
}

// Tracker returns the tracker of flowID if one is running.
func (s *TrackingService) Tracker(flowID string) (*tracker.Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[flowID]
	if !ok {
		return nil, false
	}
	return f.tracker, true
}

// Release stops tracking flowID. Unknown ids are ignored.
func (s *TrackingService) Release(flowID string) {
	s.mu.Lock()
	f, ok := s.flows[flowID]
	delete(s.flows, flowID)
	s.mu.Unlock()
	if ok {
		f.tracker.Stop()
	}
}

// Flows returns the tracked flow ids, sorted.
func (s *TrackingService) Flows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.flows))
	for id := range s.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the current read model of flowID.
func (s *TrackingService) Snapshot(flowID string) (FlowSnapshot, error) {
	t, ok := s.Tracker(flowID)
	if !ok {
		return FlowSnapshot{}, flowdeck.ErrNotFound
	}
	snap := FlowSnapshot{
		FlowID:    flowID,
		Logs:      t.Logs(flowID),
		Connected: t.Connected(),
		Watchers:  t.Watchers(flowID),
		Eligible:  []int{},
		Blocked:   []int{},
	}
	if snap.Logs == nil {
		snap.Logs = []flowdeck.LiveEvent{}
	}
	if rec, ok := t.Record(flowID); ok {
		snap.Record = &rec
		if e := tracker.Eligible(rec); e != nil {
			snap.Eligible = e
		}
		if b := tracker.Blocked(rec); b != nil {
			snap.Blocked = b
		}
	}
	return snap, nil
}

// Close stops the GC loop and every tracker.
func (s *TrackingService) Close() {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	flows := s.flows
	s.flows = make(map[string]*trackedFlow)
	s.mu.Unlock()
	for _, f := range flows {
		f.tracker.Stop()
	}
}

func (s *TrackingService) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.collectExpired(time.Now())
		}
	}
}

func (s *TrackingService) collectExpired(now time.Time) {
	expired := make(map[string]*trackedFlow)
	s.mu.Lock()
	for id, f := range s.flows {
		rec, ok := f.tracker.Record(id)
		if !ok || (rec.Status != flowdeck.WorkflowCompleted && rec.Status != flowdeck.WorkflowFailed) {
			continue
		}
		if f.doneAt.IsZero() {
			f.doneAt = now
			continue
		}
		if now.Sub(f.doneAt) > s.ttl {
			expired[id] = f
			delete(s.flows, id)
		}
	}
	s.mu.Unlock()

	for id, f := range expired {
		f.tracker.Stop()
		slog.Debug("released finished flow tracker", "flow_id", id)
	}
}
