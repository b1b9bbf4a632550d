// Package channel is the connection manager for live log events. Instead of
// one shared socket, every consumer holds its own Subscription handle scoped
// to one flow id and closes it when it is done.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
)

const defaultBuffer = 64

// Hub fans out published events to the subscribers of the event's flow.
// Publish never blocks: a subscriber that falls behind loses events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	seq    atomic.Uint64
	buffer int
	closed bool
}

var _ ports.LiveSource = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscription), buffer: defaultBuffer}
}

type subscription struct {
	id     uint64
	flowID string
	ch     chan flowdeck.LiveEvent
	hub    *Hub
	once   sync.Once
}

func (s *subscription) Events() <-chan flowdeck.LiveEvent { return s.ch }

// Close detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Subscribe opens a subscription for flowID. It is closed automatically
// when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, flowID string) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, flowdeck.ErrChannelDrop
	}
	sub := &subscription{
		id:     h.seq.Add(1),
		flowID: flowID,
		ch:     make(chan flowdeck.LiveEvent, h.buffer),
		hub:    h,
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	context.AfterFunc(ctx, sub.Close)
	return sub, nil
}

// Publish delivers ev to every subscriber of ev.FlowID.
func (h *Hub) Publish(ev flowdeck.LiveEvent) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.flowID != ev.FlowID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Log publishes a log line for a flow.
func (h *Hub) Log(flowID, message string) {
	h.Publish(flowdeck.LiveEvent{FlowID: flowID, Type: flowdeck.EventLog, Message: message})
}

// Subscribers reports how many subscriptions are open for flowID.
func (h *Hub) Subscribers(flowID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.subs {
		if sub.flowID == flowID {
			n++
		}
	}
	return n
}

// Close ends every open subscription; consumers observe a closed channel.
// Later calls to Subscribe fail with flowdeck.ErrChannelDrop.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}
