package executor

import (
	"context"
	"sync"
	"sync/atomic"
)

// Limits bounds how much work the executor runs at once.
type Limits struct {
	GlobalMax int `yaml:"global_max" json:"global_max"` // concurrent workflows
	PerTool   int `yaml:"per_tool" json:"per_tool"`     // concurrent invocations of one tool
}

// Limiter holds channel-based counting semaphores: one for workflows and
// one per tool name.
type Limiter struct {
	global  chan struct{}
	perTool map[string]chan struct{}
	mu      sync.Mutex
	limits  Limits
	active  atomic.Int64
}

func NewLimiter(limits Limits) *Limiter {
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = 10
	}
	if limits.PerTool <= 0 {
		limits.PerTool = 3
	}
	return &Limiter{
		global:  make(chan struct{}, limits.GlobalMax),
		perTool: make(map[string]chan struct{}),
		limits:  limits,
	}
}

// AcquireWorkflow blocks until a workflow slot is free or ctx is done.
func (l *Limiter) AcquireWorkflow(ctx context.Context) error {
	select {
	case l.global <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) ReleaseWorkflow() {
	select {
	case <-l.global:
		l.active.Add(-1)
	default:
	}
}

// AcquireTool blocks until a slot for the named tool is free or ctx is done.
func (l *Limiter) AcquireTool(ctx context.Context, name string) error {
	ch := l.toolChan(name)
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) ReleaseTool(name string) {
	l.mu.Lock()
	ch, ok := l.perTool[name]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
	}
}

// LimiterStats reports current usage.
type LimiterStats struct {
	ActiveWorkflows int `json:"active_workflows"`
	GlobalMax       int `json:"global_max"`
	PerTool         int `json:"per_tool"`
}

func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		ActiveWorkflows: int(l.active.Load()),
		GlobalMax:       l.limits.GlobalMax,
		PerTool:         l.limits.PerTool,
	}
}

func (l *Limiter) toolChan(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.perTool[name]
	if !ok {
		ch = make(chan struct{}, l.limits.PerTool)
		l.perTool[name] = ch
	}
	return ch
}
