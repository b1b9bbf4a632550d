package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

const maxExecutionRecords = 1000

// MemoryExecutionRepository stores execution records in memory with FIFO
// eviction.
type MemoryExecutionRepository struct {
	mu      sync.RWMutex
	records map[string]flowdeck.ExecutionRecord
	order   []string
}

func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{records: make(map[string]flowdeck.ExecutionRecord)}
}

// Save inserts or replaces the record.
func (r *MemoryExecutionRepository) Save(_ context.Context, rec flowdeck.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.WorkflowID]; !ok {
		if len(r.order) >= maxExecutionRecords {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.records, oldest)
		}
		r.order = append(r.order, rec.WorkflowID)
	}
	r.records[rec.WorkflowID] = rec.Clone()
	return nil
}

func (r *MemoryExecutionRepository) Get(_ context.Context, workflowID string) (flowdeck.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[workflowID]
	if !ok {
		return flowdeck.ExecutionRecord{}, fmt.Errorf("%w: workflow %s", ErrNotFound, workflowID)
	}
	return rec.Clone(), nil
}

func (r *MemoryExecutionRepository) List(_ context.Context, limit, offset int, status flowdeck.WorkflowStatus) ([]flowdeck.ExecutionRecord, int, error) {
	r.mu.RLock()
	all := make([]flowdeck.ExecutionRecord, 0, len(r.records))
	for _, rec := range r.records {
		if status == "" || rec.Status == status {
			all = append(all, rec.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *MemoryExecutionRepository) Active(_ context.Context) ([]flowdeck.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []flowdeck.ExecutionRecord
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Status == flowdeck.WorkflowPlanning || rec.Status == flowdeck.WorkflowExecuting {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}
