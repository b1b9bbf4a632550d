// Package repository stores builder drafts and execution history.
package repository

import (
	"context"
	"time"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/graph"
	"github.com/soochol/flowdeck/internal/plan"
)

// ErrNotFound is flowdeck.ErrNotFound, re-exported for callers that only
// import this package.
var ErrNotFound = flowdeck.ErrNotFound

// GraphDraft is a graph being edited in the builder.
type GraphDraft struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Graph     graph.Graph `json:"graph"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// PlanDraft is a plan being edited in the builder.
type PlanDraft struct {
	ID        string    `json:"id"`
	Plan      plan.Plan `json:"plan"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DraftRepository keeps drafts of one kind. Update runs fn under the
// repository's lock and stores its result; on error nothing is stored and
// fn's result is returned alongside the error.
type DraftRepository[D any] interface {
	Create(ctx context.Context, d D) error
	Get(ctx context.Context, id string) (D, error)
	Update(ctx context.Context, id string, fn func(D) (D, error)) (D, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]D, error)
}

// ExecutionRepository keeps the history of execution records.
type ExecutionRepository interface {
	Save(ctx context.Context, rec flowdeck.ExecutionRecord) error
	Get(ctx context.Context, workflowID string) (flowdeck.ExecutionRecord, error)
	// List returns records newest first. status filters when non-empty.
	List(ctx context.Context, limit, offset int, status flowdeck.WorkflowStatus) ([]flowdeck.ExecutionRecord, int, error)
	// Active returns records that are still planning or executing.
	Active(ctx context.Context) ([]flowdeck.ExecutionRecord, error)
}
