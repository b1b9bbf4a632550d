package repository

import (
	"context"
	"log/slog"

	"github.com/soochol/flowdeck/internal/db"
	"github.com/soochol/flowdeck/internal/flowdeck"
)

// PersistentExecutionRepository wraps a MemoryExecutionRepository with a
// PostgreSQL backend. Writes go to both stores (DB failure is logged but
// non-fatal). Reads try memory first, falling back to the database.
type PersistentExecutionRepository struct {
	mem *MemoryExecutionRepository
	db  *db.DB
}

func NewPersistentExecutionRepository(mem *MemoryExecutionRepository, database *db.DB) *PersistentExecutionRepository {
	return &PersistentExecutionRepository{mem: mem, db: database}
}

func (r *PersistentExecutionRepository) Save(ctx context.Context, rec flowdeck.ExecutionRecord) error {
	_ = r.mem.Save(ctx, rec)
	if err := r.db.UpsertExecution(ctx, rec); err != nil {
		slog.WarnContext(ctx, "db save execution failed, in-memory only", "workflow_id", rec.WorkflowID, "err", err)
	}
	return nil
}

func (r *PersistentExecutionRepository) Get(ctx context.Context, workflowID string) (flowdeck.ExecutionRecord, error) {
	rec, err := r.mem.Get(ctx, workflowID)
	if err == nil {
		return rec, nil
	}
	dbRec, dbErr := r.db.GetExecution(ctx, workflowID)
	if dbErr != nil {
		return flowdeck.ExecutionRecord{}, err
	}
	_ = r.mem.Save(ctx, dbRec)
	return dbRec, nil
}

func (r *PersistentExecutionRepository) List(ctx context.Context, limit, offset int, status flowdeck.WorkflowStatus) ([]flowdeck.ExecutionRecord, int, error) {
	recs, total, err := r.db.ListExecutions(ctx, limit, offset, string(status))
	if err == nil {
		return recs, total, nil
	}
	slog.WarnContext(ctx, "db list executions failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx, limit, offset, status)
}

// Active is served from memory: only this process advances records.
func (r *PersistentExecutionRepository) Active(ctx context.Context) ([]flowdeck.ExecutionRecord, error) {
	return r.mem.Active(ctx)
}

// MarkOrphanedFailed fails records left executing by a previous process.
func (r *PersistentExecutionRepository) MarkOrphanedFailed(ctx context.Context) (int64, error) {
	return r.db.MarkOrphanedExecutionsFailed(ctx)
}
