package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

const executionColumns = `workflow_id, goal_summary, status, plan, started_at, completed_at, total_duration`

// UpsertExecution inserts a record or replaces the stored one.
func (d *DB) UpsertExecution(ctx context.Context, rec flowdeck.ExecutionRecord) error {
	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (workflow_id) DO UPDATE SET
		   goal_summary = EXCLUDED.goal_summary,
		   status = EXCLUDED.status,
		   plan = EXCLUDED.plan,
		   completed_at = EXCLUDED.completed_at,
		   total_duration = EXCLUDED.total_duration,
		   updated_at = NOW()`,
		rec.WorkflowID, rec.GoalSummary, string(rec.Status), planJSON,
		rec.StartedAt, rec.CompletedAt, rec.TotalDuration,
	)
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}
	return nil
}

// GetExecution retrieves one record.
func (d *DB) GetExecution(ctx context.Context, workflowID string) (flowdeck.ExecutionRecord, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE workflow_id = $1`, workflowID)
	rec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: workflow %s", flowdeck.ErrNotFound, workflowID)
	}
	if err != nil {
		return rec, fmt.Errorf("get execution: %w", err)
	}
	return rec, nil
}

// ListExecutions returns records newest first. An empty status lists all.
func (d *DB) ListExecutions(ctx context.Context, limit, offset int, status string) ([]flowdeck.ExecutionRecord, int, error) {
	statuses := []string{status}
	if status == "" {
		statuses = []string{
			string(flowdeck.WorkflowPlanning), string(flowdeck.WorkflowExecuting),
			string(flowdeck.WorkflowCompleted), string(flowdeck.WorkflowFailed),
		}
	}
	if limit <= 0 {
		limit = 100
	}

	var total int
	if err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE status = ANY($1)`, pq.Array(statuses),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE status = ANY($1)
		 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		pq.Array(statuses), limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []flowdeck.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// MarkOrphanedExecutionsFailed fails every record still planning or
// executing. Called at startup, when no execution can be in flight.
func (d *DB) MarkOrphanedExecutionsFailed(ctx context.Context) (int64, error) {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE executions SET status = $1, completed_at = NOW(), updated_at = NOW()
		 WHERE status = ANY($2)`,
		string(flowdeck.WorkflowFailed),
		pq.Array([]string{string(flowdeck.WorkflowPlanning), string(flowdeck.WorkflowExecuting)}),
	)
	if err != nil {
		return 0, fmt.Errorf("mark orphaned executions: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(s scanner) (flowdeck.ExecutionRecord, error) {
	var (
		rec       flowdeck.ExecutionRecord
		status    string
		planJSON  []byte
		completed sql.NullTime
		total     sql.NullInt64
	)
	if err := s.Scan(&rec.WorkflowID, &rec.GoalSummary, &status, &planJSON,
		&rec.StartedAt, &completed, &total); err != nil {
		return rec, err
	}
	rec.Status = flowdeck.WorkflowStatus(status)
	if err := json.Unmarshal(planJSON, &rec.Plan); err != nil {
		return rec, fmt.Errorf("decode plan: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	if total.Valid {
		v := total.Int64
		rec.TotalDuration = &v
	}
	return rec, nil
}
