package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/plan"
)

func TestMemoryDraftRepository_CRUD(t *testing.T) {
	repo := NewPlanDrafts()
	ctx := context.Background()

	d := PlanDraft{ID: "plan-1", Plan: plan.New("goal", nil)}
	require.NoError(t, repo.Create(ctx, d))
	require.Error(t, repo.Create(ctx, d), "duplicate create should fail")

	got, err := repo.Update(ctx, "plan-1", func(cur PlanDraft) (PlanDraft, error) {
		cur.Plan, _ = cur.Plan.AddStep(nil, []flowdeck.ToolInfo{{Name: "fetchUrl"}})
		return cur, nil
	})
	require.NoError(t, err)
	require.Len(t, got.Plan.Steps, 1)

	_, err = repo.Update(ctx, "plan-1", func(cur PlanDraft) (PlanDraft, error) {
		cur.Plan.Steps = nil
		return cur, errors.New("rejected")
	})
	require.Error(t, err)
	stored, _ := repo.Get(ctx, "plan-1")
	assert.Len(t, stored.Plan.Steps, 1, "failed update must not be stored")

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Update(ctx, "missing", func(d PlanDraft) (PlanDraft, error) { return d, nil })
	assert.ErrorIs(t, err, ErrNotFound)

	_ = repo.Create(ctx, PlanDraft{ID: "plan-0"})
	list, _ := repo.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "plan-0", list[0].ID)

	require.NoError(t, repo.Delete(ctx, "plan-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "plan-1"), ErrNotFound)
}

func TestMemoryExecutionRepository(t *testing.T) {
	repo := NewMemoryExecutionRepository()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		rec := flowdeck.NewExecutionRecord(fmt.Sprintf("wf-%d", i), "g",
			[]flowdeck.PlanStep{{ID: 1, Tool: "a"}}, base.Add(time.Duration(i)*time.Second))
		if i == 0 {
			rec.Status = flowdeck.WorkflowCompleted
		}
		require.NoError(t, repo.Save(ctx, rec))
	}

	active, _ := repo.Active(ctx)
	assert.Len(t, active, 2)

	list, total, _ := repo.List(ctx, 2, 0, "")
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-2", list[0].WorkflowID)
	done, total, _ := repo.List(ctx, 10, 0, flowdeck.WorkflowCompleted)
	require.Equal(t, 1, total)
	assert.Equal(t, "wf-0", done[0].WorkflowID)

	got, err := repo.Get(ctx, "wf-1")
	require.NoError(t, err)
	got.Plan[0].Status = flowdeck.StepFailed
	again, _ := repo.Get(ctx, "wf-1")
	assert.Equal(t, flowdeck.StepPending, again.Plan[0].Status, "returned records must not alias stored ones")

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
