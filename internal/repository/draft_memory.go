package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	memstore "github.com/soochol/flowdeck/internal/repository/memory"
)

// MemoryDraftRepository is a DraftRepository backed by a memory.Store.
type MemoryDraftRepository[D any] struct {
	store *memstore.Store[D]
	idOf  func(D) string
}

func NewMemoryDraftRepository[D any](idOf func(D) string) *MemoryDraftRepository[D] {
	return &MemoryDraftRepository[D]{store: memstore.New(idOf), idOf: idOf}
}

// NewGraphDrafts returns an in-memory store for graph drafts.
func NewGraphDrafts() *MemoryDraftRepository[GraphDraft] {
	return NewMemoryDraftRepository(func(d GraphDraft) string { return d.ID })
}

// NewPlanDrafts returns an in-memory store for plan drafts.
func NewPlanDrafts() *MemoryDraftRepository[PlanDraft] {
	return NewMemoryDraftRepository(func(d PlanDraft) string { return d.ID })
}

func (r *MemoryDraftRepository[D]) Create(ctx context.Context, d D) error {
	if _, err := r.store.Get(ctx, r.idOf(d)); err == nil {
		return fmt.Errorf("draft %q already exists", r.idOf(d))
	}
	return r.store.Set(ctx, d)
}

func (r *MemoryDraftRepository[D]) Get(ctx context.Context, id string) (D, error) {
	d, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return d, fmt.Errorf("%w: draft %s", ErrNotFound, id)
	}
	return d, err
}

func (r *MemoryDraftRepository[D]) Update(ctx context.Context, id string, fn func(D) (D, error)) (D, error) {
	d, err := r.store.Update(ctx, id, fn)
	if errors.Is(err, memstore.ErrNotFound) {
		return d, fmt.Errorf("%w: draft %s", ErrNotFound, id)
	}
	return d, err
}

func (r *MemoryDraftRepository[D]) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: draft %s", ErrNotFound, id)
	}
	return nil
}

// List returns drafts sorted by id.
func (r *MemoryDraftRepository[D]) List(ctx context.Context) ([]D, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return r.idOf(all[i]) < r.idOf(all[j]) })
	return all, nil
}
