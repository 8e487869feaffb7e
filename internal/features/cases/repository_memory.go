package cases

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
)

// MemoryCaseRepository keeps cases in process. Transactions stage their
// writes and apply them on commit after re-checking every version read.
type MemoryCaseRepository struct {
	mu    sync.RWMutex
	cases map[string]*Case
}

func NewMemoryCaseRepository() *MemoryCaseRepository {
	return &MemoryCaseRepository{cases: map[string]*Case{}}
}

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

func (r *MemoryCaseRepository) EnsureIndexes(context.Context) error { return nil }

func (r *MemoryCaseRepository) RunInTx(ctx context.Context, fn func(txCtx context.Context, repo CaseRepository) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	tx := &memoryTx{base: r, staged: map[string]stagedCase{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	return tx.commit()
}

func (r *MemoryCaseRepository) Create(_ context.Context, c *Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(c.TenantID, c.ID)
	if _, exists := r.cases[k]; exists {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
	}
	r.cases[k] = c.Clone()
	return nil
}

func (r *MemoryCaseRepository) Get(_ context.Context, tenantID, id string) (*Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[key(tenantID, id)]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryCaseRepository) UpdateStageAndData(_ context.Context, tenantID, id string, expectedVersion int64, stage string, data map[string]any) (*Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[key(tenantID, id)]
	if !ok {
		return nil, ErrCaseNotFound
	}
	if c.Version != expectedVersion {
		return nil, fmt.Errorf("case %s changed since version %d: %w", id, expectedVersion, sentinel.ErrConflict)
	}
	applyUpdate(c, stage, data)
	return c.Clone(), nil
}

func (r *MemoryCaseRepository) List(_ context.Context, tenantID string, filter CaseFilter) ([]Case, int64, error) {
	filter = filter.Normalize()
	all := r.snapshot(func(c *Case) bool { return c.TenantID == tenantID && filter.matches(c) })
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if filter.Offset >= total {
		return []Case{}, total, nil
	}
	end := min(filter.Offset+filter.Limit, total)
	return all[filter.Offset:end], total, nil
}

func (r *MemoryCaseRepository) ListInStage(_ context.Context, tenantID, workflowID, stage string) ([]Case, error) {
	out := r.snapshot(func(c *Case) bool {
		return c.TenantID == tenantID && c.WorkflowID == workflowID && c.CurrentStage == stage && c.Status == StatusActive
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryCaseRepository) snapshot(keep func(*Case) bool) []Case {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Case{}
	for _, c := range r.cases {
		if keep(c) {
			out = append(out, *c.Clone())
		}
	}
	return out
}

func applyUpdate(c *Case, stage string, data map[string]any) {
	c.CurrentStage = stage
	c.Data = maps.Clone(data)
	c.UpdatedAt = time.Now().UTC()
	c.Version++
}

type stagedCase struct {
	baseVersion int64 // 0 for a case created in this transaction
	c           *Case
}

type memoryTx struct {
	base   *MemoryCaseRepository
	staged map[string]stagedCase
}

func (t *memoryTx) EnsureIndexes(context.Context) error { return nil }

func (t *memoryTx) Create(ctx context.Context, c *Case) error {
	k := key(c.TenantID, c.ID)
	if _, ok := t.staged[k]; ok {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
	}
	if _, err := t.base.Get(ctx, c.TenantID, c.ID); err == nil {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
	}
	t.staged[k] = stagedCase{c: c.Clone()}
	return nil
}

func (t *memoryTx) Get(ctx context.Context, tenantID, id string) (*Case, error) {
	if s, ok := t.staged[key(tenantID, id)]; ok {
		return s.c.Clone(), nil
	}
	return t.base.Get(ctx, tenantID, id)
}

func (t *memoryTx) UpdateStageAndData(ctx context.Context, tenantID, id string, expectedVersion int64, stage string, data map[string]any) (*Case, error) {
	k := key(tenantID, id)
	s, ok := t.staged[k]
	if !ok {
		c, err := t.base.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		s = stagedCase{baseVersion: c.Version, c: c}
	}
	if s.c.Version != expectedVersion {
		return nil, fmt.Errorf("case %s changed since version %d: %w", id, expectedVersion, sentinel.ErrConflict)
	}
	applyUpdate(s.c, stage, data)
	t.staged[k] = s
	return s.c.Clone(), nil
}

func (t *memoryTx) List(ctx context.Context, tenantID string, filter CaseFilter) ([]Case, int64, error) {
	return t.base.List(ctx, tenantID, filter)
}

func (t *memoryTx) ListInStage(ctx context.Context, tenantID, workflowID, stage string) ([]Case, error) {
	return t.base.ListInStage(ctx, tenantID, workflowID, stage)
}

func (t *memoryTx) commit() error {
	t.base.mu.Lock()
	defer t.base.mu.Unlock()

	for k, s := range t.staged {
		current, exists := t.base.cases[k]
		switch {
		case s.baseVersion == 0 && exists:
			return fmt.Errorf("case %s: %w", s.c.ID, sentinel.ErrConflict)
		case s.baseVersion != 0 && (!exists || current.Version != s.baseVersion):
			return fmt.Errorf("case %s changed during transaction: %w", s.c.ID, sentinel.ErrConflict)
		}
	}
	for k, s := range t.staged {
		t.base.cases[k] = s.c
	}
	return nil
}
