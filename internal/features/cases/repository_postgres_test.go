//go:build integration

package cases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/testutil/containers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPgCase(tenantID, stage string) *Case {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Case{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Type:         TypeLoan,
		WorkflowID:   "micro_loan_process",
		CurrentStage: stage,
		Status:       StatusActive,
		Priority:     PriorityMedium,
		AssignedTo:   "maker",
		CreatedBy:    "maker",
		Data:         map[string]any{"amount": float64(50000), "borrower": map[string]any{"name": "Amit"}},
		Metadata:     map[string]any{},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresCaseRepository(t *testing.T) {
	pg := containers.NewPostgres(t)
	repo := NewPostgresCaseRepository(pg, &config.Config{TxTimeout: 5 * time.Second})
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		c := newPgCase("t1", "draft")
		require.NoError(t, repo.Create(ctx, c))

		got, err := repo.Get(ctx, "t1", c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Data, got.Data)
		assert.Equal(t, int64(1), got.Version)

		_, err = repo.Get(ctx, "t2", c.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("versioned update", func(t *testing.T) {
		c := newPgCase("t1", "draft")
		require.NoError(t, repo.Create(ctx, c))

		updated, err := repo.UpdateStageAndData(ctx, "t1", c.ID, 1, "review", map[string]any{"amount": float64(1)})
		require.NoError(t, err)
		assert.Equal(t, "review", updated.CurrentStage)
		assert.Equal(t, int64(2), updated.Version)

		_, err = repo.UpdateStageAndData(ctx, "t1", c.ID, 1, "done", nil)
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		_, err = repo.UpdateStageAndData(ctx, "t1", "missing", 1, "done", nil)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("rollback on error", func(t *testing.T) {
		c := newPgCase("t1", "draft")
		require.NoError(t, repo.Create(ctx, c))

		boom := errors.New("boom")
		err := repo.RunInTx(ctx, func(txCtx context.Context, tx CaseRepository) error {
			if _, err := tx.UpdateStageAndData(txCtx, "t1", c.ID, 1, "review", map[string]any{"x": true}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.Get(ctx, "t1", c.ID)
		require.NoError(t, err)
		assert.Equal(t, "draft", got.CurrentStage)
		assert.NotContains(t, got.Data, "x")
	})

	t.Run("locked transactions serialize", func(t *testing.T) {
		c := newPgCase("t1", "draft")
		require.NoError(t, repo.Create(ctx, c))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.RunInTx(ctx, func(txCtx context.Context, tx CaseRepository) error {
					current, err := tx.Get(txCtx, "t1", c.ID)
					if err != nil {
						return err
					}
					if current.CurrentStage != "draft" {
						return sentinel.ErrInvalidAction
					}
					_, err = tx.UpdateStageAndData(txCtx, "t1", c.ID, current.Version, "review", current.Data)
					return err
				})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("list filters", func(t *testing.T) {
		tenant := uuid.NewString()
		for _, stage := range []string{"draft", "draft", "review"} {
			require.NoError(t, repo.Create(ctx, newPgCase(tenant, stage)))
		}
		closed := newPgCase(tenant, "draft")
		closed.Status = StatusCompleted
		require.NoError(t, repo.Create(ctx, closed))

		all, total, err := repo.List(ctx, tenant, CaseFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, all, 2)

		waiting, err := repo.ListInStage(ctx, tenant, "micro_loan_process", "draft")
		require.NoError(t, err)
		assert.Len(t, waiting, 2)
	})
}
