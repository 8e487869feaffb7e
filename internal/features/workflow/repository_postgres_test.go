//go:build integration

package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/testutil/containers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostgresDefinitionRepository(t *testing.T) {
	pg := containers.NewPostgres(t)
	repo := NewPostgresDefinitionRepository(pg)
	svc := NewDefinitionService(repo, audit.NewAuditService(audit.NewMemoryAuditRepository(), nil, zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	t.Run("versions activate the latest", func(t *testing.T) {
		_, err := svc.Create(ctx, "t1", "admin", reviewDraft())
		require.NoError(t, err)
		draft := reviewDraft()
		draft.Name = "Review Flow v2"
		draft.AutoRules = []AutoRule{{ID: "r1", Stage: "review", Trigger: TriggerOnEnter, Action: "call:credit_check"}}
		_, err = svc.Create(ctx, "t1", "admin", draft)
		require.NoError(t, err)

		active, err := repo.FindActive(ctx, "t1", "review_flow")
		require.NoError(t, err)
		assert.Equal(t, 2, active.Version)
		assert.Equal(t, "Review Flow v2", active.Name)
		require.Len(t, active.AutoRules, 1)
		assert.Equal(t, "call:credit_check", active.AutoRules[0].Action)

		v1, err := repo.FindVersion(ctx, "t1", "review_flow", 1)
		require.NoError(t, err)
		assert.False(t, v1.IsActive)

		_, err = repo.FindActive(ctx, "t2", "review_flow")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("inactive version keeps the current one", func(t *testing.T) {
		draft := reviewDraft()
		draft.WorkflowID = "staged_flow"
		_, err := svc.Create(ctx, "t1", "admin", draft)
		require.NoError(t, err)

		inactive := false
		draft.IsActive = &inactive
		v2, err := svc.Create(ctx, "t1", "admin", draft)
		require.NoError(t, err)
		assert.Equal(t, 2, v2.Version)

		active, err := repo.FindActive(ctx, "t1", "staged_flow")
		require.NoError(t, err)
		assert.Equal(t, 1, active.Version)
	})

	t.Run("concurrent creates get distinct versions", func(t *testing.T) {
		draft := reviewDraft()
		draft.WorkflowID = "busy_flow"

		var wg sync.WaitGroup
		versions := make(chan int, 6)
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				def, err := svc.Create(ctx, "t1", "admin", draft)
				if assert.NoError(t, err) {
					versions <- def.Version
				}
			}()
		}
		wg.Wait()
		close(versions)

		seen := map[int]bool{}
		for v := range versions {
			assert.False(t, seen[v], "version %d assigned twice", v)
			seen[v] = true
		}
		assert.Len(t, seen, 6)

		defs, err := repo.ListActive(ctx, "t1")
		require.NoError(t, err)
		count := 0
		for _, d := range defs {
			if d.WorkflowID == "busy_flow" {
				count++
				assert.Equal(t, 6, d.Version)
			}
		}
		assert.Equal(t, 1, count)
	})
}
