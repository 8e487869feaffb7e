package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu   sync.Mutex
	defs []*Definition
}

func (o *recordingObserver) DefinitionCreated(_ context.Context, def *Definition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.defs = append(o.defs, def)
}

func reviewDraft() DefinitionDraft {
	return DefinitionDraft{
		WorkflowID: "review_flow",
		Name:       "Review Flow",
		Stages: []Stage{
			{ID: "draft", Label: "Draft"},
			{ID: "review", Label: "Review"},
			{ID: "done", Label: "Done"},
		},
		Transitions: []Transition{
			{ID: "t1", From: "draft", To: "review", Condition: "true", Roles: []string{"Maker"}, Actions: []string{"submit"}},
			{ID: "t2", From: "review", To: "done", Condition: "true", Roles: []string{"Checker"}, Actions: []string{"approve"}},
		},
	}
}

func newTestDefinitionService() (DefinitionService, *MemoryDefinitionRepository, *audit.MemoryAuditRepository) {
	repo := NewMemoryDefinitionRepository()
	auditRepo := audit.NewMemoryAuditRepository()
	auditSvc := audit.NewAuditService(auditRepo, nil, zap.NewNop())
	return NewDefinitionService(repo, auditSvc, zap.NewNop()), repo, auditRepo
}

func TestCreateVersionsActivateLatest(t *testing.T) {
	svc, _, auditRepo := newTestDefinitionService()
	obs := &recordingObserver{}
	svc.Subscribe(obs)
	ctx := context.Background()

	v1, err := svc.Create(ctx, "t1", "admin", reviewDraft())
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.True(t, v1.IsActive)

	draft := reviewDraft()
	draft.Name = "Review Flow v2"
	v2, err := svc.Create(ctx, "t1", "admin", draft)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	active, err := svc.Get(ctx, "t1", "review_flow", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
	assert.Equal(t, "Review Flow v2", active.Name)

	one := 1
	old, err := svc.Get(ctx, "t1", "review_flow", &one)
	require.NoError(t, err)
	assert.False(t, old.IsActive, "previous version is deactivated")

	list, err := svc.ListActive(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Version)

	assert.Len(t, obs.defs, 2)
	logs := auditRepo.All()
	require.Len(t, logs, 2)
	assert.Equal(t, models.EntityWorkflowDefinition, logs[0].EntityType)
	assert.Equal(t, models.AuditActionCreate, logs[1].Action)
}

func TestCreateInactiveKeepsCurrentVersion(t *testing.T) {
	svc, _, _ := newTestDefinitionService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", "admin", reviewDraft())
	require.NoError(t, err)

	inactive := false
	draft := reviewDraft()
	draft.IsActive = &inactive
	v2, err := svc.Create(ctx, "t1", "admin", draft)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.False(t, v2.IsActive)

	active, err := svc.Get(ctx, "t1", "review_flow", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)
}

func TestGetIsTenantScoped(t *testing.T) {
	svc, _, _ := newTestDefinitionService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", "admin", reviewDraft())
	require.NoError(t, err)

	_, err = svc.Get(ctx, "t2", "review_flow", nil)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	nine := 9
	_, err = svc.Get(ctx, "t1", "review_flow", &nine)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCreateDerivesWorkflowIDFromName(t *testing.T) {
	svc, _, _ := newTestDefinitionService()

	draft := reviewDraft()
	draft.WorkflowID = ""
	draft.Name = "Micro Loan Process"
	def, err := svc.Create(context.Background(), "t1", "admin", draft)
	require.NoError(t, err)
	assert.Equal(t, "micro_loan_process", def.WorkflowID)
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	svc, repo, auditRepo := newTestDefinitionService()

	draft := reviewDraft()
	draft.Transitions[0].To = "nowhere"
	_, err := svc.Create(context.Background(), "t1", "admin", draft)
	assert.ErrorIs(t, err, sentinel.ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "nowhere")

	list, _ := repo.ListAllActive(context.Background())
	assert.Empty(t, list)
	assert.Empty(t, auditRepo.All())
}

func TestConcurrentCreatesGetDistinctVersions(t *testing.T) {
	svc, _, _ := newTestDefinitionService()
	ctx := context.Background()

	const n = 8
	versions := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			def, err := svc.Create(ctx, "t1", "admin", reviewDraft())
			if err == nil {
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
	assert.Len(t, seen, n)

	active, err := svc.Get(ctx, "t1", "review_flow", nil)
	require.NoError(t, err)
	assert.Equal(t, n, active.Version)
}
