package cases

import (
	"context"
	"testing"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCaseService(t *testing.T) (CaseService, *audit.MemoryAuditRepository) {
	t.Helper()
	auditRepo := audit.NewMemoryAuditRepository()
	auditSvc := audit.NewAuditService(auditRepo, nil, zap.NewNop())
	defs := workflow.NewDefinitionService(workflow.NewMemoryDefinitionRepository(), auditSvc, zap.NewNop())

	_, err := defs.Create(context.Background(), "t1", "admin", workflow.DefinitionDraft{
		WorkflowID: "loan",
		Name:       "Loan",
		Stages:     []workflow.Stage{{ID: "draft"}, {ID: "review"}},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "draft", To: "review", Roles: []string{"Maker"}, Actions: []string{"submit"}},
		},
	})
	require.NoError(t, err)

	return NewCaseService(NewMemoryCaseRepository(), defs, auditSvc, zap.NewNop()), auditRepo
}

func TestCreateCaseStartsAtInitialStage(t *testing.T) {
	svc, auditRepo := newTestCaseService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", "maker-1", CreateCaseInput{
		Type:       TypeLoan,
		WorkflowID: "loan",
		Data:       map[string]any{"amount": 5000},
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", c.CurrentStage)
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, PriorityMedium, c.Priority)
	assert.Equal(t, "maker-1", c.AssignedTo)
	assert.Equal(t, int64(1), c.Version)

	stored, err := svc.Get(ctx, "t1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)

	var caseEntries []models.AuditLog
	for _, e := range auditRepo.All() {
		if e.EntityType == models.EntityCase {
			caseEntries = append(caseEntries, e)
		}
	}
	require.Len(t, caseEntries, 1)
	assert.Equal(t, c.ID, caseEntries[0].EntityID)

	list, total, err := svc.List(ctx, "t1", CaseFilter{Type: TypeLoan})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)
}

func TestCreateCaseRejectsBadInput(t *testing.T) {
	svc, _ := newTestCaseService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", "maker-1", CreateCaseInput{})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = svc.Create(ctx, "t1", "maker-1", CreateCaseInput{WorkflowID: "loan", Priority: "whenever"})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = svc.Create(ctx, "t1", "maker-1", CreateCaseInput{WorkflowID: "loan", Type: "mortgage"})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = svc.Create(ctx, "t2", "maker-1", CreateCaseInput{WorkflowID: "loan"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
