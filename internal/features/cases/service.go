package cases

import (
	"context"
	"fmt"
	"strings"
	"time"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CaseService interface {
	Create(ctx context.Context, tenantID, actorID string, in CreateCaseInput) (*Case, error)
	Get(ctx context.Context, tenantID, id string) (*Case, error)
	List(ctx context.Context, tenantID string, filter CaseFilter) ([]Case, int64, error)
}

type CaseServiceImpl struct {
	Repo         CaseRepository
	Definitions  workflow.DefinitionService
	AuditService audit.AuditService
	Logger       *zap.Logger
}

func NewCaseService(repo CaseRepository, definitions workflow.DefinitionService, auditService audit.AuditService, logger *zap.Logger) CaseService {
	return &CaseServiceImpl{
		Repo:         repo,
		Definitions:  definitions,
		AuditService: auditService,
		Logger:       logger,
	}
}

func (s *CaseServiceImpl) Create(ctx context.Context, tenantID, actorID string, in CreateCaseInput) (*Case, error) {
	if strings.TrimSpace(in.WorkflowID) == "" {
		return nil, fmt.Errorf("workflowId is required: %w", sentinel.ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = TypeGeneric
	}
	if !validType(in.Type) {
		return nil, fmt.Errorf("unknown case type %q: %w", in.Type, sentinel.ErrInvalidInput)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !validPriority(in.Priority) {
		return nil, fmt.Errorf("unknown priority %q: %w", in.Priority, sentinel.ErrInvalidInput)
	}

	def, err := s.Definitions.Get(ctx, tenantID, in.WorkflowID, nil)
	if err != nil {
		return nil, err
	}
	initial, ok := def.InitialStage()
	if !ok {
		return nil, fmt.Errorf("workflow %s has no stages: %w", def.WorkflowID, sentinel.ErrInvalidDefinition)
	}

	data := in.Data
	if data == nil {
		data = map[string]any{}
	}
	assignee := in.AssignedTo
	if assignee == "" {
		assignee = actorID
	}

	now := time.Now().UTC()
	c := &Case{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Type:         in.Type,
		WorkflowID:   def.WorkflowID,
		CurrentStage: initial.ID,
		Status:       StatusActive,
		Priority:     in.Priority,
		AssignedTo:   assignee,
		CreatedBy:    actorID,
		Data:         data,
		Metadata:     in.Metadata,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}

	s.AuditService.Append(ctx, common_models.AuditLog{
		TenantID:   tenantID,
		ActorID:    actorID,
		EntityType: common_models.EntityCase,
		EntityID:   c.ID,
		Action:     common_models.AuditActionCreate,
		NewValue: map[string]any{
			"stage":      c.CurrentStage,
			"data":       c.Data,
			"workflowId": c.WorkflowID,
			"type":       c.Type,
		},
		Metadata: map[string]any{"workflowVersion": def.Version},
	})

	s.Logger.Info("case created",
		zap.String("tenant_id", tenantID),
		zap.String("case_id", c.ID),
		zap.String("workflow_id", c.WorkflowID),
		zap.String("stage", c.CurrentStage),
	)
	return c, nil
}

func (s *CaseServiceImpl) Get(ctx context.Context, tenantID, id string) (*Case, error) {
	return s.Repo.Get(ctx, tenantID, id)
}

func (s *CaseServiceImpl) List(ctx context.Context, tenantID string, filter CaseFilter) ([]Case, int64, error) {
	return s.Repo.List(ctx, tenantID, filter)
}
