package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/utils"

	"go.uber.org/zap"
)

const createAttempts = 3

// DefinitionObserver is told about every committed definition version.
type DefinitionObserver interface {
	DefinitionCreated(ctx context.Context, def *Definition)
}

type DefinitionService interface {
	// Get returns the requested version, or the active one when version is nil.
	Get(ctx context.Context, tenantID, workflowID string, version *int) (*Definition, error)
	Create(ctx context.Context, tenantID, actorID string, draft DefinitionDraft) (*Definition, error)
	ListActive(ctx context.Context, tenantID string) ([]Definition, error)
	ListAllActive(ctx context.Context) ([]Definition, error)
	Subscribe(observer DefinitionObserver)
}

type DefinitionServiceImpl struct {
	Repo         DefinitionRepository
	AuditService audit.AuditService
	Logger       *zap.Logger

	mu        sync.RWMutex
	observers []DefinitionObserver
}

func NewDefinitionService(repo DefinitionRepository, auditService audit.AuditService, logger *zap.Logger) DefinitionService {
	return &DefinitionServiceImpl{
		Repo:         repo,
		AuditService: auditService,
		Logger:       logger,
	}
}

func (s *DefinitionServiceImpl) Subscribe(observer DefinitionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *DefinitionServiceImpl) Get(ctx context.Context, tenantID, workflowID string, version *int) (*Definition, error) {
	if version != nil {
		return s.Repo.FindVersion(ctx, tenantID, workflowID, *version)
	}
	return s.Repo.FindActive(ctx, tenantID, workflowID)
}

func (s *DefinitionServiceImpl) ListActive(ctx context.Context, tenantID string) ([]Definition, error) {
	return s.Repo.ListActive(ctx, tenantID)
}

func (s *DefinitionServiceImpl) ListAllActive(ctx context.Context) ([]Definition, error) {
	return s.Repo.ListAllActive(ctx)
}

func (s *DefinitionServiceImpl) Create(ctx context.Context, tenantID, actorID string, draft DefinitionDraft) (*Definition, error) {
	if strings.TrimSpace(draft.WorkflowID) == "" && draft.Name != "" {
		draft.WorkflowID = utils.Slugify(draft.Name, "_")
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var def *Definition
	var err error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		def = &Definition{
			TenantID:    tenantID,
			WorkflowID:  draft.WorkflowID,
			Name:        draft.Name,
			Description: draft.Description,
			IsActive:    draft.Active(),
			Stages:      draft.Stages,
			Transitions: draft.Transitions,
			AutoRules:   draft.AutoRules,
			CreatedBy:   actorID,
			CreatedAt:   time.Now().UTC(),
		}
		err = s.Repo.CreateVersion(ctx, def)
		if !errors.Is(err, sentinel.ErrConflict) {
			break
		}
		s.Logger.Warn("definition version race, retrying",
			zap.String("tenant_id", tenantID),
			zap.String("workflow_id", draft.WorkflowID),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("create workflow %s: %w", draft.WorkflowID, err)
	}

	s.AuditService.Append(ctx, common_models.AuditLog{
		TenantID:   tenantID,
		ActorID:    actorID,
		EntityType: common_models.EntityWorkflowDefinition,
		EntityID:   def.WorkflowID,
		Action:     common_models.AuditActionCreate,
		NewValue: map[string]any{
			"workflowId": def.WorkflowID,
			"version":    def.Version,
			"name":       def.Name,
			"isActive":   def.IsActive,
		},
	})

	s.Logger.Info("workflow definition created",
		zap.String("tenant_id", tenantID),
		zap.String("workflow_id", def.WorkflowID),
		zap.Int("version", def.Version),
		zap.Bool("active", def.IsActive),
	)

	s.mu.RLock()
	observers := append([]DefinitionObserver(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range observers {
		o.DefinitionCreated(ctx, def)
	}

	return def, nil
}
