package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/audit"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/automation"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/cases"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/condition"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/Altroz1812/wfm-sep-loanzen/internal/features/engine")

// RoleProvider resolves an actor's current role within a tenant.
type RoleProvider interface {
	RoleOf(ctx context.Context, tenantID, actorID string) (string, error)
}

// AutoRuleDispatcher fires the auto-rules bound to a stage.
type AutoRuleDispatcher interface {
	DispatchTrigger(ctx context.Context, req automation.DispatchRequest, trigger workflow.Trigger)
}

// TransitionListener is notified after a transition has been committed.
type TransitionListener interface {
	OnTransition(ctx context.Context, evt TransitionEvent)
}

type TransitionRequest struct {
	TenantID string
	ActorID  string
	CaseID   string
	Action   string
	Data     map[string]any
	Comment  string
}

type TransitionEvent struct {
	TenantID     string    `json:"tenantId"`
	CaseID       string    `json:"caseId"`
	WorkflowID   string    `json:"workflowId"`
	TransitionID string    `json:"transitionId"`
	Action       string    `json:"action"`
	FromStage    string    `json:"fromStage"`
	ToStage      string    `json:"toStage"`
	ActorID      string    `json:"actorId"`
	Comment      string    `json:"comment,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// AvailableAction is one action the actor may send from the case's current stage.
type AvailableAction struct {
	Action       string `json:"action"`
	TransitionID string `json:"transitionId"`
	ToStage      string `json:"toStage"`
	ToLabel      string `json:"toLabel,omitempty"`
	ConditionMet bool   `json:"conditionMet"`
}

type WorkflowEngine interface {
	ExecuteTransition(ctx context.Context, req TransitionRequest) (*cases.Case, error)
	AvailableActions(ctx context.Context, tenantID, actorID, caseID string) ([]AvailableAction, error)
	Subscribe(listener TransitionListener)
}

type WorkflowEngineImpl struct {
	Tx           cases.TxRunner
	Cases        cases.CaseRepository
	Definitions  workflow.DefinitionService
	Roles        RoleProvider
	AuditService audit.AuditService
	Dispatcher   AutoRuleDispatcher
	Metrics      *Metrics
	Logger       *zap.Logger

	mu        sync.RWMutex
	listeners []TransitionListener
}

func NewWorkflowEngine(
	tx cases.TxRunner,
	caseRepo cases.CaseRepository,
	definitions workflow.DefinitionService,
	roles RoleProvider,
	auditService audit.AuditService,
	dispatcher AutoRuleDispatcher,
	metrics *Metrics,
	logger *zap.Logger,
) WorkflowEngine {
	return &WorkflowEngineImpl{
		Tx:           tx,
		Cases:        caseRepo,
		Definitions:  definitions,
		Roles:        roles,
		AuditService: auditService,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	}
}

func (e *WorkflowEngineImpl) Subscribe(listener TransitionListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// committed is what the transaction hands to the post-commit hooks.
type committed struct {
	before     *cases.Case
	after      *cases.Case
	definition *workflow.Definition
	transition workflow.Transition
}

func (e *WorkflowEngineImpl) ExecuteTransition(ctx context.Context, req TransitionRequest) (*cases.Case, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "engine.ExecuteTransition", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("case.id", req.CaseID),
		attribute.String("workflow.action", req.Action),
	))
	defer span.End()

	res, err := e.commit(ctx, req)
	outcome := Outcome(err)
	e.Metrics.ObserveTransition(outcome, time.Since(start))
	span.SetAttributes(attribute.String("workflow.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		fields := []zap.Field{
			zap.String("tenant_id", req.TenantID),
			zap.String("case_id", req.CaseID),
			zap.String("action", req.Action),
			zap.String("actor_id", req.ActorID),
			zap.String("outcome", outcome),
			zap.Error(err),
		}
		if Terminal(err) {
			e.Logger.Info("transition rejected", fields...)
		} else {
			e.Logger.Warn("transition failed", fields...)
		}
		return nil, err
	}

	e.afterCommit(ctx, req, res)
	return res.after, nil
}

// commit runs steps that must be atomic: load, resolve, authorize, gate, write.
func (e *WorkflowEngineImpl) commit(ctx context.Context, req TransitionRequest) (*committed, error) {
	var res *committed
	err := e.Tx.RunInTx(ctx, func(txCtx context.Context, repo cases.CaseRepository) error {
		res = nil

		c, err := repo.Get(txCtx, req.TenantID, req.CaseID)
		if err != nil {
			return err
		}

		def, err := e.Definitions.Get(txCtx, req.TenantID, c.WorkflowID, nil)
		if err != nil {
			return err
		}

		tr, ok := def.FindTransition(c.CurrentStage, req.Action)
		if !ok {
			return &InvalidActionError{Action: req.Action, Stage: c.CurrentStage}
		}

		if err := e.authorize(txCtx, req, tr); err != nil {
			return err
		}

		merged := mergeData(c.Data, req.Data)
		if !tr.Guard().Evaluate(merged) {
			return fmt.Errorf("transition %s requires %q: %w", tr.ID, tr.Condition, sentinel.ErrConditionNotMet)
		}
		if target, ok := def.Stage(tr.To); ok {
			if missing := missingFields(target.RequiredFields, merged); len(missing) > 0 {
				return fmt.Errorf("stage %s requires fields %v: %w", target.ID, missing, sentinel.ErrConditionNotMet)
			}
		}

		updated, err := repo.UpdateStageAndData(txCtx, req.TenantID, req.CaseID, c.Version, tr.To, merged)
		if err != nil {
			return err
		}

		res = &committed{before: c, after: updated, definition: def, transition: *tr}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *WorkflowEngineImpl) authorize(ctx context.Context, req TransitionRequest, tr *workflow.Transition) error {
	role, err := e.Roles.RoleOf(ctx, req.TenantID, req.ActorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("actor %s is not a member of tenant: %w", req.ActorID, sentinel.ErrForbidden)
	}
	if err != nil {
		return err
	}
	if !tr.AllowsRole(role) {
		return fmt.Errorf("role %q may not perform %q: %w", role, req.Action, sentinel.ErrForbidden)
	}
	return nil
}

func (e *WorkflowEngineImpl) afterCommit(ctx context.Context, req TransitionRequest, res *committed) {
	before, after := res.before, res.after

	e.AuditService.Append(ctx, common_models.AuditLog{
		TenantID:   req.TenantID,
		ActorID:    req.ActorID,
		EntityType: common_models.EntityCase,
		EntityID:   after.ID,
		Action:     common_models.TransitionAuditAction(req.Action),
		OldValue:   map[string]any{"stage": before.CurrentStage, "data": before.Data},
		NewValue:   map[string]any{"stage": after.CurrentStage, "data": after.Data},
		Metadata: map[string]any{
			"transition":      res.transition.ID,
			"action":          req.Action,
			"comment":         req.Comment,
			"workflowVersion": res.definition.Version,
		},
	})

	if e.Dispatcher != nil {
		dispatch := automation.DispatchRequest{
			TenantID:   req.TenantID,
			CaseID:     after.ID,
			Data:       after.Data,
			Definition: res.definition,
		}
		dispatch.Stage = before.CurrentStage
		e.Dispatcher.DispatchTrigger(ctx, dispatch, workflow.TriggerOnExit)
		dispatch.Stage = after.CurrentStage
		e.Dispatcher.DispatchTrigger(ctx, dispatch, workflow.TriggerOnEnter)
	}

	evt := TransitionEvent{
		TenantID:     req.TenantID,
		CaseID:       after.ID,
		WorkflowID:   after.WorkflowID,
		TransitionID: res.transition.ID,
		Action:       req.Action,
		FromStage:    before.CurrentStage,
		ToStage:      after.CurrentStage,
		ActorID:      req.ActorID,
		Comment:      req.Comment,
		OccurredAt:   after.UpdatedAt,
	}
	e.mu.RLock()
	listeners := slices.Clone(e.listeners)
	e.mu.RUnlock()
	for _, l := range listeners {
		l.OnTransition(ctx, evt)
		e.Metrics.IncrementEvents()
	}

	e.Logger.Info("transition executed",
		zap.String("tenant_id", req.TenantID),
		zap.String("case_id", after.ID),
		zap.String("action", req.Action),
		zap.String("from", before.CurrentStage),
		zap.String("to", after.CurrentStage),
	)
}

func (e *WorkflowEngineImpl) AvailableActions(ctx context.Context, tenantID, actorID, caseID string) ([]AvailableAction, error) {
	c, err := e.Cases.Get(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	def, err := e.Definitions.Get(ctx, tenantID, c.WorkflowID, nil)
	if err != nil {
		return nil, err
	}
	role, err := e.Roles.RoleOf(ctx, tenantID, actorID)
	if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrForbidden) {
		return []AvailableAction{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := []AvailableAction{}
	for _, tr := range def.TransitionsFrom(c.CurrentStage) {
		if !tr.AllowsRole(role) {
			continue
		}
		met := tr.Guard().Evaluate(c.Data)
		target, _ := def.Stage(tr.To)
		for _, action := range tr.Actions {
			// Earlier transitions shadow later ones for the same action.
			if first, _ := def.FindTransition(c.CurrentStage, action); first.ID != tr.ID {
				continue
			}
			out = append(out, AvailableAction{
				Action:       action,
				TransitionID: tr.ID,
				ToStage:      tr.To,
				ToLabel:      target.Label,
				ConditionMet: met,
			})
		}
	}
	return out, nil
}

// mergeData overlays patch on data at the top level only.
func mergeData(data, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(data)+len(patch))
	maps.Copy(merged, data)
	maps.Copy(merged, patch)
	return merged
}

func missingFields(required []string, data map[string]any) []string {
	var missing []string
	for _, f := range required {
		if v, ok := condition.Lookup(data, f); !ok || v == nil || v == "" {
			missing = append(missing, f)
		}
	}
	return missing
}
