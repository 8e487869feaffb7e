package automation

import (
	"context"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/Altroz1812/wfm-sep-loanzen/internal/features/automation")

// Dispatcher fires auto-rules. Rule failures are logged and skipped; they
// never reach the caller.
type Dispatcher interface {
	// Dispatch fires the onEnter rules of newStage.
	Dispatch(ctx context.Context, tenantID, caseID, newStage string, def *workflow.Definition)
	DispatchTrigger(ctx context.Context, req DispatchRequest, trigger workflow.Trigger)
	// Fire runs a single rule synchronously and reports its failure.
	Fire(ctx context.Context, req DispatchRequest, rule workflow.AutoRule) error
}

type DispatcherImpl struct {
	executor ActionExecutor
	logger   *zap.Logger
	async    bool
}

func NewDispatcher(executor ActionExecutor, cfg *config.Config, logger *zap.Logger) Dispatcher {
	return &DispatcherImpl{
		executor: executor,
		logger:   logger,
		async:    cfg.AutomationAsync,
	}
}

func (d *DispatcherImpl) Dispatch(ctx context.Context, tenantID, caseID, newStage string, def *workflow.Definition) {
	d.DispatchTrigger(ctx, DispatchRequest{
		TenantID:   tenantID,
		CaseID:     caseID,
		Stage:      newStage,
		Definition: def,
	}, workflow.TriggerOnEnter)
}

func (d *DispatcherImpl) DispatchTrigger(ctx context.Context, req DispatchRequest, trigger workflow.Trigger) {
	if req.Definition == nil {
		return
	}
	rules := req.Definition.RulesFor(req.Stage, trigger)
	if len(rules) == 0 {
		return
	}

	if !d.async {
		d.run(ctx, req, rules)
		return
	}
	// Rules outlive the request that caused them.
	detached := context.WithoutCancel(ctx)
	go d.run(detached, req, rules)
}

func (d *DispatcherImpl) run(ctx context.Context, req DispatchRequest, rules []workflow.AutoRule) {
	for _, rule := range rules {
		if err := d.Fire(ctx, req, rule); err != nil {
			d.logger.Error("auto rule failed",
				zap.String("tenant_id", req.TenantID),
				zap.String("case_id", req.CaseID),
				zap.String("stage", req.Stage),
				zap.String("rule_id", rule.ID),
				zap.String("action", rule.Action),
				zap.Error(err),
			)
		}
	}
}

func (d *DispatcherImpl) Fire(ctx context.Context, req DispatchRequest, rule workflow.AutoRule) (err error) {
	ctx, span := tracer.Start(ctx, "automation.Fire", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("case.id", req.CaseID),
		attribute.String("rule.id", rule.ID),
		attribute.String("rule.action", rule.Action),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &AutomationFailure{RuleID: rule.ID, Action: rule.Action, Err: panicError{r}}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "auto rule failed")
		}
	}()

	if rule.Condition != "" {
		if !rule.Guard().Evaluate(req.Data) {
			d.logger.Debug("auto rule skipped, condition not met",
				zap.String("case_id", req.CaseID),
				zap.String("rule_id", rule.ID),
			)
			return nil
		}
	}

	if execErr := d.executor.ExecuteAction(ctx, req, rule); execErr != nil {
		return &AutomationFailure{RuleID: rule.ID, Action: rule.Action, Err: execErr}
	}

	d.logger.Info("auto rule executed",
		zap.String("tenant_id", req.TenantID),
		zap.String("case_id", req.CaseID),
		zap.String("rule_id", rule.ID),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
