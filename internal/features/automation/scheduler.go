package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/cases"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StageLister finds the cases a scheduled rule applies to.
type StageLister interface {
	ListInStage(ctx context.Context, tenantID, workflowID, stage string) ([]cases.Case, error)
}

type scheduledEntry struct {
	id       cron.EntryID
	version  int
	schedule string
}

// Scheduler registers every scheduled auto-rule of the active definitions
// with cron and fires it for each case waiting in the rule's stage.
type Scheduler struct {
	definitions workflow.DefinitionService
	cases       StageLister
	dispatcher  Dispatcher
	logger      *zap.Logger

	cron       *cron.Cron
	jobEntries map[string]scheduledEntry
	mu         sync.Mutex
}

func NewScheduler(definitions workflow.DefinitionService, caseRepo StageLister, dispatcher Dispatcher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		definitions: definitions,
		cases:       caseRepo,
		dispatcher:  dispatcher,
		logger:      logger,
		cron:        cron.New(),
		jobEntries:  make(map[string]scheduledEntry),
	}
}

func jobKey(tenantID, workflowID, ruleID string) string {
	return tenantID + "/" + workflowID + "/" + ruleID
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.definitions.Subscribe(s)
	if err := s.Sync(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("auto rule scheduler started", zap.Int("jobs", len(s.Registered())))
	return nil
}

func (s *Scheduler) Stop() error {
	stopped := s.cron.Stop()
	<-stopped.Done()
	return nil
}

// Sync reconciles the registered jobs with the active definitions.
func (s *Scheduler) Sync(ctx context.Context) error {
	defs, err := s.definitions.ListAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active definitions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool)
	for i := range defs {
		for _, key := range s.registerLocked(&defs[i]) {
			wanted[key] = true
		}
	}
	for key, entry := range s.jobEntries {
		if !wanted[key] {
			s.cron.Remove(entry.id)
			delete(s.jobEntries, key)
		}
	}
	return nil
}

// DefinitionCreated re-registers the workflow's scheduled rules when a new
// version becomes active.
func (s *Scheduler) DefinitionCreated(_ context.Context, def *workflow.Definition) {
	if !def.IsActive {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := def.TenantID + "/" + def.WorkflowID + "/"
	wanted := make(map[string]bool)
	for _, key := range s.registerLocked(def) {
		wanted[key] = true
	}
	for key, entry := range s.jobEntries {
		if strings.HasPrefix(key, prefix) && !wanted[key] {
			s.cron.Remove(entry.id)
			delete(s.jobEntries, key)
		}
	}
}

// registerLocked adds or refreshes the jobs of def and returns their keys.
func (s *Scheduler) registerLocked(def *workflow.Definition) []string {
	var keys []string
	for _, rule := range def.AutoRules {
		if rule.Trigger != workflow.TriggerScheduled {
			continue
		}
		key := jobKey(def.TenantID, def.WorkflowID, rule.ID)
		schedule := rule.Schedule()

		if existing, ok := s.jobEntries[key]; ok {
			if existing.version == def.Version && existing.schedule == schedule {
				keys = append(keys, key)
				continue
			}
			s.cron.Remove(existing.id)
			delete(s.jobEntries, key)
		}

		tenantID, workflowID, ruleID := def.TenantID, def.WorkflowID, rule.ID
		entryID, err := s.cron.AddFunc(schedule, func() {
			s.RunRule(context.Background(), tenantID, workflowID, ruleID)
		})
		if err != nil {
			s.logger.Error("failed to schedule auto rule",
				zap.String("tenant_id", tenantID),
				zap.String("workflow_id", workflowID),
				zap.String("rule_id", ruleID),
				zap.String("schedule", schedule),
				zap.Error(err),
			)
			continue
		}
		s.jobEntries[key] = scheduledEntry{id: entryID, version: def.Version, schedule: schedule}
		keys = append(keys, key)
	}
	return keys
}

// RunRule fires one scheduled rule for every active case in its stage and
// returns how many cases it ran for. The active definition is re-read so a
// rule removed by a newer version no longer fires.
func (s *Scheduler) RunRule(ctx context.Context, tenantID, workflowID, ruleID string) int {
	def, err := s.definitions.Get(ctx, tenantID, workflowID, nil)
	if err != nil {
		s.logger.Warn("scheduled rule skipped, no active definition",
			zap.String("tenant_id", tenantID),
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
		return 0
	}

	var rule *workflow.AutoRule
	for i := range def.AutoRules {
		if def.AutoRules[i].ID == ruleID && def.AutoRules[i].Trigger == workflow.TriggerScheduled {
			rule = &def.AutoRules[i]
			break
		}
	}
	if rule == nil {
		return 0
	}

	waiting, err := s.cases.ListInStage(ctx, tenantID, workflowID, rule.Stage)
	if err != nil {
		s.logger.Error("scheduled rule could not list cases",
			zap.String("tenant_id", tenantID),
			zap.String("rule_id", ruleID),
			zap.Error(err),
		)
		return 0
	}

	for _, c := range waiting {
		req := DispatchRequest{
			TenantID:   tenantID,
			CaseID:     c.ID,
			Stage:      c.CurrentStage,
			Data:       c.Data,
			Definition: def,
		}
		if err := s.dispatcher.Fire(ctx, req, *rule); err != nil {
			s.logger.Error("scheduled rule failed",
				zap.String("tenant_id", tenantID),
				zap.String("case_id", c.ID),
				zap.String("rule_id", ruleID),
				zap.Error(err),
			)
		}
	}
	return len(waiting)
}

// Registered lists the keys of the scheduled jobs, sorted.
func (s *Scheduler) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.jobEntries))
	for k := range s.jobEntries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
