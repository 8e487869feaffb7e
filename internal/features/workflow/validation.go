package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/condition"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/robfig/cron/v3"
)

var (
	ErrWorkflowNotFound = fmt.Errorf("workflow definition %w", sentinel.ErrNotFound)
)

const (
	ActionPrefixCall   = "call:"
	ActionPrefixScript = "script:"

	// DefaultSchedule is used for scheduled rules without params["schedule"].
	DefaultSchedule = "@hourly"
)

// Schedule returns the cron expression of a scheduled rule.
func (r AutoRule) Schedule() string {
	if s, ok := r.Params["schedule"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return DefaultSchedule
}

// Validate checks the structural invariants of a draft. All problems are
// reported together, wrapped in sentinel.ErrInvalidDefinition.
func (d DefinitionDraft) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(d.WorkflowID) == "" {
		add("workflowId is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		add("name is required")
	}
	if len(d.Stages) == 0 {
		add("at least one stage is required")
	}

	stages := make(map[string]bool, len(d.Stages))
	for i, s := range d.Stages {
		switch {
		case strings.TrimSpace(s.ID) == "":
			add("stage %d: id is required", i)
		case stages[s.ID]:
			add("stage %q: duplicate id", s.ID)
		}
		stages[s.ID] = true
		if s.SLAHours != nil && *s.SLAHours < 0 {
			add("stage %q: slaHours must not be negative", s.ID)
		}
	}

	transitionIDs := make(map[string]bool, len(d.Transitions))
	seenAction := make(map[string]string)
	for i, t := range d.Transitions {
		name := t.ID
		if name == "" {
			add("transition %d: id is required", i)
			name = fmt.Sprintf("#%d", i)
		} else if transitionIDs[t.ID] {
			add("transition %q: duplicate id", t.ID)
		}
		transitionIDs[t.ID] = true

		if !stages[t.From] {
			add("transition %q: unknown from stage %q", name, t.From)
		}
		if !stages[t.To] {
			add("transition %q: unknown to stage %q", name, t.To)
		}
		if len(t.Actions) == 0 {
			add("transition %q: at least one action is required", name)
		}
		if len(t.Roles) == 0 {
			add("transition %q: at least one role is required", name)
		}
		for _, a := range t.Actions {
			if strings.TrimSpace(a) == "" {
				add("transition %q: empty action", name)
				continue
			}
			key := t.From + "\x00" + a
			if prev, ok := seenAction[key]; ok {
				add("transition %q: action %q from stage %q already handled by %q", name, a, t.From, prev)
				continue
			}
			seenAction[key] = name
		}
		if _, err := condition.Parse(t.Condition); err != nil {
			add("transition %q: %v", name, err)
		}
	}

	ruleIDs := make(map[string]bool, len(d.AutoRules))
	for i, r := range d.AutoRules {
		name := r.ID
		if name == "" {
			add("auto rule %d: id is required", i)
			name = fmt.Sprintf("#%d", i)
		} else if ruleIDs[r.ID] {
			add("auto rule %q: duplicate id", r.ID)
		}
		ruleIDs[r.ID] = true

		if !stages[r.Stage] {
			add("auto rule %q: unknown stage %q", name, r.Stage)
		}
		switch r.Trigger {
		case TriggerOnEnter, TriggerOnExit:
		case TriggerScheduled:
			if _, err := cron.ParseStandard(r.Schedule()); err != nil {
				add("auto rule %q: invalid schedule: %v", name, err)
			}
		default:
			add("auto rule %q: unknown trigger %q", name, r.Trigger)
		}
		if err := validateRuleAction(r.Action); err != nil {
			add("auto rule %q: %v", name, err)
		} else if strings.HasPrefix(r.Action, ActionPrefixScript) {
			if src, _ := r.Params["script"].(string); strings.TrimSpace(src) == "" {
				add("auto rule %q: params.script is required for script actions", name)
			}
		}
		if _, err := condition.Parse(r.Condition); err != nil {
			add("auto rule %q: %v", name, err)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel.ErrInvalidDefinition, errors.Join(problems...))
}

func validateRuleAction(action string) error {
	switch {
	case strings.HasPrefix(action, ActionPrefixCall):
		if strings.TrimSpace(strings.TrimPrefix(action, ActionPrefixCall)) == "" {
			return fmt.Errorf("action %q has no endpoint", action)
		}
	case strings.HasPrefix(action, ActionPrefixScript):
		if strings.TrimSpace(strings.TrimPrefix(action, ActionPrefixScript)) == "" {
			return fmt.Errorf("action %q has no script name", action)
		}
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
	return nil
}
