package automation

import (
	"fmt"
	"strings"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"
)

type ActionKind string

const (
	ActionCall   ActionKind = "call"
	ActionScript ActionKind = "script"
)

// DispatchRequest identifies the case whose stage rules should fire.
type DispatchRequest struct {
	TenantID   string
	CaseID     string
	Stage      string
	Data       map[string]any
	Definition *workflow.Definition
}

// RuleAction is a parsed AutoRule.Action such as "call:credit_score".
type RuleAction struct {
	Kind   ActionKind
	Target string
}

func ParseAction(action string) (RuleAction, error) {
	kind, target, ok := strings.Cut(action, ":")
	target = strings.TrimSpace(target)
	if !ok || target == "" {
		return RuleAction{}, fmt.Errorf("malformed action %q", action)
	}
	switch ActionKind(kind) {
	case ActionCall, ActionScript:
		return RuleAction{Kind: ActionKind(kind), Target: target}, nil
	}
	return RuleAction{}, fmt.Errorf("unsupported action %q", action)
}

// AutomationFailure is one rule that could not be executed. It is logged,
// never returned to the caller of a transition.
type AutomationFailure struct {
	RuleID string
	Action string
	Err    error
}

func (f *AutomationFailure) Error() string {
	return fmt.Sprintf("auto rule %s (%s): %v", f.RuleID, f.Action, f.Err)
}

func (f *AutomationFailure) Unwrap() error {
	return f.Err
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
