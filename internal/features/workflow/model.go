package workflow

import (
	"slices"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/condition"
)

type Trigger string

const (
	TriggerOnEnter   Trigger = "onEnter"
	TriggerOnExit    Trigger = "onExit"
	TriggerScheduled Trigger = "scheduled"
)

// Stage is a node in the workflow graph.
type Stage struct {
	ID             string   `json:"id" bson:"id"`
	Label          string   `json:"label" bson:"label"`
	Description    string   `json:"description,omitempty" bson:"description,omitempty"`
	SLAHours       *int     `json:"slaHours,omitempty" bson:"sla_hours,omitempty"`
	AssignedRoles  []string `json:"assignedRoles,omitempty" bson:"assigned_roles,omitempty"`
	RequiredFields []string `json:"requiredFields,omitempty" bson:"required_fields,omitempty"`
}

// Transition is a role-gated edge. Actions are the verbs that select it.
type Transition struct {
	ID        string   `json:"id" bson:"id"`
	From      string   `json:"from" bson:"from"`
	To        string   `json:"to" bson:"to"`
	Condition string   `json:"condition" bson:"condition"`
	Roles     []string `json:"roles" bson:"roles"`
	Actions   []string `json:"actions" bson:"actions"`
}

type AutoRule struct {
	ID        string         `json:"id" bson:"id"`
	Stage     string         `json:"stage" bson:"stage"`
	Trigger   Trigger        `json:"trigger" bson:"trigger"`
	Action    string         `json:"action" bson:"action"`
	Params    map[string]any `json:"params,omitempty" bson:"params,omitempty"`
	Condition string         `json:"condition,omitempty" bson:"condition,omitempty"`
}

// Definition is one immutable version of a tenant's workflow.
type Definition struct {
	TenantID    string       `json:"tenantId" bson:"tenant_id"`
	WorkflowID  string       `json:"workflowId" bson:"workflow_id"`
	Version     int          `json:"version" bson:"version"`
	Name        string       `json:"name" bson:"name"`
	Description string       `json:"description,omitempty" bson:"description"`
	IsActive    bool         `json:"isActive" bson:"is_active"`
	Stages      []Stage      `json:"stages" bson:"stages"`
	Transitions []Transition `json:"transitions" bson:"transitions"`
	AutoRules   []AutoRule   `json:"autoRules" bson:"auto_rules"`
	CreatedBy   string       `json:"createdBy,omitempty" bson:"created_by"`
	CreatedAt   time.Time    `json:"createdAt" bson:"created_at"`
}

// DefinitionDraft is the caller-supplied content of a new version.
type DefinitionDraft struct {
	WorkflowID  string       `json:"workflowId"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	IsActive    *bool        `json:"isActive"`
	Stages      []Stage      `json:"stages"`
	Transitions []Transition `json:"transitions"`
	AutoRules   []AutoRule   `json:"autoRules"`
}

// Active reports whether the draft should become the active version. Defaults to true.
func (d DefinitionDraft) Active() bool {
	return d.IsActive == nil || *d.IsActive
}

// Stage returns the stage with the given id.
func (d *Definition) Stage(id string) (Stage, bool) {
	for _, s := range d.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// InitialStage is the first declared stage.
func (d *Definition) InitialStage() (Stage, bool) {
	if len(d.Stages) == 0 {
		return Stage{}, false
	}
	return d.Stages[0], true
}

// FindTransition returns the first transition leaving stage that accepts action.
func (d *Definition) FindTransition(stage, action string) (*Transition, bool) {
	for i := range d.Transitions {
		t := &d.Transitions[i]
		if t.From == stage && slices.Contains(t.Actions, action) {
			return t, true
		}
	}
	return nil, false
}

// TransitionsFrom lists transitions leaving stage in declaration order.
func (d *Definition) TransitionsFrom(stage string) []*Transition {
	var out []*Transition
	for i := range d.Transitions {
		if d.Transitions[i].From == stage {
			out = append(out, &d.Transitions[i])
		}
	}
	return out
}

// RulesFor returns the auto-rules bound to stage for trigger, in declaration order.
func (d *Definition) RulesFor(stage string, trigger Trigger) []AutoRule {
	var out []AutoRule
	for _, r := range d.AutoRules {
		if r.Stage == stage && r.Trigger == trigger {
			out = append(out, r)
		}
	}
	return out
}

// AllowsRole reports whether role may execute the transition.
func (t *Transition) AllowsRole(role string) bool {
	return role != "" && slices.Contains(t.Roles, role)
}

// Guard parses the transition condition. An unparseable stored condition never holds.
func (t *Transition) Guard() condition.Predicate {
	return guardOf(t.Condition)
}

// Guard parses the rule condition; an empty condition always holds.
func (r AutoRule) Guard() condition.Predicate {
	return guardOf(r.Condition)
}

func guardOf(expr string) condition.Predicate {
	p, err := condition.Parse(expr)
	if err != nil {
		return condition.Predicate{Source: expr, Never: true}
	}
	return p
}
