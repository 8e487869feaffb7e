package cases

import (
	"fmt"
	"maps"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
)

var ErrCaseNotFound = fmt.Errorf("case %w", sentinel.ErrNotFound)

const (
	TypeLoan    = "loan"
	TypeGeneric = "generic"

	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusOnHold    = "on_hold"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Case is a unit of work moving through a workflow. Only the engine
// changes CurrentStage and Data after creation.
type Case struct {
	ID           string         `json:"id" bson:"_id"`
	TenantID     string         `json:"tenantId" bson:"tenant_id"`
	Type         string         `json:"type" bson:"type"`
	WorkflowID   string         `json:"workflowId" bson:"workflow_id"`
	CurrentStage string         `json:"currentStage" bson:"current_stage"`
	Status       string         `json:"status" bson:"status"`
	Priority     string         `json:"priority" bson:"priority"`
	AssignedTo   string         `json:"assignedTo,omitempty" bson:"assigned_to"`
	CreatedBy    string         `json:"createdBy,omitempty" bson:"created_by"`
	Data         map[string]any `json:"data" bson:"data"`
	Metadata     map[string]any `json:"metadata,omitempty" bson:"metadata"`
	Version      int64          `json:"version" bson:"version"`
	CreatedAt    time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" bson:"updated_at"`
}

// Clone returns a copy whose maps can be mutated without touching c.
func (c *Case) Clone() *Case {
	out := *c
	out.Data = maps.Clone(c.Data)
	out.Metadata = maps.Clone(c.Metadata)
	return &out
}

type CaseFilter struct {
	Status     string
	AssignedTo string
	Type       string
	WorkflowID string
	Limit      int64
	Offset     int64
}

// Normalize clamps paging to sane bounds.
func (f CaseFilter) Normalize() CaseFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f CaseFilter) matches(c *Case) bool {
	return (f.Status == "" || c.Status == f.Status) &&
		(f.AssignedTo == "" || c.AssignedTo == f.AssignedTo) &&
		(f.Type == "" || c.Type == f.Type) &&
		(f.WorkflowID == "" || c.WorkflowID == f.WorkflowID)
}

type CreateCaseInput struct {
	Type       string         `json:"type"`
	WorkflowID string         `json:"workflowId"`
	Priority   string         `json:"priority"`
	AssignedTo string         `json:"assignedTo"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata"`
}

func validType(t string) bool {
	return t == TypeLoan || t == TypeGeneric
}

func validPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
