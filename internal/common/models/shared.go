package models

import (
	"strings"
	"time"
)

type ContextKey string

const (
	TenantIDKey ContextKey = "tenant_id"
	ActorIDKey  ContextKey = "actor_id"
)

// SystemActor is recorded as the actor for writes not triggered by a user.
const SystemActor = "system"

type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
)

// TransitionAuditAction builds the audit action recorded for an executed transition, e.g. TRANSITION_APPROVE.
func TransitionAuditAction(action string) AuditAction {
	return AuditAction("TRANSITION_" + strings.ToUpper(action))
}

// Audited entity types.
const (
	EntityCase               = "case"
	EntityWorkflowDefinition = "workflow_definition"
)

type AuditLog struct {
	ID         string         `bson:"_id" json:"id"`
	TenantID   string         `bson:"tenant_id" json:"tenant_id"`
	ActorID    string         `bson:"actor_id" json:"actor_id"`
	ActorName  string         `bson:"-" json:"actor_name,omitempty"` // Populated at read time
	ActorEmail string         `bson:"-" json:"actor_email,omitempty"`
	EntityType string         `bson:"entity_type" json:"entity_type"`
	EntityID   string         `bson:"entity_id" json:"entity_id"`
	Action     AuditAction    `bson:"action" json:"action"`
	OldValue   map[string]any `bson:"old_value,omitempty" json:"old_value,omitempty"`
	NewValue   map[string]any `bson:"new_value,omitempty" json:"new_value,omitempty"`
	Metadata   map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp  time.Time      `bson:"timestamp" json:"timestamp"`
}

type User struct {
	ID        string    `bson:"_id" json:"id"`
	TenantID  string    `bson:"tenant_id" json:"tenant_id"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Role      string    `bson:"role" json:"role"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type Log struct {
	Message      string    `bson:"message" json:"message"`
	Level        string    `bson:"level" json:"level"`
	LogLevelId   int       `bson:"log_level_id" json:"log_level_id"`
	TenantID     string    `bson:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	CaseID       string    `bson:"case_id,omitempty" json:"case_id,omitempty"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	AppID        string    `bson:"app_id" json:"app_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
