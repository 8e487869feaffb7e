package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
)

const definitionColumns = `tenant_id, workflow_id, version, name, description, is_active,
	stages, transitions, auto_rules, created_by, created_at`

type PostgresDefinitionRepository struct {
	db *sql.DB
}

func NewPostgresDefinitionRepository(pg *database.PostgresDB) DefinitionRepository {
	return &PostgresDefinitionRepository{db: pg.DB}
}

// EnsureIndexes is a no-op; the schema owns the constraints.
func (r *PostgresDefinitionRepository) EnsureIndexes(context.Context) error {
	return nil
}

func (r *PostgresDefinitionRepository) FindActive(ctx context.Context, tenantID, workflowID string) (*Definition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions
		WHERE tenant_id = $1 AND workflow_id = $2 AND is_active
		ORDER BY version DESC LIMIT 1`, tenantID, workflowID)
	return scanDefinition(row)
}

func (r *PostgresDefinitionRepository) FindVersion(ctx context.Context, tenantID, workflowID string, version int) (*Definition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions
		WHERE tenant_id = $1 AND workflow_id = $2 AND version = $3`, tenantID, workflowID, version)
	return scanDefinition(row)
}

func (r *PostgresDefinitionRepository) ListActive(ctx context.Context, tenantID string) ([]Definition, error) {
	return r.list(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions
		WHERE tenant_id = $1 AND is_active ORDER BY name, workflow_id`, tenantID)
}

func (r *PostgresDefinitionRepository) ListAllActive(ctx context.Context) ([]Definition, error) {
	return r.list(ctx, `SELECT `+definitionColumns+` FROM workflow_definitions
		WHERE is_active ORDER BY tenant_id, name, workflow_id`)
}

func (r *PostgresDefinitionRepository) list(ctx context.Context, query string, args ...any) ([]Definition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := []Definition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func (r *PostgresDefinitionRepository) CreateVersion(ctx context.Context, def *Definition) error {
	stages, err := json.Marshal(def.Stages)
	if err != nil {
		return err
	}
	transitions, err := json.Marshal(def.Transitions)
	if err != nil {
		return err
	}
	rules, err := json.Marshal(def.AutoRules)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serializes version assignment per workflow family.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '/' || $2))`,
		def.TenantID, def.WorkflowID); err != nil {
		return fmt.Errorf("lock workflow %s: %w", def.WorkflowID, err)
	}

	var latest int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM workflow_definitions
		WHERE tenant_id = $1 AND workflow_id = $2`, def.TenantID, def.WorkflowID).Scan(&latest); err != nil {
		return err
	}
	def.Version = latest + 1

	if def.IsActive {
		if _, err := tx.ExecContext(ctx, `UPDATE workflow_definitions SET is_active = FALSE
			WHERE tenant_id = $1 AND workflow_id = $2 AND is_active`, def.TenantID, def.WorkflowID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO workflow_definitions (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		def.TenantID, def.WorkflowID, def.Version, def.Name, def.Description, def.IsActive,
		stages, transitions, rules, def.CreatedBy, def.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("workflow %s version %d: %w", def.WorkflowID, def.Version, sentinel.ErrConflict)
		}
		return err
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var (
		def                       Definition
		stages, transitions, rule []byte
	)
	err := row.Scan(&def.TenantID, &def.WorkflowID, &def.Version, &def.Name, &def.Description, &def.IsActive,
		&stages, &transitions, &rule, &def.CreatedBy, &def.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stages, &def.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	if err := json.Unmarshal(transitions, &def.Transitions); err != nil {
		return nil, fmt.Errorf("decode transitions: %w", err)
	}
	if err := json.Unmarshal(rule, &def.AutoRules); err != nil {
		return nil, fmt.Errorf("decode auto rules: %w", err)
	}
	return &def, nil
}
