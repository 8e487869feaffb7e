package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"
	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
)

const caseColumns = `id, tenant_id, type, workflow_id, current_stage, status, priority,
	assigned_to, created_by, data, metadata, version, created_at, updated_at`

type PostgresCaseRepository struct {
	db      *sql.DB
	q       database.Execer
	locking bool
	timeout time.Duration
}

func NewPostgresCaseRepository(pg *database.PostgresDB, cfg *config.Config) *PostgresCaseRepository {
	return &PostgresCaseRepository{db: pg.DB, q: pg.DB, timeout: cfg.TxTimeout}
}

// EnsureIndexes is a no-op; database.EnsureSchema owns the indexes.
func (r *PostgresCaseRepository) EnsureIndexes(context.Context) error {
	return nil
}

func (r *PostgresCaseRepository) RunInTx(ctx context.Context, fn func(txCtx context.Context, repo CaseRepository) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	ctx, cancel := withTxTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Reads inside the transaction take row locks so concurrent
	// transitions on one case serialize.
	if err := fn(ctx, &PostgresCaseRepository{db: r.db, q: tx, locking: true, timeout: r.timeout}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresCaseRepository) Create(ctx context.Context, c *Case) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `INSERT INTO cases (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.TenantID, c.Type, c.WorkflowID, c.CurrentStage, c.Status, c.Priority,
		c.AssignedTo, c.CreatedBy, data, metadata, c.Version, c.CreatedAt, c.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
	}
	return err
}

func (r *PostgresCaseRepository) Get(ctx context.Context, tenantID, id string) (*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1 AND tenant_id = $2`
	if r.locking {
		query += ` FOR UPDATE`
	}
	return scanCase(r.q.QueryRowContext(ctx, query, id, tenantID))
}

func (r *PostgresCaseRepository) UpdateStageAndData(ctx context.Context, tenantID, id string, expectedVersion int64, stage string, data map[string]any) (*Case, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	row := r.q.QueryRowContext(ctx, `UPDATE cases
		SET current_stage = $1, data = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND tenant_id = $5 AND version = $6
		RETURNING `+caseColumns,
		stage, payload, time.Now().UTC(), id, tenantID, expectedVersion)
	c, err := scanCase(row)
	if errors.Is(err, ErrCaseNotFound) {
		if _, getErr := r.Get(ctx, tenantID, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("case %s changed since version %d: %w", id, expectedVersion, sentinel.ErrConflict)
	}
	return c, err
}

func (r *PostgresCaseRepository) List(ctx context.Context, tenantID string, filter CaseFilter) ([]Case, int64, error) {
	filter = filter.Normalize()

	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, column+" = $"+strconv.Itoa(len(args)))
	}
	add("status", filter.Status)
	add("assigned_to", filter.AssignedTo)
	add("type", filter.Type)
	add("workflow_id", filter.WorkflowID)
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	out, err := r.list(ctx, `SELECT `+caseColumns+` FROM cases WHERE `+clause+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresCaseRepository) ListInStage(ctx context.Context, tenantID, workflowID, stage string) ([]Case, error) {
	return r.list(ctx, `SELECT `+caseColumns+` FROM cases
		WHERE tenant_id = $1 AND workflow_id = $2 AND current_stage = $3 AND status = $4
		ORDER BY created_at`, tenantID, workflowID, stage, StatusActive)
}

func (r *PostgresCaseRepository) list(ctx context.Context, query string, args ...any) ([]Case, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*Case, error) {
	var (
		c              Case
		data, metadata []byte
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.Type, &c.WorkflowID, &c.CurrentStage, &c.Status, &c.Priority,
		&c.AssignedTo, &c.CreatedBy, &data, &metadata, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &c.Data); err != nil {
		return nil, fmt.Errorf("decode case data: %w", err)
	}
	if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode case metadata: %w", err)
	}
	if c.Data == nil {
		c.Data = map[string]any{}
	}
	return &c, nil
}
