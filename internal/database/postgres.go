package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
)

type PostgresDB struct {
	DB *sql.DB
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const schema = `
CREATE TABLE IF NOT EXISTS workflow_definitions (
	tenant_id    TEXT        NOT NULL,
	workflow_id  TEXT        NOT NULL,
	version      INTEGER     NOT NULL,
	name         TEXT        NOT NULL,
	description  TEXT        NOT NULL DEFAULT '',
	is_active    BOOLEAN     NOT NULL DEFAULT FALSE,
	stages       JSONB       NOT NULL,
	transitions  JSONB       NOT NULL,
	auto_rules   JSONB       NOT NULL DEFAULT '[]',
	created_by   TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, workflow_id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS workflow_definitions_single_active
	ON workflow_definitions (tenant_id, workflow_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS cases (
	id            TEXT        PRIMARY KEY,
	tenant_id     TEXT        NOT NULL,
	type          TEXT        NOT NULL,
	workflow_id   TEXT        NOT NULL,
	current_stage TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	priority      TEXT        NOT NULL,
	assigned_to   TEXT        NOT NULL DEFAULT '',
	created_by    TEXT        NOT NULL DEFAULT '',
	data          JSONB       NOT NULL DEFAULT '{}',
	metadata      JSONB       NOT NULL DEFAULT '{}',
	version       BIGINT      NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS cases_tenant_workflow_stage
	ON cases (tenant_id, workflow_id, current_stage);
`

// NewPostgres opens and verifies a PostgreSQL connection pool.
func NewPostgres(ctx context.Context, dsn string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Println("Connected to PostgreSQL!")
	return &PostgresDB{DB: db}, nil
}

// EnsureSchema creates the case and definition tables when missing.
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	return p.DB.Close()
}
