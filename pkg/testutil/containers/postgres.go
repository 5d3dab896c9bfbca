//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with the claim
// gate schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS claim_requests (
	id             UUID PRIMARY KEY,
	email          TEXT NOT NULL,
	tenant         TEXT NOT NULL,
	lp_id          TEXT NOT NULL,
	product_type   TEXT NOT NULL,
	status         TEXT NOT NULL,
	source         TEXT NOT NULL,
	email_changed  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL,
	sent_at        TIMESTAMPTZ,
	claimed_at     TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL,
	claimed_by_uid TEXT,
	memory_id      UUID
);

CREATE INDEX IF NOT EXISTS idx_claim_requests_email_created
	ON claim_requests (email, created_at);

CREATE TABLE IF NOT EXISTS memories (
	id           UUID PRIMARY KEY,
	owner_uid    TEXT NOT NULL,
	tenant       TEXT NOT NULL,
	lp_id        TEXT NOT NULL,
	product_type TEXT NOT NULL,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	log_id     UUID PRIMARY KEY,
	day        TEXT NOT NULL,
	event      TEXT NOT NULL,
	actor      TEXT NOT NULL,
	tenant     TEXT NOT NULL,
	lp_id      TEXT NOT NULL,
	request_id UUID NOT NULL,
	email_hash TEXT NOT NULL,
	metadata   JSONB,
	ts         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_request ON audit_log (request_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_day ON audit_log (day);
`

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("claimgate"),
		tcpostgres.WithUsername("claimgate"),
		tcpostgres.WithPassword("claimgate"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	// The container is owned by the singleton Manager and shared across test
	// suites; Ryuk reaps it after the run, so no t.Cleanup here.
	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// TruncateTables empties the given tables. Use between tests for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", "))
	if _, err := p.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
