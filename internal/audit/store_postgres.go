package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	id "claimgate/pkg/domain"
)

// PostgresStore persists audit entries. Pure I/O; the Recorder owns entry
// construction. The audit_log table carries no UPDATE or DELETE paths.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	query := `
		INSERT INTO audit_log (log_id, day, event, actor, tenant, lp_id, request_id, email_hash, metadata, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.LogID,
		entry.Day,
		string(entry.Event),
		entry.Actor,
		entry.Tenant,
		entry.LPID,
		entry.RequestID.String(),
		entry.EmailHash,
		metadata,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRequest(ctx context.Context, requestID id.RequestID) ([]Entry, error) {
	query := `
		SELECT log_id, day, event, actor, tenant, lp_id, request_id, email_hash, metadata, ts
		FROM audit_log
		WHERE request_id = $1
		ORDER BY ts
	`
	return s.list(ctx, query, requestID.String())
}

func (s *PostgresStore) ListByDay(ctx context.Context, day string) ([]Entry, error) {
	query := `
		SELECT log_id, day, event, actor, tenant, lp_id, request_id, email_hash, metadata, ts
		FROM audit_log
		WHERE day = $1
		ORDER BY ts
	`
	return s.list(ctx, query, day)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			event     string
			requestID string
			metadata  []byte
		)
		if err := rows.Scan(
			&entry.LogID,
			&entry.Day,
			&event,
			&entry.Actor,
			&entry.Tenant,
			&entry.LPID,
			&requestID,
			&entry.EmailHash,
			&metadata,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Event = Event(event)
		if entry.RequestID, err = id.ParseRequestID(requestID); err != nil {
			return nil, fmt.Errorf("parse audit request id: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
