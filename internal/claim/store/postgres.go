package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"claimgate/internal/claim/models"
	id "claimgate/pkg/domain"
	emailpkg "claimgate/pkg/email"
)

// PostgresStore persists claim requests. Pure I/O; transition guards live on
// the model and in the services. UpdateIfStatus takes a row lock (FOR
// UPDATE) so the status check and the write are one atomic step.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const claimColumns = `id, email, tenant, lp_id, product_type, status, source, email_changed,
	created_at, sent_at, claimed_at, updated_at, claimed_by_uid, memory_id`

func (s *PostgresStore) Create(ctx context.Context, req *models.ClaimRequest) error {
	query := `
		INSERT INTO claim_requests (` + claimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query, claimArgs(req)...)
	if err != nil {
		return fmt.Errorf("create claim request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.ClaimRequest, error) {
	query := `SELECT ` + claimColumns + ` FROM claim_requests WHERE id = $1`
	req, err := scanClaimRequest(s.db.QueryRowContext(ctx, query, requestID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find claim request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) UpdateIfStatus(ctx context.Context, requestID id.RequestID, expect models.Status, mutate func(*models.ClaimRequest)) (*models.ClaimRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + claimColumns + ` FROM claim_requests WHERE id = $1 FOR UPDATE`
	req, err := scanClaimRequest(tx.QueryRowContext(ctx, query, requestID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock claim request: %w", err)
	}
	if req.Status != expect {
		return nil, ErrStatusConflict
	}

	mutate(req)

	update := `
		UPDATE claim_requests
		SET email = $2, status = $3, email_changed = $4, sent_at = $5,
		    claimed_at = $6, updated_at = $7, claimed_by_uid = $8, memory_id = $9
		WHERE id = $1
	`
	var memoryID any
	if !req.MemoryID.IsNil() {
		memoryID = req.MemoryID.String()
	}
	_, err = tx.ExecContext(ctx, update,
		req.ID.String(),
		req.Email,
		string(req.Status),
		req.EmailChanged,
		req.SentAt,
		req.ClaimedAt,
		req.UpdatedAt,
		nullIfEmpty(req.ClaimedByUID),
		memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("update claim request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim update: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) HasActiveByEmailSince(ctx context.Context, email string, cutoff time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM claim_requests
			WHERE email = $1 AND status IN ('pending', 'sent') AND created_at > $2
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, emailpkg.Normalize(email), cutoff).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active claim requests: %w", err)
	}
	return exists, nil
}

func claimArgs(req *models.ClaimRequest) []any {
	var memoryID any
	if !req.MemoryID.IsNil() {
		memoryID = req.MemoryID.String()
	}
	return []any{
		req.ID.String(),
		req.Email,
		req.Tenant,
		req.LPID,
		req.ProductType,
		string(req.Status),
		string(req.Source),
		req.EmailChanged,
		req.CreatedAt,
		req.SentAt,
		req.ClaimedAt,
		req.UpdatedAt,
		nullIfEmpty(req.ClaimedByUID),
		memoryID,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaimRequest(row rowScanner) (*models.ClaimRequest, error) {
	var (
		req          models.ClaimRequest
		rawID        string
		status       string
		source       string
		claimedByUID sql.NullString
		memoryID     sql.NullString
	)
	err := row.Scan(
		&rawID,
		&req.Email,
		&req.Tenant,
		&req.LPID,
		&req.ProductType,
		&status,
		&source,
		&req.EmailChanged,
		&req.CreatedAt,
		&req.SentAt,
		&req.ClaimedAt,
		&req.UpdatedAt,
		&claimedByUID,
		&memoryID,
	)
	if err != nil {
		return nil, err
	}
	if req.ID, err = id.ParseRequestID(rawID); err != nil {
		return nil, fmt.Errorf("parse claim request id: %w", err)
	}
	req.Status = models.Status(status)
	req.Source = models.Source(source)
	req.ClaimedByUID = claimedByUID.String
	if memoryID.Valid {
		if req.MemoryID, err = id.ParseMemoryID(memoryID.String); err != nil {
			return nil, fmt.Errorf("parse memory id: %w", err)
		}
	}
	return &req, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
