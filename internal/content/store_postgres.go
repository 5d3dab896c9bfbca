package content

import (
	"context"
	"database/sql"
	"fmt"

	id "claimgate/pkg/domain"
)

// PostgresStore persists memory records. Pure I/O.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, memory *Memory) error {
	query := `
		INSERT INTO memories (id, owner_uid, tenant, lp_id, product_type, title, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		memory.ID.String(),
		memory.OwnerUID,
		memory.Tenant,
		memory.LPID,
		memory.ProductType,
		memory.Title,
		string(memory.Status),
		memory.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, memoryID id.MemoryID) (*Memory, error) {
	query := `
		SELECT id, owner_uid, tenant, lp_id, product_type, title, status, created_at
		FROM memories
		WHERE id = $1
	`
	var (
		memory Memory
		rawID  string
		status string
	)
	err := s.db.QueryRowContext(ctx, query, memoryID.String()).Scan(
		&rawID,
		&memory.OwnerUID,
		&memory.Tenant,
		&memory.LPID,
		&memory.ProductType,
		&memory.Title,
		&status,
		&memory.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find memory: %w", err)
	}
	if memory.ID, err = id.ParseMemoryID(rawID); err != nil {
		return nil, fmt.Errorf("parse memory id: %w", err)
	}
	memory.Status = MemoryStatus(status)
	return &memory, nil
}

func (s *PostgresStore) Delete(ctx context.Context, memoryID id.MemoryID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, memoryID.String())
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}
