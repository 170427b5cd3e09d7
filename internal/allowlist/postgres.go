package allowlist

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/token_ledger/internal/account"
)

// PostgresStore keeps the allowlist in the allowlist table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds an allowlist backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Contains reports whether id has been allowed.
func (s *PostgresStore) Contains(ctx context.Context, id account.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM allowlist WHERE account_id = $1)`, id.String()).Scan(&exists)
	return exists, err
}

// MarkAllowed inserts id unless it is already present.
func (s *PostgresStore) MarkAllowed(ctx context.Context, id account.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `INSERT INTO allowlist (account_id, created_at) VALUES ($1, now())
        ON CONFLICT (account_id) DO NOTHING`, id.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
