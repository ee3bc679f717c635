package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists mappings in the sender_sessions table created by
// cmd/migrate.
type PostgresStore struct {
	pool pgQuerier
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithQuerier(q pgQuerier) *PostgresStore {
	if q == nil {
		panic("session: querier required")
	}
	return &PostgresStore{pool: q}
}

func (s *PostgresStore) Lookup(ctx context.Context, senderID string) (string, bool, error) {
	var contextID string
	err := s.pool.QueryRow(ctx,
		`SELECT context_id FROM sender_sessions WHERE sender_id = $1`,
		senderID,
	).Scan(&contextID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: lookup %s: %w", senderID, err)
	}
	return contextID, true, nil
}

func (s *PostgresStore) Store(ctx context.Context, senderID, contextID string) error {
	if err := validateKeys(senderID, contextID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sender_sessions (sender_id, context_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sender_id) DO UPDATE SET
			context_id = EXCLUDED.context_id,
			updated_at = NOW()
	`, senderID, contextID)
	if err != nil {
		return fmt.Errorf("session: store %s: %w", senderID, err)
	}
	return nil
}
