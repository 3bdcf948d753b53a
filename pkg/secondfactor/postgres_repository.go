package secondfactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionRepository implements SessionRepository on a two-column
// notes table, for hosts that already persist login sessions in Postgres.
//
// Expected schema:
//
//	CREATE TABLE flow_session_notes (
//	    session_id TEXT NOT NULL,
//	    note       TEXT NOT NULL,
//	    value      TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (session_id, note)
//	);
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository creates a Postgres-backed session repository
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

func (r *PostgresSessionRepository) GetNote(ctx context.Context, sessionID, name string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM flow_session_notes WHERE session_id = $1 AND note = $2`,
		sessionID, name,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session note: %w", err)
	}
	return value, nil
}

func (r *PostgresSessionRepository) SetNote(ctx context.Context, sessionID, name, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO flow_session_notes (session_id, note, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id, note) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		sessionID, name, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set session note: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM flow_session_notes WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
