package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/internal/models"
)

// SessionStore persists session records and their running aggregates.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given connection pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// SaveSession upserts a session with its aggregates.
func (s *SessionStore) SaveSession(ctx context.Context, sess *models.Session) error {
	bidders := sess.Bidders
	if bidders == nil {
		bidders = []int64{}
	}

	const query = `
		INSERT INTO sessions (
			id, name, status, items_sold, items_unsold, total_value,
			bidders, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			items_sold = EXCLUDED.items_sold,
			items_unsold = EXCLUDED.items_unsold,
			total_value = EXCLUDED.total_value,
			bidders = EXCLUDED.bidders,
			finished_at = EXCLUDED.finished_at`

	_, err := s.pool.Exec(ctx, query,
		sess.ID, sess.Name, string(sess.Status),
		sess.ItemsSold, sess.ItemsUnsold, sess.TotalValue,
		bidders, sess.StartedAt, sess.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save session %s: %w", sess.ID, err)
	}
	return nil
}

// ActiveSession returns the current ACTIVE session, or nil when none exists.
func (s *SessionStore) ActiveSession(ctx context.Context) (*models.Session, error) {
	const query = `
		SELECT id, name, status, items_sold, items_unsold, total_value,
		       bidders, started_at, finished_at
		FROM sessions
		WHERE status = 'ACTIVE'
		ORDER BY started_at DESC
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query)

	var sess models.Session
	var status string
	err := row.Scan(
		&sess.ID, &sess.Name, &status,
		&sess.ItemsSold, &sess.ItemsUnsold, &sess.TotalValue,
		&sess.Bidders, &sess.StartedAt, &sess.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: load active session: %w", err)
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}
