package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/internal/auction/outbox"
)

// OutboxStore implements outbox.Store: events are written here in the same
// database as the state they describe and published to the broker
// asynchronously by the outbox worker.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore creates an OutboxStore backed by the given connection pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) Insert(ctx context.Context, rec outbox.Record) error {
	var roundID, sessionID *string
	if rec.RoundID != "" {
		roundID = &rec.RoundID
	}
	if rec.SessionID != "" {
		sessionID = &rec.SessionID
	}

	const query = `
		INSERT INTO outbox (event_id, round_id, session_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		rec.EventID, roundID, sessionID, rec.EventType, rec.Payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert outbox event %s: %w", rec.EventID, err)
	}
	return nil
}

// FetchUnpublished returns up to limit unpublished records in insertion
// order.
func (s *OutboxStore) FetchUnpublished(ctx context.Context, limit int) ([]outbox.Record, error) {
	const query = `
		SELECT seq, event_id, round_id, session_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var out []outbox.Record
	for rows.Next() {
		var rec outbox.Record
		var roundID, sessionID *string
		if err := rows.Scan(&rec.Seq, &rec.EventID, &roundID, &sessionID, &rec.EventType, &rec.Payload); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox event: %w", err)
		}
		if roundID != nil {
			rec.RoundID = *roundID
		}
		if sessionID != nil {
			rec.SessionID = *sessionID
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkPublished(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	const query = `UPDATE outbox SET published_at = NOW() WHERE seq = ANY($1)`
	if _, err := s.pool.Exec(ctx, query, seqs); err != nil {
		return fmt.Errorf("postgres: mark outbox events published: %w", err)
	}
	return nil
}
