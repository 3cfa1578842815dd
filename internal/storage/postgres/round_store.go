package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/internal/models"
)

// RoundStore persists rounds, including the full bid history as JSONB, so a
// live round can be reconstructed after a restart.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// SaveRound upserts the full round state. The engine calls this after every
// accepted bid and on each status transition.
func (s *RoundStore) SaveRound(ctx context.Context, r *models.Round) error {
	itemJSON, err := json.Marshal(r.Item)
	if err != nil {
		return fmt.Errorf("postgres: marshal round item: %w", err)
	}
	bids := r.Bids
	if bids == nil {
		bids = []models.Bid{}
	}
	bidsJSON, err := json.Marshal(bids)
	if err != nil {
		return fmt.Errorf("postgres: marshal round bids: %w", err)
	}

	var outcome *string
	if r.Outcome != "" {
		o := string(r.Outcome)
		outcome = &o
	}

	const query = `
		INSERT INTO rounds (
			id, session_id, item, status, mode, high_bid, high_bidder,
			bids, duration_sec, outcome, created_at, started_at, ended_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			high_bid = EXCLUDED.high_bid,
			high_bidder = EXCLUDED.high_bidder,
			bids = EXCLUDED.bids,
			duration_sec = EXCLUDED.duration_sec,
			outcome = EXCLUDED.outcome,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.SessionID, itemJSON, string(r.Status), string(r.Mode),
		r.HighBid, r.HighBidder, bidsJSON, r.Duration, outcome,
		r.CreatedAt, r.StartedAt, r.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save round %s: %w", r.ID, err)
	}
	return nil
}

// ActiveRound returns the one round in a live status (ACTIVE, PAUSED or
// FINALIZING), or nil when none exists. Used for crash recovery.
func (s *RoundStore) ActiveRound(ctx context.Context) (*models.Round, error) {
	const query = `
		SELECT id, session_id, item, status, mode, high_bid, high_bidder,
		       bids, duration_sec, outcome, created_at, started_at, ended_at
		FROM rounds
		WHERE status IN ('ACTIVE', 'PAUSED', 'FINALIZING')
		ORDER BY created_at DESC
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query)

	var r models.Round
	var status, mode string
	var outcome *string
	var itemJSON, bidsJSON []byte
	err := row.Scan(
		&r.ID, &r.SessionID, &itemJSON, &status, &mode,
		&r.HighBid, &r.HighBidder, &bidsJSON, &r.Duration,
		&outcome, &r.CreatedAt, &r.StartedAt, &r.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: load active round: %w", err)
	}

	r.Status = models.RoundStatus(status)
	r.Mode = models.RoundMode(mode)
	if outcome != nil {
		r.Outcome = models.RoundOutcome(*outcome)
	}
	if err := json.Unmarshal(itemJSON, &r.Item); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal round item: %w", err)
	}
	if err := json.Unmarshal(bidsJSON, &r.Bids); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal round bids: %w", err)
	}
	return &r, nil
}
