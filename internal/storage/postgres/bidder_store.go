package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/internal/accounts"
	"github.com/mcdev12/gavel/internal/models"
)

// BidderStore implements accounts.Repository using PostgreSQL.
type BidderStore struct {
	pool *pgxpool.Pool
}

// NewBidderStore creates a BidderStore backed by the given connection pool.
func NewBidderStore(pool *pgxpool.Pool) *BidderStore {
	return &BidderStore{pool: pool}
}

func (s *BidderStore) CreateBidder(ctx context.Context, b models.Bidder) error {
	const query = `
		INSERT INTO bidders (id, name, balance, total_spent, banned, ban_reason)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		b.ID, b.Name, b.Balance, b.TotalSpent, b.Banned, b.BanReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bidder %d: %w", b.ID, err)
	}
	return nil
}

const bidderSelectCols = `id, name, balance, total_spent, banned, ban_reason, created_at, last_active`

func scanBidder(scanner interface{ Scan(dest ...any) error }) (models.Bidder, error) {
	var b models.Bidder
	err := scanner.Scan(
		&b.ID, &b.Name, &b.Balance, &b.TotalSpent,
		&b.Banned, &b.BanReason, &b.CreatedAt, &b.LastActive,
	)
	return b, err
}

func (s *BidderStore) GetBidder(ctx context.Context, id int64) (*models.Bidder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bidderSelectCols+` FROM bidders WHERE id = $1`, id)
	b, err := scanBidder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get bidder %d: %w", id, err)
	}
	return &b, nil
}

// Debit subtracts amount only when the balance covers it. The condition is
// part of the UPDATE so concurrent debits cannot overdraw.
func (s *BidderStore) Debit(ctx context.Context, id int64, amount int64) error {
	const query = `
		UPDATE bidders
		SET balance = balance - $2, total_spent = total_spent + $2, last_active = NOW()
		WHERE id = $1 AND balance >= $2`
	tag, err := s.pool.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: debit bidder %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM bidders WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: debit bidder %d: %w", id, err)
		}
		if !exists {
			return accounts.ErrNotFound
		}
		return accounts.ErrInsufficientBalance
	}
	return nil
}

func (s *BidderStore) SetBanned(ctx context.Context, id int64, banned bool, reason *string) error {
	const query = `UPDATE bidders SET banned = $2, ban_reason = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, banned, reason)
	if err != nil {
		return fmt.Errorf("postgres: set banned for bidder %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (s *BidderStore) RecordAcquisition(ctx context.Context, id int64, itemName string, amount int64) error {
	const query = `
		INSERT INTO acquisitions (bidder_id, item_id, item_name, amount)
		SELECT $1, i.id, $2, $3 FROM items i WHERE i.name = $2
		LIMIT 1`
	_, err := s.pool.Exec(ctx, query, id, itemName, amount)
	if err != nil {
		return fmt.Errorf("postgres: record acquisition for bidder %d: %w", id, err)
	}
	return nil
}

func (s *BidderStore) ListBidders(ctx context.Context, includeBanned bool) ([]models.Bidder, error) {
	query := `SELECT ` + bidderSelectCols + ` FROM bidders`
	if !includeBanned {
		query += ` WHERE NOT banned`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bidders: %w", err)
	}
	defer rows.Close()

	var out []models.Bidder
	for rows.Next() {
		b, err := scanBidder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bidder: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
