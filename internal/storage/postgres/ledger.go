package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/internal/accounts"
	"github.com/mcdev12/gavel/internal/models"
)

// Ledger implements settle.Ledger: each settlement is a single transaction,
// so either every effect lands or none do.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// SettleSold debits the winner, records the acquisition and marks the item
// sold in one transaction. The debit condition (balance >= amount) is part of
// the UPDATE, so a concurrent spend surfaces as ErrInsufficientBalance
// instead of an overdraft.
func (l *Ledger) SettleSold(ctx context.Context, winnerID int64, item models.Item, amount int64) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bidders
		SET balance = balance - $2, total_spent = total_spent + $2, last_active = NOW()
		WHERE id = $1 AND balance >= $2`,
		winnerID, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit winner %d: %w", winnerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: debit winner %d: %w", winnerID, accounts.ErrInsufficientBalance)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO acquisitions (bidder_id, item_id, item_name, amount)
		VALUES ($1, $2, $3, $4)`,
		winnerID, item.ID, item.Name, amount,
	); err != nil {
		return fmt.Errorf("postgres: record acquisition: %w", err)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE items
		SET status = 'SOLD', sold_to = $2, final_price = $3, updated_at = NOW()
		WHERE id = $1`,
		item.ID, winnerID, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark item %s sold: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark item %s sold: item not found", item.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settlement: %w", err)
	}
	return nil
}

// SettleUnsold returns the item to the unsold pool. No monetary effect.
func (l *Ledger) SettleUnsold(ctx context.Context, item models.Item) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE items
		SET status = 'UNSOLD', sold_to = NULL, final_price = NULL, updated_at = NOW()
		WHERE id = $1`,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark item %s unsold: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark item %s unsold: item not found", item.ID)
	}
	return nil
}
