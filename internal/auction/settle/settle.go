// Package settle applies the monetary and inventory consequence of a
// finalized round: debit the winner, record the acquisition, move the item
// out of (or back into) the pool.
package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/internal/models"
	"github.com/rs/zerolog/log"
)

// Outcome is the terminal result handed off by the round engine.
type Outcome struct {
	RoundID  uuid.UUID
	Item     models.Item
	Result   models.RoundOutcome
	WinnerID *int64
	Amount   int64
}

// Confirmation reports that settlement was durably applied. The round uses
// it only to log and emit the outcome event; settlement is terminal and not
// retried once confirmed.
type Confirmation struct {
	RoundID   uuid.UUID
	Result    models.RoundOutcome
	SettledAt time.Time
}

// Ledger is the storage collaborator that applies a settlement as one
// transaction. If any effect fails, none may be visible.
type Ledger interface {
	// SettleSold debits the winner, records the acquisition and marks the
	// item sold, atomically. The debit must be conditional on sufficient
	// balance so a retry can never double-charge.
	SettleSold(ctx context.Context, winnerID int64, item models.Item, amount int64) error
	// SettleUnsold returns the item to the unsold pool. No monetary effect.
	SettleUnsold(ctx context.Context, item models.Item) error
}

// Handler turns outcomes into ledger effects.
type Handler struct {
	ledger Ledger
	clock  clockwork.Clock
}

// NewHandler creates a settlement handler.
func NewHandler(ledger Ledger, clk clockwork.Clock) *Handler {
	return &Handler{ledger: ledger, clock: clk}
}

// Settle applies the outcome. An error means nothing was applied; the caller
// holds the round in its finalizing state and retries or escalates, it never
// marks the round completed.
func (h *Handler) Settle(ctx context.Context, outcome Outcome) (Confirmation, error) {
	switch outcome.Result {
	case models.RoundOutcomeSold:
		if outcome.WinnerID == nil {
			return Confirmation{}, fmt.Errorf("sold outcome for round %s has no winner", outcome.RoundID)
		}
		if err := h.ledger.SettleSold(ctx, *outcome.WinnerID, outcome.Item, outcome.Amount); err != nil {
			return Confirmation{}, fmt.Errorf("failed to settle sold round %s: %w", outcome.RoundID, err)
		}
		log.Info().
			Str("round_id", outcome.RoundID.String()).
			Int64("winner_id", *outcome.WinnerID).
			Int64("amount", outcome.Amount).
			Str("item", outcome.Item.Name).
			Msg("round settled as sold")

	case models.RoundOutcomeUnsold:
		if err := h.ledger.SettleUnsold(ctx, outcome.Item); err != nil {
			return Confirmation{}, fmt.Errorf("failed to settle unsold round %s: %w", outcome.RoundID, err)
		}
		log.Info().
			Str("round_id", outcome.RoundID.String()).
			Str("item", outcome.Item.Name).
			Msg("round settled as unsold")

	default:
		return Confirmation{}, fmt.Errorf("unknown outcome %q for round %s", outcome.Result, outcome.RoundID)
	}

	return Confirmation{
		RoundID:   outcome.RoundID,
		Result:    outcome.Result,
		SettledAt: h.clock.Now(),
	}, nil
}
