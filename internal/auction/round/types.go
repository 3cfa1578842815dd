package round

import (
	"context"

	"github.com/mcdev12/gavel/internal/auction/events"
	"github.com/mcdev12/gavel/internal/auction/settle"
	"github.com/mcdev12/gavel/internal/models"
)

// FinalizeTrigger names what caused a finalization attempt.
type FinalizeTrigger string

const (
	TriggerTimer      FinalizeTrigger = "timer"
	TriggerFinalCall  FinalizeTrigger = "final_call"
	TriggerSkip       FinalizeTrigger = "skip"
	TriggerStuckSweep FinalizeTrigger = "stuck_sweep"
)

// AccountReader is the balance/ban view the engine needs from the accounts
// collaborator. The engine never caches what it reads.
type AccountReader interface {
	GetBalance(ctx context.Context, bidderID int64) (int64, error)
	IsBanned(ctx context.Context, bidderID int64) (bool, error)
}

// Repository persists round state so a crash mid-round cannot lose
// settlement obligations.
type Repository interface {
	SaveRound(ctx context.Context, r *models.Round) error
}

// Recorder accepts emitted events for asynchronous delivery. The engine
// mutates state and records events; it never talks to a transport.
type Recorder interface {
	Record(ctx context.Context, ev events.Event) error
}

// Settler applies the monetary/inventory consequence of a finalized round.
type Settler interface {
	Settle(ctx context.Context, outcome settle.Outcome) (settle.Confirmation, error)
}

// Snapshot is a read-only copy of the engine's current state for gateways
// and caches.
type Snapshot struct {
	Round        models.Round `json:"round"`
	RemainingSec int          `json:"remaining_sec"`
	// SettlementPending is set when finalization succeeded but settlement
	// has not yet been confirmed.
	SettlementPending bool   `json:"settlement_pending"`
	SettlementError   string `json:"settlement_error,omitempty"`
}
