package round

import "errors"

var (
	// ErrNotPending is returned when opening a round that already ran.
	ErrNotPending = errors.New("round is not pending")
	// ErrNotActive is returned for operations that need a live round.
	ErrNotActive = errors.New("round is not active")
	// ErrNotPaused is returned when resuming a round that is not paused.
	ErrNotPaused = errors.New("round is not paused")
	// ErrAlreadyPaused is the explicit no-op signal for pausing a round
	// that is already paused.
	ErrAlreadyPaused = errors.New("round already paused")
	// ErrAlreadyFinal is returned when a finalize attempt loses the race.
	// Callers treat it as a no-op and read the already-final outcome.
	ErrAlreadyFinal = errors.New("round already finalized")
	// ErrNothingToUndo is the explicit no-op signal for undo on an empty
	// bid history.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrSettlementPending is returned when settlement has not confirmed
	// and the round is held for reconciliation.
	ErrSettlementPending = errors.New("settlement pending")
)

// errStaleTrigger marks a countdown callback that was superseded before it
// could acquire the engine lock. Internal: callers see no effect at all.
var errStaleTrigger = errors.New("stale finalize trigger")
