// Package round implements the state machine for one auction round. All bid
// submissions, timer expiries and admin overrides are serialized through a
// single mutex, so accepted bids form one globally agreed sequence and
// finalization happens exactly once.
package round

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/internal/auction/clock"
	"github.com/mcdev12/gavel/internal/auction/events"
	"github.com/mcdev12/gavel/internal/auction/settle"
	"github.com/mcdev12/gavel/internal/auction/validate"
	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/models"
)

// Engine drives one round through Pending → Active → Completed/Cancelled,
// with Active ⇄ Paused for admin intervention. The sequencer creates exactly
// one Engine at a time, which is what keeps at most one round active
// system-wide.
type Engine struct {
	mu sync.Mutex

	round    *models.Round
	settings *config.Store
	clocks   *clock.Service
	clk      clockwork.Clock
	accounts AccountReader
	repo     Repository
	recorder Recorder
	settler  Settler

	// graceID keys the final-call grace countdown, separate from the
	// round countdown keyed by the round ID.
	graceID uuid.UUID
	// graceSeq is the bid-history length captured when the grace window
	// opened; finalization aborts if it moved.
	graceSeq int

	// timerGen and graceGen are the live generations of the round and
	// grace countdowns. A callback carrying any other generation lost a
	// reset race and must not close the round.
	timerGen uint64
	graceGen uint64

	settlementErr error
	pendingOut    *settle.Outcome
	settling      bool

	// onSettled runs after settlement confirms, outside the engine lock.
	onSettled func(r *models.Round)
}

// New creates an engine for a pending round over the given item.
func New(
	sessionID uuid.UUID,
	item models.Item,
	mode models.RoundMode,
	settings *config.Store,
	clocks *clock.Service,
	clk clockwork.Clock,
	accounts AccountReader,
	repo Repository,
	recorder Recorder,
	settler Settler,
	onSettled func(r *models.Round),
) *Engine {
	cfg := settings.Auction()
	return &Engine{
		round: &models.Round{
			ID:        uuid.New(),
			SessionID: sessionID,
			Item:      item,
			Status:    models.RoundStatusPending,
			Mode:      mode,
			Duration:  cfg.RoundDurationSec,
			CreatedAt: clk.Now(),
		},
		settings:  settings,
		clocks:    clocks,
		clk:       clk,
		accounts:  accounts,
		repo:      repo,
		recorder:  recorder,
		settler:   settler,
		graceID:   uuid.New(),
		onSettled: onSettled,
	}
}

// NewFromRecovered wraps an engine around a round reloaded from storage
// after a restart, so an in-flight round survives a crash.
func NewFromRecovered(
	r *models.Round,
	settings *config.Store,
	clocks *clock.Service,
	clk clockwork.Clock,
	accounts AccountReader,
	repo Repository,
	recorder Recorder,
	settler Settler,
	onSettled func(rr *models.Round),
) *Engine {
	return &Engine{
		round:     r,
		settings:  settings,
		clocks:    clocks,
		clk:       clk,
		accounts:  accounts,
		repo:      repo,
		recorder:  recorder,
		settler:   settler,
		graceID:   uuid.New(),
		onSettled: onSettled,
	}
}

// ID returns the round's identity.
func (e *Engine) ID() uuid.UUID {
	return e.round.ID
}

// Open transitions Pending → Active and, in timed mode, starts the
// countdown. Rejects a round that already ran.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Status != models.RoundStatusPending {
		return ErrNotPending
	}

	now := e.clk.Now()
	e.round.Status = models.RoundStatusActive
	e.round.StartedAt = &now

	if e.round.Mode == models.RoundModeTimed {
		gen, err := e.clocks.Start(e.round.ID, e.duration(), e.onExpiry)
		if err != nil {
			return err
		}
		e.timerGen = gen
	}

	if err := e.repo.SaveRound(ctx, e.round); err != nil {
		return err
	}

	e.record(ctx, events.EventTypeRoundOpened, events.RoundOpenedPayload{
		ItemID:      e.round.Item.ID.String(),
		ItemName:    e.round.Item.Name,
		BasePrice:   e.round.Item.BasePrice,
		Mode:        string(e.round.Mode),
		DurationSec: e.round.Duration,
		OpenedAt:    now,
	})

	log.Info().
		Str("round_id", e.round.ID.String()).
		Str("item", e.round.Item.Name).
		Int64("base_price", e.round.Item.BasePrice).
		Str("mode", string(e.round.Mode)).
		Msg("round opened")
	return nil
}

// SubmitBid validates and, on accept, applies one bid. Validation and apply
// happen under the engine lock against the same snapshot, so two
// near-simultaneous bids can never both win the same increment. Rejections
// are returned to the caller and never alter round state.
func (e *Engine) SubmitBid(ctx context.Context, bidderID int64, raw string, source models.BidSource) (validate.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.settings.Auction()
	snap := validate.RoundSnapshot{
		Status:    e.round.Status,
		BasePrice: e.round.Item.BasePrice,
		HighBid:   e.round.HighBid,
		HasBids:   len(e.round.Bids) > 0,
	}

	var balance int64
	var banned bool
	if snap.Status == models.RoundStatusActive {
		var err error
		balance, err = e.accounts.GetBalance(ctx, bidderID)
		if err != nil {
			return validate.Result{}, err
		}
		banned, err = e.accounts.IsBanned(ctx, bidderID)
		if err != nil {
			return validate.Result{}, err
		}
	}

	res := validate.Validate(raw, snap, balance, banned, cfg)
	if !res.Accepted {
		e.record(ctx, events.EventTypeBidRejected, events.BidRejectedPayload{
			BidderID:  bidderID,
			RawAmount: raw,
			Reason:    string(res.Reason),
			Shortfall: res.Shortfall,
		})
		return res, nil
	}

	now := e.clk.Now()
	bid := models.Bid{
		ID:       ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		BidderID: bidderID,
		Amount:   res.Amount,
		Source:   source,
		PlacedAt: now,
	}
	e.round.Bids = append(e.round.Bids, bid)
	e.round.HighBid = res.Amount
	e.round.HighBidder = &bidderID

	if err := e.repo.SaveRound(ctx, e.round); err != nil {
		// Roll the in-memory apply back so state never drifts from
		// what is durably recorded.
		e.undoTailLocked()
		return validate.Result{}, err
	}

	e.record(ctx, events.EventTypeBidAccepted, events.BidAcceptedPayload{
		BidID:    bid.ID,
		BidderID: bid.BidderID,
		Amount:   bid.Amount,
		Source:   string(bid.Source),
		PlacedAt: bid.PlacedAt,
	})

	// Every accepted bid restarts the full countdown; this keeps bidding
	// wars alive rather than just extending by a few seconds.
	if e.round.Mode == models.RoundModeTimed {
		d := e.duration()
		gen, err := e.clocks.Reset(e.round.ID, d)
		if errors.Is(err, clock.ErrNotRunning) {
			// The old countdown fired while this bid held the lock; its
			// callback is now stale and a fresh countdown takes over.
			gen, err = e.clocks.Start(e.round.ID, d, e.onExpiry)
		}
		if err != nil {
			return validate.Result{}, err
		}
		e.timerGen = gen
		e.record(ctx, events.EventTypeTimeReset, events.TimeResetPayload{
			DurationSec: int(d / time.Second),
			Deadline:    now.Add(d),
		})
	}

	log.Info().
		Str("round_id", e.round.ID.String()).
		Int64("bidder_id", bidderID).
		Int64("amount", res.Amount).
		Str("source", string(source)).
		Msg("bid accepted")
	return res, nil
}

// UndoLastBid pops the bid history tail and recomputes the high bid and
// bidder from the new tail, reverting to base state if the history empties.
// Admin-only. Returns ErrNothingToUndo on an empty history.
func (e *Engine) UndoLastBid(ctx context.Context) (*models.Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Status != models.RoundStatusActive && e.round.Status != models.RoundStatusPaused {
		return nil, ErrNotActive
	}
	if len(e.round.Bids) == 0 {
		return nil, ErrNothingToUndo
	}

	removed := e.undoTailLocked()
	if err := e.repo.SaveRound(ctx, e.round); err != nil {
		return nil, err
	}

	log.Info().
		Str("round_id", e.round.ID.String()).
		Str("bid_id", removed.ID).
		Int64("new_high_bid", e.round.HighBid).
		Msg("last bid undone")
	return &removed, nil
}

func (e *Engine) undoTailLocked() models.Bid {
	last := len(e.round.Bids) - 1
	removed := e.round.Bids[last]
	e.round.Bids = e.round.Bids[:last]

	if len(e.round.Bids) == 0 {
		e.round.HighBid = 0
		e.round.HighBidder = nil
	} else {
		tail := e.round.Bids[len(e.round.Bids)-1]
		e.round.HighBid = tail.Amount
		bidder := tail.BidderID
		e.round.HighBidder = &bidder
	}
	return removed
}

// Pause transitions Active → Paused and cancels the countdown. Elapsed time
// is not preserved; Resume restarts a full fresh countdown.
func (e *Engine) Pause(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Status == models.RoundStatusPaused {
		return ErrAlreadyPaused
	}
	if e.round.Status != models.RoundStatusActive {
		return ErrNotActive
	}

	e.round.Status = models.RoundStatusPaused
	e.clocks.Cancel(e.round.ID)
	e.clocks.Cancel(e.graceID)

	if err := e.repo.SaveRound(ctx, e.round); err != nil {
		return err
	}

	e.record(ctx, events.EventTypeRoundPaused, events.RoundPausedPayload{
		Reason:   reason,
		PausedAt: e.clk.Now(),
	})
	log.Info().Str("round_id", e.round.ID.String()).Str("reason", reason).Msg("round paused")
	return nil
}

// Resume transitions Paused → Active with a full fresh countdown.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Status != models.RoundStatusPaused {
		return ErrNotPaused
	}

	e.round.Status = models.RoundStatusActive
	if e.round.Mode == models.RoundModeTimed {
		gen, err := e.clocks.Start(e.round.ID, e.duration(), e.onExpiry)
		if err != nil {
			return err
		}
		e.timerGen = gen
	}

	if err := e.repo.SaveRound(ctx, e.round); err != nil {
		return err
	}

	e.record(ctx, events.EventTypeRoundResumed, events.RoundResumedPayload{
		DurationSec: e.settings.Auction().RoundDurationSec,
		ResumedAt:   e.clk.Now(),
	})
	log.Info().Str("round_id", e.round.ID.String()).Msg("round resumed")
	return nil
}

// FinalCall opens the grace window: the round stays open for a short delay,
// and if no new bid lands the round finalizes with its current state. A bid
// inside the window aborts finalization.
func (e *Engine) FinalCall(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Status != models.RoundStatusActive {
		return ErrNotActive
	}

	cfg := e.settings.Auction()
	e.graceSeq = len(e.round.Bids)

	e.clocks.Cancel(e.graceID)
	gen, err := e.clocks.Start(e.graceID, cfg.GraceWindow(), e.onGraceExpiry)
	if err != nil {
		return err
	}
	e.graceGen = gen

	e.record(ctx, events.EventTypeFinalCall, events.FinalCallPayload{
		HighBid:        e.round.HighBid,
		GraceWindowSec: cfg.GraceWindowSec,
		CalledAt:       e.clk.Now(),
	})
	log.Info().
		Str("round_id", e.round.ID.String()).
		Int64("high_bid", e.round.HighBid).
		Int("grace_sec", cfg.GraceWindowSec).
		Msg("final call issued")
	return nil
}

// onGraceExpiry closes the round if the grace window passed untouched. The
// re-check runs inside the finalize critical section, so a bid that lands
// after the window fires but before the transition still aborts the close
// and bidding continues.
func (e *Engine) onGraceExpiry(id uuid.UUID, generation uint64) {
	err := e.finalize(context.Background(), TriggerFinalCall, func() bool {
		return generation == e.graceGen &&
			e.round.Status == models.RoundStatusActive &&
			len(e.round.Bids) == e.graceSeq
	})
	switch {
	case err == nil:
	case errors.Is(err, errStaleTrigger):
		log.Info().
			Str("round_id", e.round.ID.String()).
			Msg("final call superseded; bidding continues")
	case errors.Is(err, ErrAlreadyFinal), errors.Is(err, ErrSettlementPending):
	default:
		log.Error().Err(err).Str("round_id", e.round.ID.String()).Msg("final call finalization failed")
	}
}

// onExpiry is the round countdown callback. The generation check runs inside
// the finalize critical section: a countdown that fired while a bid was
// mid-persist carries a stale generation by the time it gets the lock, and
// must not close the round that bid restarted.
func (e *Engine) onExpiry(id uuid.UUID, generation uint64) {
	err := e.finalize(context.Background(), TriggerTimer, func() bool {
		return generation == e.timerGen && e.round.Status == models.RoundStatusActive
	})
	switch {
	case err == nil:
	case errors.Is(err, errStaleTrigger):
		log.Debug().
			Str("round_id", id.String()).
			Uint64("generation", generation).
			Msg("stale countdown expiry suppressed")
	case errors.Is(err, ErrAlreadyFinal), errors.Is(err, ErrSettlementPending):
		log.Debug().
			Str("round_id", id.String()).
			Msg("duplicate finalize attempt ignored")
	default:
		log.Error().Err(err).Str("round_id", id.String()).Msg("timer finalization failed")
	}
}

// Finalize closes the round exactly once: the first caller to move it out of
// Active wins; every other concurrent caller gets ErrAlreadyFinal and must
// perform no further effect. The round is only marked Completed after
// settlement confirms; a settlement failure holds it in Finalizing for
// retry, so double-settlement is structurally impossible.
func (e *Engine) Finalize(ctx context.Context, trigger FinalizeTrigger) error {
	return e.finalize(ctx, trigger, nil)
}

// finalize performs the close. live, when non-nil, is evaluated under e.mu
// immediately before the Active→Finalizing transition; returning false means
// the trigger was superseded (by a timer reset, a newer bid or a pause) and
// the round must stay open.
func (e *Engine) finalize(ctx context.Context, trigger FinalizeTrigger, live func() bool) error {
	e.mu.Lock()

	switch e.round.Status {
	case models.RoundStatusActive, models.RoundStatusPaused:
		// This caller wins the transition.
	case models.RoundStatusFinalizing:
		e.mu.Unlock()
		return ErrSettlementPending
	default:
		e.mu.Unlock()
		return ErrAlreadyFinal
	}
	if live != nil && !live() {
		e.mu.Unlock()
		return errStaleTrigger
	}

	e.round.Status = models.RoundStatusFinalizing
	e.clocks.Cancel(e.round.ID)
	e.clocks.Cancel(e.graceID)

	outcome := settle.Outcome{
		RoundID: e.round.ID,
		Item:    e.round.Item,
		Amount:  e.round.HighBid,
	}
	if e.round.HighBidder != nil {
		winner := *e.round.HighBidder
		outcome.Result = models.RoundOutcomeSold
		outcome.WinnerID = &winner
	} else {
		outcome.Result = models.RoundOutcomeUnsold
	}
	e.pendingOut = &outcome

	if err := e.repo.SaveRound(ctx, e.round); err != nil {
		log.Error().Err(err).Str("round_id", e.round.ID.String()).Msg("failed to persist finalizing state")
	}
	e.mu.Unlock()

	return e.completeSettlement(ctx, trigger)
}

// RetrySettlement re-attempts a settlement that previously failed, for admin
// reconciliation. No-op error if the round is not held.
func (e *Engine) RetrySettlement(ctx context.Context) error {
	e.mu.Lock()
	if e.round.Status != models.RoundStatusFinalizing || e.pendingOut == nil {
		e.mu.Unlock()
		return ErrAlreadyFinal
	}
	e.mu.Unlock()
	return e.completeSettlement(ctx, TriggerStuckSweep)
}

func (e *Engine) completeSettlement(ctx context.Context, trigger FinalizeTrigger) error {
	e.mu.Lock()
	if e.settling {
		e.mu.Unlock()
		return ErrSettlementPending
	}
	e.settling = true
	outcome := *e.pendingOut
	e.mu.Unlock()

	conf, err := e.settler.Settle(ctx, outcome)
	if err != nil {
		e.mu.Lock()
		e.settlementErr = err
		e.settling = false
		e.mu.Unlock()
		log.Error().Err(err).
			Str("round_id", outcome.RoundID.String()).
			Msg("settlement failed; round held for reconciliation")
		return err
	}

	e.mu.Lock()
	now := e.clk.Now()
	e.round.Status = models.RoundStatusCompleted
	e.round.Outcome = outcome.Result
	e.round.EndedAt = &now
	e.settlementErr = nil
	e.pendingOut = nil
	e.settling = false
	if err := e.repo.SaveRound(ctx, e.round); err != nil {
		log.Error().Err(err).Str("round_id", e.round.ID.String()).Msg("failed to persist completed round")
	}

	payload := events.RoundFinalizedPayload{
		Outcome:     string(outcome.Result),
		ItemID:      e.round.Item.ID.String(),
		ItemName:    e.round.Item.Name,
		WinnerID:    outcome.WinnerID,
		FinalPrice:  outcome.Amount,
		TotalBids:   len(e.round.Bids),
		Trigger:     string(trigger),
		FinalizedAt: conf.SettledAt,
	}
	e.record(ctx, events.EventTypeRoundFinalized, payload)
	done := *e.round
	e.mu.Unlock()

	log.Info().
		Str("round_id", done.ID.String()).
		Str("outcome", string(outcome.Result)).
		Str("trigger", string(trigger)).
		Msg("round finalized")

	if e.onSettled != nil {
		e.onSettled(&done)
	}
	return nil
}

// Rearm restarts the countdown for a recovered round that is Active but has
// no live timer, e.g. after a process restart mid-round.
func (e *Engine) Rearm(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Status != models.RoundStatusActive {
		return ErrNotActive
	}
	if e.round.Mode != models.RoundModeTimed || e.clocks.Active(e.round.ID) {
		return nil
	}
	gen, err := e.clocks.Start(e.round.ID, e.duration(), e.onExpiry)
	if err != nil {
		return err
	}
	e.timerGen = gen
	log.Info().Str("round_id", e.round.ID.String()).Msg("countdown re-armed after recovery")
	return nil
}

// Snapshot returns a consistent copy of the round for gateways and caches.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{Round: *e.round}
	snap.Round.Bids = append([]models.Bid(nil), e.round.Bids...)
	if rem, ok := e.clocks.Remaining(e.round.ID); ok {
		snap.RemainingSec = int(rem / time.Second)
	}
	snap.SettlementPending = e.round.Status == models.RoundStatusFinalizing
	if e.settlementErr != nil {
		snap.SettlementError = e.settlementErr.Error()
	}
	return snap
}

// Status returns the round's current status.
func (e *Engine) Status() models.RoundStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.Status
}

func (e *Engine) duration() time.Duration {
	return time.Duration(e.round.Duration) * time.Second
}

func (e *Engine) record(ctx context.Context, typ events.EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal event payload")
		return
	}
	ev := events.Event{
		ID:        uuid.New().String(),
		RoundID:   e.round.ID.String(),
		SessionID: e.round.SessionID.String(),
		Type:      typ,
		Timestamp: e.clk.Now(),
		Data:      data,
	}
	if err := e.recorder.Record(ctx, ev); err != nil {
		// Event delivery is fire-and-forget from the round's point of
		// view; a recording failure never fails the mutation.
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to record event")
	}
}
