package round_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/peterldowns/testy/assert"

	"github.com/mcdev12/gavel/internal/auction/clock"
	"github.com/mcdev12/gavel/internal/auction/events"
	"github.com/mcdev12/gavel/internal/auction/round"
	"github.com/mcdev12/gavel/internal/auction/settle"
	"github.com/mcdev12/gavel/internal/auction/validate"
	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/models"
)

type fakeAccounts struct {
	mu       sync.Mutex
	balances map[int64]int64
	banned   map[int64]bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{balances: make(map[int64]int64), banned: make(map[int64]bool)}
}

func (f *fakeAccounts) GetBalance(ctx context.Context, bidderID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[bidderID]
	if !ok {
		return 0, fmt.Errorf("no such bidder %d", bidderID)
	}
	return b, nil
}

func (f *fakeAccounts) IsBanned(ctx context.Context, bidderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned[bidderID], nil
}

type fakeRepo struct {
	mu       sync.Mutex
	saves    int
	last     models.Round
	failNext bool
	gate     *saveGate
}

// saveGate parks a single SaveRound call until released, so a test can hold
// a bid mid-persist while the fake clock fires a countdown against it.
type saveGate struct {
	entered  chan struct{}
	released chan struct{}
}

func (f *fakeRepo) setGate() *saveGate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &saveGate{entered: make(chan struct{}), released: make(chan struct{})}
	f.gate = g
	return g
}

func (f *fakeRepo) SaveRound(ctx context.Context, r *models.Round) error {
	f.mu.Lock()
	if f.failNext {
		f.failNext = false
		f.mu.Unlock()
		return errors.New("storage down")
	}
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()

	if gate != nil {
		close(gate.entered)
		<-gate.released
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.last = *r
	return nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeRecorder) Record(ctx context.Context, ev events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRecorder) typesSeen() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

func (f *fakeRecorder) has(typ events.EventType) bool {
	for _, t := range f.typesSeen() {
		if t == typ {
			return true
		}
	}
	return false
}

// memLedger applies settlements against the same balance map the engine
// validates with, so the tests can assert balance conservation end to end.
type memLedger struct {
	accounts *fakeAccounts

	mu       sync.Mutex
	failSold bool
	sold     []settle.Outcome
	unsold   []uuid.UUID
}

func (l *memLedger) SettleSold(ctx context.Context, winnerID int64, item models.Item, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSold {
		return errors.New("ledger unavailable")
	}
	l.accounts.mu.Lock()
	defer l.accounts.mu.Unlock()
	if l.accounts.balances[winnerID] < amount {
		return errors.New("insufficient balance")
	}
	l.accounts.balances[winnerID] -= amount
	l.sold = append(l.sold, settle.Outcome{Item: item, WinnerID: &winnerID, Amount: amount})
	return nil
}

func (l *memLedger) SettleUnsold(ctx context.Context, item models.Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsold = append(l.unsold, item.ID)
	return nil
}

type fixture struct {
	clk      *clockwork.FakeClock
	settings *config.Store
	accounts *fakeAccounts
	repo     *fakeRepo
	recorder *fakeRecorder
	ledger   *memLedger
	settled  chan *models.Round
	eng      *round.Engine
}

func newFixture(t *testing.T, mode models.RoundMode) *fixture {
	t.Helper()

	f := &fixture{
		clk:      clockwork.NewFakeClock(),
		settings: config.NewStore(config.Default().Auction),
		accounts: newFakeAccounts(),
		repo:     &fakeRepo{},
		recorder: &fakeRecorder{},
		settled:  make(chan *models.Round, 1),
	}
	f.ledger = &memLedger{accounts: f.accounts}
	f.accounts.balances[1] = 200_000_000
	f.accounts.balances[2] = 200_000_000

	item := models.Item{
		ID:        uuid.New(),
		Name:      "Lot 1",
		BasePrice: 10_000_000,
		Status:    models.ItemStatusQueued,
	}
	f.eng = round.New(
		uuid.New(),
		item,
		mode,
		f.settings,
		clock.New(f.clk),
		f.clk,
		f.accounts,
		f.repo,
		f.recorder,
		settle.NewHandler(f.ledger, f.clk),
		func(r *models.Round) { f.settled <- r },
	)
	return f
}

func (f *fixture) waitSettled(t *testing.T) *models.Round {
	t.Helper()
	select {
	case r := <-f.settled:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("round did not settle")
		return nil
	}
}

func (f *fixture) mustBid(t *testing.T, bidderID int64, raw string) {
	t.Helper()
	res, err := f.eng.SubmitBid(context.Background(), bidderID, raw, models.BidSourceCommand)
	assert.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestOpenOnlyFromPending(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()

	assert.NoError(t, f.eng.Open(ctx))
	assert.Equal(t, models.RoundStatusActive, f.eng.Status())
	assert.True(t, f.recorder.has(events.EventTypeRoundOpened))

	assert.True(t, errors.Is(f.eng.Open(ctx), round.ErrNotPending))
}

func TestBidsAreMonotonic(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))

	f.mustBid(t, 1, "10")
	f.mustBid(t, 2, "11")
	f.mustBid(t, 1, "12")

	// A bid at or below the high bid is rejected and mutates nothing.
	res, err := f.eng.SubmitBid(ctx, 2, "12", models.BidSourceCommand)
	assert.NoError(t, err)
	assert.False(t, res.Accepted)

	snap := f.eng.Snapshot()
	assert.Equal(t, int64(12_000_000), snap.Round.HighBid)
	assert.Equal(t, int64(1), *snap.Round.HighBidder)
	assert.Equal(t, 3, len(snap.Round.Bids))
	for i := 1; i < len(snap.Round.Bids); i++ {
		assert.True(t, snap.Round.Bids[i].Amount > snap.Round.Bids[i-1].Amount)
	}
	assert.True(t, f.recorder.has(events.EventTypeBidRejected))
}

func TestPersistFailureRollsBackBid(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))

	f.mustBid(t, 1, "10")
	f.repo.failNext = true

	_, err := f.eng.SubmitBid(ctx, 2, "11", models.BidSourceCommand)
	assert.Error(t, err)

	snap := f.eng.Snapshot()
	assert.Equal(t, int64(10_000_000), snap.Round.HighBid)
	assert.Equal(t, 1, len(snap.Round.Bids))
}

func TestTimerExpiryFinalizesSold(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))

	f.mustBid(t, 1, "10")

	f.clk.Advance(60 * time.Second)
	done := f.waitSettled(t)

	assert.Equal(t, models.RoundStatusCompleted, done.Status)
	assert.Equal(t, models.RoundOutcomeSold, done.Outcome)
	assert.Equal(t, int64(190_000_000), f.accounts.balances[1])
	assert.Equal(t, 1, len(f.ledger.sold))
	assert.True(t, f.recorder.has(events.EventTypeRoundFinalized))

	// Late duplicate triggers observe terminality, not a second settlement.
	assert.True(t, errors.Is(f.eng.Finalize(ctx, round.TriggerTimer), round.ErrAlreadyFinal))
	assert.Equal(t, 1, len(f.ledger.sold))
}

func TestBidRestartsCountdown(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))

	f.clk.Advance(50 * time.Second)
	f.mustBid(t, 1, "10")
	assert.True(t, f.recorder.has(events.EventTypeTimeReset))

	// The old deadline passes without closing the round.
	f.clk.Advance(50 * time.Second)
	assert.Equal(t, models.RoundStatusActive, f.eng.Status())

	// The restarted countdown closes it.
	f.clk.Advance(10 * time.Second)
	done := f.waitSettled(t)
	assert.Equal(t, models.RoundOutcomeSold, done.Outcome)
}

func TestNoBidsFinalizesUnsold(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	assert.NoError(t, f.eng.Open(context.Background()))

	f.clk.Advance(60 * time.Second)
	done := f.waitSettled(t)

	assert.Equal(t, models.RoundOutcomeUnsold, done.Outcome)
	assert.Equal(t, 1, len(f.ledger.unsold))
	assert.Equal(t, 0, len(f.ledger.sold))
	assert.Equal(t, int64(200_000_000), f.accounts.balances[1])
}

func TestUndoLastBid(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))

	f.mustBid(t, 1, "10")
	f.mustBid(t, 2, "11")

	removed, err := f.eng.UndoLastBid(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), removed.BidderID)

	snap := f.eng.Snapshot()
	assert.Equal(t, int64(10_000_000), snap.Round.HighBid)
	assert.Equal(t, int64(1), *snap.Round.HighBidder)

	_, err = f.eng.UndoLastBid(ctx)
	assert.NoError(t, err)

	snap = f.eng.Snapshot()
	assert.Equal(t, int64(0), snap.Round.HighBid)
	assert.Nil(t, snap.Round.HighBidder)

	_, err = f.eng.UndoLastBid(ctx)
	assert.True(t, errors.Is(err, round.ErrNothingToUndo))
}

func TestPauseFreezesRound(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))
	f.mustBid(t, 1, "10")

	assert.NoError(t, f.eng.Pause(ctx, "dispute"))
	assert.True(t, errors.Is(f.eng.Pause(ctx, "again"), round.ErrAlreadyPaused))

	// The cancelled countdown must not fire while paused.
	f.clk.Advance(120 * time.Second)
	assert.Equal(t, models.RoundStatusPaused, f.eng.Status())

	// Bids are rejected, not errored, while paused.
	res, err := f.eng.SubmitBid(ctx, 2, "11", models.BidSourceCommand)
	assert.NoError(t, err)
	assert.False(t, res.Accepted)

	// Resume grants a full fresh countdown.
	assert.NoError(t, f.eng.Resume(ctx))
	f.clk.Advance(59 * time.Second)
	assert.Equal(t, models.RoundStatusActive, f.eng.Status())
	f.clk.Advance(time.Second)
	done := f.waitSettled(t)
	assert.Equal(t, models.RoundOutcomeSold, done.Outcome)
}

func TestFinalCallGraceWindow(t *testing.T) {
	f := newFixture(t, models.RoundModeManualCall)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))
	f.mustBid(t, 1, "10")

	// A bid inside the grace window aborts the finalization.
	assert.NoError(t, f.eng.FinalCall(ctx))
	f.mustBid(t, 2, "11")
	f.clk.Advance(5 * time.Second)
	assert.Equal(t, models.RoundStatusActive, f.eng.Status())

	// A quiet grace window closes the round with the state at expiry.
	assert.NoError(t, f.eng.FinalCall(ctx))
	f.clk.Advance(5 * time.Second)
	done := f.waitSettled(t)
	assert.Equal(t, models.RoundOutcomeSold, done.Outcome)
	assert.Equal(t, int64(11_000_000), done.HighBid)
	assert.Equal(t, int64(189_000_000), f.accounts.balances[2])
}

func TestSettlementFailureHoldsRound(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))
	f.mustBid(t, 1, "10")

	f.ledger.failSold = true
	assert.Error(t, f.eng.Finalize(ctx, round.TriggerSkip))

	snap := f.eng.Snapshot()
	assert.Equal(t, models.RoundStatusFinalizing, snap.Round.Status)
	assert.True(t, snap.SettlementPending)
	assert.NotEqual(t, "", snap.SettlementError)
	// No partial effects: the winner's balance is untouched.
	assert.Equal(t, int64(200_000_000), f.accounts.balances[1])

	// A concurrent finalize attempt is told settlement is pending.
	assert.True(t, errors.Is(f.eng.Finalize(ctx, round.TriggerTimer), round.ErrSettlementPending))

	f.ledger.failSold = false
	assert.NoError(t, f.eng.RetrySettlement(ctx))
	done := f.waitSettled(t)
	assert.Equal(t, models.RoundStatusCompleted, done.Status)
	assert.Equal(t, int64(190_000_000), f.accounts.balances[1])
	assert.Equal(t, 1, len(f.ledger.sold))
}

func TestConcurrentBidsSerialize(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))
	f.mustBid(t, 1, "20")

	// Both race for the same +1 raise; exactly one can win it.
	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bidder := int64(i + 1)
			res, err := f.eng.SubmitBid(ctx, bidder, "21", models.BidSourceQuick)
			if err == nil && res.Accepted {
				results[i] = true
			}
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, ok := range results {
		if ok {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, int64(21_000_000), f.eng.Snapshot().Round.HighBid)
}

func TestExpiryDuringBidPersistIsSuppressed(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))
	f.mustBid(t, 1, "10")

	// Hold the next bid inside the persist step, with the engine lock taken,
	// then let the countdown it is about to restart expire underneath it.
	gate := f.repo.setGate()
	type bidResult struct {
		res validate.Result
		err error
	}
	done := make(chan bidResult, 1)
	go func() {
		res, err := f.eng.SubmitBid(ctx, 2, "11", models.BidSourceCommand)
		done <- bidResult{res, err}
	}()
	<-gate.entered

	f.clk.Advance(60 * time.Second)
	// Give the expired countdown's callback time to reach the engine lock.
	time.Sleep(50 * time.Millisecond)
	close(gate.released)

	select {
	case br := <-done:
		assert.NoError(t, br.err)
		assert.True(t, br.res.Accepted)
	case <-time.After(2 * time.Second):
		t.Fatal("bid did not complete")
	}

	// The expiry that raced the bid must not close the round.
	select {
	case r := <-f.settled:
		t.Fatalf("round settled under a stale expiry: %s", r.Outcome)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, models.RoundStatusActive, f.eng.Status())
	assert.Equal(t, int64(11_000_000), f.eng.Snapshot().Round.HighBid)

	// The countdown the bid restarted is the one that closes the round.
	f.clk.Advance(60 * time.Second)
	settled := f.waitSettled(t)
	assert.Equal(t, models.RoundOutcomeSold, settled.Outcome)
	assert.Equal(t, int64(11_000_000), settled.HighBid)
	assert.Equal(t, int64(189_000_000), f.accounts.balances[2])
}

func TestBidDuringGraceExpiryAbortsClose(t *testing.T) {
	f := newFixture(t, models.RoundModeManualCall)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))
	f.mustBid(t, 1, "10")
	assert.NoError(t, f.eng.FinalCall(ctx))

	// A bid parked mid-persist when the grace window runs out must still
	// abort the close: the re-check happens under the engine lock.
	gate := f.repo.setGate()
	type bidResult struct {
		res validate.Result
		err error
	}
	done := make(chan bidResult, 1)
	go func() {
		res, err := f.eng.SubmitBid(ctx, 2, "11", models.BidSourceCommand)
		done <- bidResult{res, err}
	}()
	<-gate.entered

	f.clk.Advance(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	close(gate.released)

	select {
	case br := <-done:
		assert.NoError(t, br.err)
		assert.True(t, br.res.Accepted)
	case <-time.After(2 * time.Second):
		t.Fatal("bid did not complete")
	}

	select {
	case r := <-f.settled:
		t.Fatalf("grace expiry sealed a superseded winner: %s", r.Outcome)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, models.RoundStatusActive, f.eng.Status())

	// A fresh final call over the new high bid closes cleanly.
	assert.NoError(t, f.eng.FinalCall(ctx))
	f.clk.Advance(5 * time.Second)
	settled := f.waitSettled(t)
	assert.Equal(t, models.RoundOutcomeSold, settled.Outcome)
	assert.Equal(t, int64(11_000_000), settled.HighBid)
	assert.Equal(t, int64(189_000_000), f.accounts.balances[2])
}

func TestRecoveredRoundRearms(t *testing.T) {
	f := newFixture(t, models.RoundModeTimed)
	ctx := context.Background()
	assert.NoError(t, f.eng.Open(ctx))
	f.mustBid(t, 1, "10")
	persisted := f.repo.last

	// Freeze the old engine so its countdown cannot also fire when the
	// shared fake clock advances.
	assert.NoError(t, f.eng.Pause(ctx, "restart"))

	// A new engine over the persisted state stands in for a restart.
	f2 := &fixture{
		clk:      f.clk,
		settings: f.settings,
		accounts: f.accounts,
		repo:     &fakeRepo{},
		recorder: &fakeRecorder{},
		settled:  make(chan *models.Round, 1),
	}
	f2.ledger = &memLedger{accounts: f.accounts}
	f2.eng = round.NewFromRecovered(
		&persisted,
		f2.settings,
		clock.New(f2.clk),
		f2.clk,
		f2.accounts,
		f2.repo,
		f2.recorder,
		settle.NewHandler(f2.ledger, f2.clk),
		func(r *models.Round) { f2.settled <- r },
	)

	assert.NoError(t, f2.eng.Rearm(ctx))
	assert.Equal(t, models.RoundStatusActive, f2.eng.Status())

	f2.clk.Advance(60 * time.Second)
	done := f2.waitSettled(t)
	assert.Equal(t, models.RoundOutcomeSold, done.Outcome)
	assert.Equal(t, int64(10_000_000), done.HighBid)
}
