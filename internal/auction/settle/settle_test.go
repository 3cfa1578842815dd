package settle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/peterldowns/testy/assert"

	"github.com/mcdev12/gavel/internal/models"
)

type spyLedger struct {
	soldCalls   int
	unsoldCalls int
	lastWinner  int64
	lastAmount  int64
	failSold    error
}

func (l *spyLedger) SettleSold(ctx context.Context, winnerID int64, item models.Item, amount int64) error {
	if l.failSold != nil {
		return l.failSold
	}
	l.soldCalls++
	l.lastWinner = winnerID
	l.lastAmount = amount
	return nil
}

func (l *spyLedger) SettleUnsold(ctx context.Context, item models.Item) error {
	l.unsoldCalls++
	return nil
}

func testItem() models.Item {
	return models.Item{ID: uuid.New(), Name: "Lot 1", BasePrice: 10_000_000}
}

func TestSettleSold(t *testing.T) {
	ledger := &spyLedger{}
	clk := clockwork.NewFakeClock()
	h := NewHandler(ledger, clk)
	winner := int64(7)

	conf, err := h.Settle(context.Background(), Outcome{
		RoundID:  uuid.New(),
		Item:     testItem(),
		Result:   models.RoundOutcomeSold,
		WinnerID: &winner,
		Amount:   25_000_000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.RoundOutcomeSold, conf.Result)
	assert.Equal(t, clk.Now(), conf.SettledAt)
	assert.Equal(t, 1, ledger.soldCalls)
	assert.Equal(t, int64(7), ledger.lastWinner)
	assert.Equal(t, int64(25_000_000), ledger.lastAmount)
}

func TestSettleSoldRequiresWinner(t *testing.T) {
	ledger := &spyLedger{}
	h := NewHandler(ledger, clockwork.NewFakeClock())

	_, err := h.Settle(context.Background(), Outcome{
		RoundID: uuid.New(),
		Item:    testItem(),
		Result:  models.RoundOutcomeSold,
		Amount:  25_000_000,
	})
	assert.Error(t, err)
	assert.Equal(t, 0, ledger.soldCalls)
}

func TestSettleSoldLedgerFailure(t *testing.T) {
	boom := errors.New("debit rejected")
	ledger := &spyLedger{failSold: boom}
	h := NewHandler(ledger, clockwork.NewFakeClock())
	winner := int64(7)

	_, err := h.Settle(context.Background(), Outcome{
		RoundID:  uuid.New(),
		Item:     testItem(),
		Result:   models.RoundOutcomeSold,
		WinnerID: &winner,
		Amount:   25_000_000,
	})
	assert.True(t, errors.Is(err, boom))
}

func TestSettleUnsold(t *testing.T) {
	ledger := &spyLedger{}
	h := NewHandler(ledger, clockwork.NewFakeClock())

	conf, err := h.Settle(context.Background(), Outcome{
		RoundID: uuid.New(),
		Item:    testItem(),
		Result:  models.RoundOutcomeUnsold,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.RoundOutcomeUnsold, conf.Result)
	assert.Equal(t, 1, ledger.unsoldCalls)
}

func TestSettleUnknownOutcome(t *testing.T) {
	ledger := &spyLedger{}
	h := NewHandler(ledger, clockwork.NewFakeClock())

	_, err := h.Settle(context.Background(), Outcome{
		RoundID: uuid.New(),
		Item:    testItem(),
		Result:  models.RoundOutcome("EXPLODED"),
	})
	assert.Error(t, err)
	assert.Equal(t, 0, ledger.soldCalls)
	assert.Equal(t, 0, ledger.unsoldCalls)
}
