package validate

import (
	"testing"

	"github.com/peterldowns/testy/assert"

	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/models"
)

func testCfg() config.AuctionConfig {
	return config.Default().Auction
}

func activeSnap(basePrice, highBid int64, hasBids bool) RoundSnapshot {
	return RoundSnapshot{
		Status:    models.RoundStatusActive,
		BasePrice: basePrice,
		HighBid:   highBid,
		HasBids:   hasBids,
	}
}

func TestNormalize(t *testing.T) {
	cfg := testCfg()

	tests := []struct {
		name    string
		raw     string
		highBid int64
		balance int64
		want    int64
		wantErr bool
	}{
		{name: "bare millions", raw: "15", want: 15_000_000},
		{name: "bare with spaces", raw: " 15 ", want: 15_000_000},
		{name: "decimal millions", raw: "1.5", want: 1_500_000},
		{name: "decimal rounds not truncates", raw: "8.2", want: 8_200_000},
		{name: "decimal rounds not truncates high", raw: "57.7", want: 57_700_000},
		{name: "large literal is whole units", raw: "2500000", want: 2_500_000},
		{name: "comma separators", raw: "2,500,000", want: 2_500_000},
		{name: "relative raise", raw: "+5", highBid: 20_000_000, want: 25_000_000},
		{name: "relative decimal", raw: "+0.5", highBid: 20_000_000, want: 20_500_000},
		{name: "max capped by straight increment", raw: "max", highBid: 30_000_000, balance: 200_000_000, want: 50_000_000},
		{name: "max capped by balance", raw: "max", highBid: 30_000_000, balance: 42_000_000, want: 42_000_000},
		{name: "garbage", raw: "abc", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "plus garbage", raw: "+x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.highBid, tt.balance, cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRoundAndBidderGates(t *testing.T) {
	cfg := testCfg()

	res := Validate("15", RoundSnapshot{Status: models.RoundStatusPaused, BasePrice: 10_000_000}, 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonRoundNotOpen, res.Reason)

	res = Validate("15", activeSnap(10_000_000, 0, false), 200_000_000, true, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonBidderBanned, res.Reason)

	res = Validate("nonsense", activeSnap(10_000_000, 0, false), 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonInvalidAmount, res.Reason)
}

func TestValidateFirstBid(t *testing.T) {
	cfg := testCfg()

	// Any amount at or above the base price opens the bidding.
	res := Validate("10", activeSnap(10_000_000, 0, false), 200_000_000, false, cfg)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(10_000_000), res.Amount)

	res = Validate("17", activeSnap(10_000_000, 0, false), 200_000_000, false, cfg)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(17_000_000), res.Amount)

	res = Validate("9", activeSnap(10_000_000, 0, false), 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonBelowBasePrice, res.Reason)
	assert.Equal(t, int64(10_000_000), res.MinLegal)
}

func TestValidateTieredIncrement(t *testing.T) {
	cfg := testCfg()

	// Below the jump threshold only an exact single step raise is legal.
	res := Validate("16", activeSnap(10_000_000, 15_000_000, true), 200_000_000, false, cfg)
	assert.True(t, res.Accepted)

	res = Validate("18", activeSnap(10_000_000, 15_000_000, true), 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonStepRequired, res.Reason)
	assert.Equal(t, int64(16_000_000), res.MinLegal)

	// A decimal shorthand landing exactly one step up is legal: the float
	// form of 8.2 sits just below 8.2 million and must round, not floor.
	res = Validate("8.2", activeSnap(5_000_000, 7_200_000, true), 200_000_000, false, cfg)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(8_200_000), res.Amount)

	// At or above the threshold any raise of at least one step is legal.
	res = Validate("25", activeSnap(10_000_000, 20_000_000, true), 200_000_000, false, cfg)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(25_000_000), res.Amount)

	res = Validate("20.5", activeSnap(10_000_000, 20_000_000, true), 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonIncrementTooSmall, res.Reason)
	assert.Equal(t, int64(21_000_000), res.MinLegal)
}

func TestValidateNotAboveCurrent(t *testing.T) {
	cfg := testCfg()

	res := Validate("15", activeSnap(10_000_000, 15_000_000, true), 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonBelowCurrentBid, res.Reason)
	assert.Equal(t, int64(16_000_000), res.MinLegal)

	res = Validate("12", activeSnap(10_000_000, 15_000_000, true), 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonBelowCurrentBid, res.Reason)
}

func TestValidateBalance(t *testing.T) {
	cfg := testCfg()

	res := Validate("30", activeSnap(10_000_000, 0, false), 25_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonInsufficientBalance, res.Reason)
	assert.Equal(t, int64(5_000_000), res.Shortfall)

	// Exactly the full balance is spendable.
	res = Validate("25", activeSnap(10_000_000, 0, false), 25_000_000, false, cfg)
	assert.True(t, res.Accepted)
}

func TestValidateRelativeAndMax(t *testing.T) {
	cfg := testCfg()

	// "+1" over a sub-threshold high bid is the exact step.
	res := Validate("+1", activeSnap(10_000_000, 15_000_000, true), 200_000_000, false, cfg)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(16_000_000), res.Amount)

	// "max" over a high bid at the threshold jumps by the full straight cap.
	res = Validate("max", activeSnap(10_000_000, 20_000_000, true), 200_000_000, false, cfg)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(40_000_000), res.Amount)

	res = Validate("0", activeSnap(10_000_000, 0, false), 200_000_000, false, cfg)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonInvalidAmount, res.Reason)
}
