// Package validate decides whether a proposed bid is legal. It is pure: all
// state effects happen in the round engine after a successful validation.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/models"
)

// RejectReason is the closed set of validation failures.
type RejectReason string

const (
	ReasonRoundNotOpen        RejectReason = "ROUND_NOT_OPEN"
	ReasonBidderBanned        RejectReason = "BIDDER_BANNED"
	ReasonInvalidAmount       RejectReason = "INVALID_AMOUNT"
	ReasonBelowCurrentBid     RejectReason = "BELOW_CURRENT_BID"
	ReasonBelowBasePrice      RejectReason = "BELOW_BASE_PRICE"
	ReasonIncrementTooSmall   RejectReason = "INCREMENT_TOO_SMALL"
	ReasonStepRequired        RejectReason = "STEP_REQUIRED"
	ReasonInsufficientBalance RejectReason = "INSUFFICIENT_BALANCE"
)

// maxBidAmount is a sanity ceiling on any single bid.
const maxBidAmount = 10_000_000_000

const million = 1_000_000

// Result is the outcome of validating one bid.
type Result struct {
	Accepted bool
	// Amount is the normalized bid in whole currency units, set on accept.
	Amount int64
	Reason RejectReason
	// Shortfall is how much balance the bidder is missing, set for
	// InsufficientBalance rejections.
	Shortfall int64
	// MinLegal is the smallest amount that would have been accepted, set
	// on increment rejections so callers can report it.
	MinLegal int64
}

func accept(amount int64) Result {
	return Result{Accepted: true, Amount: amount}
}

func reject(reason RejectReason) Result {
	return Result{Reason: reason}
}

// RoundSnapshot is the consistent view of round state a bid validates
// against. The engine captures it under its mutation lock, so two
// near-simultaneous bids can never both validate against the same high bid
// and both win.
type RoundSnapshot struct {
	Status    models.RoundStatus
	BasePrice int64
	HighBid   int64
	HasBids   bool
}

// Validate applies the bid rules in order: round open, bidder not banned,
// shorthand normalization, tiered increment, balance. Amounts are whole
// currency units.
func Validate(raw string, snap RoundSnapshot, balance int64, banned bool, cfg config.AuctionConfig) Result {
	if snap.Status != models.RoundStatusActive {
		return reject(ReasonRoundNotOpen)
	}
	if banned {
		return reject(ReasonBidderBanned)
	}

	amount, err := Normalize(raw, snap.HighBid, balance, cfg)
	if err != nil {
		return reject(ReasonInvalidAmount)
	}
	if amount <= 0 || amount > maxBidAmount {
		return reject(ReasonInvalidAmount)
	}

	// First bid on the round: anything at or above the base price.
	if !snap.HasBids {
		if amount < snap.BasePrice {
			r := reject(ReasonBelowBasePrice)
			r.MinLegal = snap.BasePrice
			return r
		}
	} else {
		if amount <= snap.HighBid {
			r := reject(ReasonBelowCurrentBid)
			r.MinLegal = snap.HighBid + cfg.IncrementStep
			return r
		}
		if r, ok := checkIncrement(amount, snap.HighBid, cfg); !ok {
			return r
		}
	}

	if amount > balance {
		r := reject(ReasonInsufficientBalance)
		r.Shortfall = amount - balance
		return r
	}

	return accept(amount)
}

// checkIncrement enforces the tiered raise rule: below the jump threshold
// only a raise of exactly one step is legal, which keeps early bidding
// orderly; at or above it any raise of at least one step is legal.
func checkIncrement(amount, highBid int64, cfg config.AuctionConfig) (Result, bool) {
	raise := amount - highBid
	if highBid < cfg.JumpThreshold {
		if raise != cfg.IncrementStep {
			r := reject(ReasonStepRequired)
			r.MinLegal = highBid + cfg.IncrementStep
			return r, false
		}
		return Result{}, true
	}
	if raise < cfg.IncrementStep {
		r := reject(ReasonIncrementTooSmall)
		r.MinLegal = highBid + cfg.IncrementStep
		return r, false
	}
	return Result{}, true
}

// Normalize parses the bid shorthand the original command surface accepts:
//
//	"15"    -> 15,000,000 (bare values up to 999 are millions)
//	"1.5"   -> 1,500,000 (decimal millions)
//	"+5"    -> current high bid + 5,000,000
//	"max"   -> full balance, capped at high bid + MaxStraightIncrement
//
// Larger bare integers are taken as whole currency units.
func Normalize(raw string, highBid, balance int64, cfg config.AuctionConfig) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty bid")
	}

	if s == "max" {
		capped := highBid + cfg.MaxStraightIncrement
		if balance < capped {
			return balance, nil
		}
		return capped, nil
	}

	if rest, ok := strings.CutPrefix(s, "+"); ok {
		n, err := parseMillions(rest)
		if err != nil {
			return 0, err
		}
		return highBid + n, nil
	}

	return parseMillions(s)
}

func parseMillions(s string) (int64, error) {
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		// Round, don't truncate: 8.2 in float64 sits a hair below 8.2,
		// and flooring it would miss the exact-step rule by one unit.
		return int64(math.Round(f * million)), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if n <= 999 {
		return n * million, nil
	}
	return n, nil
}
