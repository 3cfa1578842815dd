package events

import (
	"time"
)

// Event payload types shared between the engine, sequencer, outbox and
// gateway packages.

// RoundOpenedPayload is emitted when a round goes Active.
type RoundOpenedPayload struct {
	ItemID      string    `json:"item_id"`
	ItemName    string    `json:"item_name"`
	BasePrice   int64     `json:"base_price"`
	Mode        string    `json:"mode"`
	DurationSec int       `json:"duration_sec"`
	OpenedAt    time.Time `json:"opened_at"`
}

// BidAcceptedPayload is emitted for every accepted bid.
type BidAcceptedPayload struct {
	BidID    string    `json:"bid_id"`
	BidderID int64     `json:"bidder_id"`
	Amount   int64     `json:"amount"`
	Source   string    `json:"source"`
	PlacedAt time.Time `json:"placed_at"`
}

// BidRejectedPayload is emitted when a bid fails validation. Reported to the
// submitting bidder only; the round state is untouched.
type BidRejectedPayload struct {
	BidderID  int64  `json:"bidder_id"`
	RawAmount string `json:"raw_amount"`
	Reason    string `json:"reason"`
	// Shortfall is set for InsufficientBalance rejections.
	Shortfall int64 `json:"shortfall,omitempty"`
}

// TimeResetPayload is emitted when an accepted bid restarts the countdown.
type TimeResetPayload struct {
	DurationSec int       `json:"duration_sec"`
	Deadline    time.Time `json:"deadline"`
}

// FinalCallPayload is emitted when an admin opens the grace window.
type FinalCallPayload struct {
	HighBid        int64     `json:"high_bid"`
	GraceWindowSec int       `json:"grace_window_sec"`
	CalledAt       time.Time `json:"called_at"`
}

// RoundPausedPayload is emitted on an admin pause.
type RoundPausedPayload struct {
	Reason   string    `json:"reason"`
	PausedAt time.Time `json:"paused_at"`
}

// RoundResumedPayload is emitted on resume. The countdown restarts at the
// full configured duration.
type RoundResumedPayload struct {
	DurationSec int       `json:"duration_sec"`
	ResumedAt   time.Time `json:"resumed_at"`
}

// RoundFinalizedPayload carries the terminal outcome of a round.
type RoundFinalizedPayload struct {
	Outcome     string    `json:"outcome"` // SOLD or UNSOLD
	ItemID      string    `json:"item_id"`
	ItemName    string    `json:"item_name"`
	WinnerID    *int64    `json:"winner_id,omitempty"`
	FinalPrice  int64     `json:"final_price,omitempty"`
	TotalBids   int       `json:"total_bids"`
	Trigger     string    `json:"trigger"` // timer, final_call, skip, stuck_sweep
	FinalizedAt time.Time `json:"finalized_at"`
}

// BreakStartedPayload is emitted when an inter-round break begins.
type BreakStartedPayload struct {
	DurationSec int       `json:"duration_sec"`
	NextItemID  string    `json:"next_item_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// BreakSkippedPayload is emitted when an admin cuts a break short.
type BreakSkippedPayload struct {
	RemainingSec int       `json:"remaining_sec"`
	SkippedAt    time.Time `json:"skipped_at"`
}

// SessionFinishedPayload carries the session aggregates.
type SessionFinishedPayload struct {
	ItemsSold    int       `json:"items_sold"`
	ItemsUnsold  int       `json:"items_unsold"`
	TotalValue   int64     `json:"total_value"`
	Participants int       `json:"participants"`
	FinishedAt   time.Time `json:"finished_at"`
}
