package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines the lifecycle state of an auction round.
type RoundStatus string

const (
	RoundStatusPending    RoundStatus = "PENDING"
	RoundStatusActive     RoundStatus = "ACTIVE"
	RoundStatusPaused     RoundStatus = "PAUSED"
	RoundStatusFinalizing RoundStatus = "FINALIZING"
	RoundStatusCompleted  RoundStatus = "COMPLETED"
	RoundStatusCancelled  RoundStatus = "CANCELLED"
)

// RoundMode defines how a round is closed.
type RoundMode string

const (
	// RoundModeTimed closes the round when the countdown expires.
	// Every accepted bid restarts the countdown at the full duration.
	RoundModeTimed RoundMode = "TIMED"
	// RoundModeManualCall closes the round only on an admin final call.
	RoundModeManualCall RoundMode = "MANUAL_CALL"
)

// RoundOutcome is the terminal result of a completed round.
type RoundOutcome string

const (
	RoundOutcomeSold   RoundOutcome = "SOLD"
	RoundOutcomeUnsold RoundOutcome = "UNSOLD"
)

// Round represents one bidding contest for a single item.
//
// HighBid equals the amount of the last entry in Bids, or 0 when no bid has
// been accepted yet. HighBidder is nil iff Bids is empty.
type Round struct {
	ID         uuid.UUID    `json:"id"`
	SessionID  uuid.UUID    `json:"session_id"`
	Item       Item         `json:"item"`
	Status     RoundStatus  `json:"status"`
	Mode       RoundMode    `json:"mode"`
	HighBid    int64        `json:"high_bid"`
	HighBidder *int64       `json:"high_bidder,omitempty"`
	Bids       []Bid        `json:"bids"`
	Duration   int          `json:"duration_sec"`
	Outcome    RoundOutcome `json:"outcome,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
}

// IsOpen reports whether the round accepts bids.
func (r *Round) IsOpen() bool {
	return r.Status == RoundStatusActive
}

// Terminal reports whether the round has left the live part of its lifecycle.
func (r *Round) Terminal() bool {
	return r.Status == RoundStatusCompleted || r.Status == RoundStatusCancelled
}
