package models

import "time"

// BidSource tags how a bid reached the system.
type BidSource string

const (
	BidSourceCommand BidSource = "COMMAND"
	BidSourceQuick   BidSource = "QUICK"
	BidSourceAuto    BidSource = "AUTO"
)

// Bid is an immutable record of one accepted bid. The ID is a ULID so the
// append-only history sorts by creation time.
type Bid struct {
	ID       string    `json:"id"`
	BidderID int64     `json:"bidder_id"`
	Amount   int64     `json:"amount"`
	Source   BidSource `json:"source"`
	PlacedAt time.Time `json:"placed_at"`
}
