package models

import "time"

// Bidder is the account view the core needs: balance and ban status. The
// account record itself is owned by the accounts package; the auction engine
// never caches a mutable copy.
type Bidder struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Balance    int64      `json:"balance"`
	TotalSpent int64      `json:"total_spent"`
	Banned     bool       `json:"banned"`
	BanReason  *string    `json:"ban_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive *time.Time `json:"last_active,omitempty"`
}
