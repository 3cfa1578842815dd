package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the state of an auction session.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusFinished SessionStatus = "FINISHED"
)

// Session is an ordered run of rounds with breaks between them. A session
// owns zero or one active round at a time.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Status      SessionStatus `json:"status"`
	ItemsSold   int           `json:"items_sold"`
	ItemsUnsold int           `json:"items_unsold"`
	TotalValue  int64         `json:"total_value"`
	// Bidders holds the IDs of everyone who placed at least one accepted bid.
	Bidders    []int64    `json:"bidders,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
