package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ItemStatus tracks an item through the auction pipeline.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "AVAILABLE"
	ItemStatusQueued    ItemStatus = "QUEUED"
	ItemStatusSold      ItemStatus = "SOLD"
	ItemStatusUnsold    ItemStatus = "UNSOLD"
)

// Item is one lot offered in a round.
type Item struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	BasePrice  int64           `json:"base_price"`
	Status     ItemStatus      `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	SoldTo     *int64          `json:"sold_to,omitempty"`
	FinalPrice *int64          `json:"final_price,omitempty"`
}
