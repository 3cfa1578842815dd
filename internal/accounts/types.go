package accounts

import (
	"context"
	"errors"

	"github.com/mcdev12/gavel/internal/models"
)

var (
	// ErrNotFound is returned when a bidder account does not exist.
	ErrNotFound = errors.New("bidder not found")
	// ErrInsufficientBalance is returned when a debit would overdraw.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Repository is the storage layer for bidder accounts.
type Repository interface {
	CreateBidder(ctx context.Context, bidder models.Bidder) error
	GetBidder(ctx context.Context, id int64) (*models.Bidder, error)
	// Debit subtracts amount conditionally on sufficient balance; the
	// condition lives in the store so a retry can never double-charge.
	Debit(ctx context.Context, id int64, amount int64) error
	SetBanned(ctx context.Context, id int64, banned bool, reason *string) error
	RecordAcquisition(ctx context.Context, id int64, itemName string, amount int64) error
	ListBidders(ctx context.Context, includeBanned bool) ([]models.Bidder, error)
}

// CreateBidderRequest carries what registration needs; balance defaults from
// configuration.
type CreateBidderRequest struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Balance *int64 `json:"balance,omitempty"`
}
