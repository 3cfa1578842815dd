// Package accounts owns bidder identity, balance and ban state. The auction
// core reads balances for validation and issues debits on settlement; it
// never caches a mutable copy.
package accounts

import (
	"context"
	"fmt"

	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/models"
	"github.com/rs/zerolog/log"
)

// App handles account business logic over a Repository.
type App struct {
	repo     Repository
	settings *config.Store
}

// NewApp creates an accounts App.
func NewApp(repo Repository, settings *config.Store) *App {
	return &App{repo: repo, settings: settings}
}

// Register creates a bidder with the configured default balance unless the
// request carries an explicit one.
func (a *App) Register(ctx context.Context, req CreateBidderRequest) (*models.Bidder, error) {
	balance := a.settings.Auction().DefaultBalance
	if req.Balance != nil {
		balance = *req.Balance
	}
	bidder := models.Bidder{
		ID:      req.ID,
		Name:    req.Name,
		Balance: balance,
	}
	if err := a.repo.CreateBidder(ctx, bidder); err != nil {
		return nil, fmt.Errorf("failed to register bidder %d: %w", req.ID, err)
	}
	log.Info().Int64("bidder_id", req.ID).Int64("balance", balance).Msg("bidder registered")
	return &bidder, nil
}

// GetBalance returns the bidder's available balance.
func (a *App) GetBalance(ctx context.Context, bidderID int64) (int64, error) {
	b, err := a.repo.GetBidder(ctx, bidderID)
	if err != nil {
		return 0, err
	}
	return b.Balance, nil
}

// IsBanned reports the bidder's ban flag.
func (a *App) IsBanned(ctx context.Context, bidderID int64) (bool, error) {
	b, err := a.repo.GetBidder(ctx, bidderID)
	if err != nil {
		return false, err
	}
	return b.Banned, nil
}

// Ban flags a bidder so the validator rejects their bids.
func (a *App) Ban(ctx context.Context, bidderID int64, reason string) error {
	if err := a.repo.SetBanned(ctx, bidderID, true, &reason); err != nil {
		return fmt.Errorf("failed to ban bidder %d: %w", bidderID, err)
	}
	log.Info().Int64("bidder_id", bidderID).Str("reason", reason).Msg("bidder banned")
	return nil
}

// Unban clears a bidder's ban flag.
func (a *App) Unban(ctx context.Context, bidderID int64) error {
	if err := a.repo.SetBanned(ctx, bidderID, false, nil); err != nil {
		return fmt.Errorf("failed to unban bidder %d: %w", bidderID, err)
	}
	log.Info().Int64("bidder_id", bidderID).Msg("bidder unbanned")
	return nil
}

// Get returns the full account record.
func (a *App) Get(ctx context.Context, bidderID int64) (*models.Bidder, error) {
	return a.repo.GetBidder(ctx, bidderID)
}

// List returns all bidder accounts.
func (a *App) List(ctx context.Context, includeBanned bool) ([]models.Bidder, error) {
	return a.repo.ListBidders(ctx, includeBanned)
}
