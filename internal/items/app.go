// Package items manages the catalog of auction lots: creation, queueing and
// the sold/unsold terminal marks written during settlement.
package items

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/internal/models"
	"github.com/rs/zerolog/log"
)

// App handles item business logic over a Repository.
type App struct {
	repo Repository
}

// NewApp creates an items App.
func NewApp(repo Repository) *App {
	return &App{repo: repo}
}

// Create registers a new lot in the AVAILABLE pool.
func (a *App) Create(ctx context.Context, req CreateItemRequest) (*models.Item, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	if req.BasePrice <= 0 {
		return nil, fmt.Errorf("base price must be positive, got %d", req.BasePrice)
	}
	item := models.Item{
		ID:        uuid.New(),
		Name:      req.Name,
		BasePrice: req.BasePrice,
		Status:    models.ItemStatusAvailable,
		Metadata:  req.Metadata,
	}
	if err := a.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item %q: %w", req.Name, err)
	}
	log.Info().Str("item_id", item.ID.String()).Str("name", item.Name).Int64("base_price", item.BasePrice).Msg("item created")
	return &item, nil
}

// NextAvailable returns up to limit AVAILABLE items, oldest first, and marks
// them QUEUED so a second queue load cannot pick them up again.
func (a *App) NextAvailable(ctx context.Context, limit int) ([]models.Item, error) {
	batch, err := a.repo.ListByStatus(ctx, models.ItemStatusAvailable, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list available items: %w", err)
	}
	for i := range batch {
		if err := a.repo.UpdateStatus(ctx, batch[i].ID, models.ItemStatusQueued); err != nil {
			return nil, fmt.Errorf("failed to queue item %s: %w", batch[i].ID, err)
		}
		batch[i].Status = models.ItemStatusQueued
	}
	return batch, nil
}

// Requeue returns an item to the AVAILABLE pool, used when a loaded queue is
// replaced before the item went under the hammer.
func (a *App) Requeue(ctx context.Context, id uuid.UUID) error {
	return a.repo.UpdateStatus(ctx, id, models.ItemStatusAvailable)
}

// Get returns a single item.
func (a *App) Get(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return a.repo.GetItem(ctx, id)
}

// List returns items in a given status.
func (a *App) List(ctx context.Context, status models.ItemStatus) ([]models.Item, error) {
	return a.repo.ListByStatus(ctx, status, 0)
}
