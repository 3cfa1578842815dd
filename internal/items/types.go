package items

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/internal/models"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("item not found")

// Repository is the storage layer for auction items.
type Repository interface {
	CreateItem(ctx context.Context, item models.Item) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	// ListByStatus returns items in the given status, oldest first, up to
	// limit (0 means no limit).
	ListByStatus(ctx context.Context, status models.ItemStatus, limit int) ([]models.Item, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus) error
	MarkSold(ctx context.Context, id uuid.UUID, soldTo int64, finalPrice int64) error
	MarkUnsold(ctx context.Context, id uuid.UUID) error
}

// CreateItemRequest carries the fields a new lot needs.
type CreateItemRequest struct {
	Name      string          `json:"name"`
	BasePrice int64           `json:"base_price"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}
