package items

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/internal/models"
)

// MemoryRepository is an in-memory Repository for tests and development.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.Item
	order map[uuid.UUID]time.Time
	seq   int
}

// NewMemoryRepository creates an empty in-memory item store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[uuid.UUID]*models.Item),
		order: make(map[uuid.UUID]time.Time),
	}
}

func (m *MemoryRepository) CreateItem(ctx context.Context, item models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.ID]; exists {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	it := item
	m.items[item.ID] = &it
	m.seq++
	m.order[item.ID] = time.Unix(int64(m.seq), 0)
	return nil
}

func (m *MemoryRepository) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *it
	return &out, nil
}

func (m *MemoryRepository) ListByStatus(ctx context.Context, status models.ItemStatus, limit int) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Item
	for _, it := range m.items {
		if it.Status == status {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.order[out[i].ID].Before(m.order[out[j].ID])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = status
	return nil
}

func (m *MemoryRepository) MarkSold(ctx context.Context, id uuid.UUID, soldTo int64, finalPrice int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = models.ItemStatusSold
	it.SoldTo = &soldTo
	it.FinalPrice = &finalPrice
	return nil
}

func (m *MemoryRepository) MarkUnsold(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = models.ItemStatusUnsold
	it.SoldTo = nil
	it.FinalPrice = nil
	return nil
}
