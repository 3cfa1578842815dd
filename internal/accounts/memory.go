package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/gavel/internal/models"
)

// MemoryRepository is an in-memory Repository for tests and development.
type MemoryRepository struct {
	mu      sync.Mutex
	bidders map[int64]*models.Bidder
	// Acquisitions records (bidderID, itemName, amount) tuples so tests
	// can assert settlement effects.
	Acquisitions []Acquisition
}

// Acquisition is one recorded item purchase.
type Acquisition struct {
	BidderID int64
	ItemName string
	Amount   int64
}

// NewMemoryRepository creates an empty in-memory account store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bidders: make(map[int64]*models.Bidder)}
}

func (m *MemoryRepository) CreateBidder(ctx context.Context, bidder models.Bidder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bidders[bidder.ID]; exists {
		return fmt.Errorf("bidder %d already exists", bidder.ID)
	}
	b := bidder
	m.bidders[bidder.ID] = &b
	return nil
}

func (m *MemoryRepository) GetBidder(ctx context.Context, id int64) (*models.Bidder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bidders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

func (m *MemoryRepository) Debit(ctx context.Context, id int64, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bidders[id]
	if !ok {
		return ErrNotFound
	}
	if b.Balance < amount {
		return ErrInsufficientBalance
	}
	b.Balance -= amount
	b.TotalSpent += amount
	return nil
}

func (m *MemoryRepository) SetBanned(ctx context.Context, id int64, banned bool, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bidders[id]
	if !ok {
		return ErrNotFound
	}
	b.Banned = banned
	b.BanReason = reason
	return nil
}

func (m *MemoryRepository) RecordAcquisition(ctx context.Context, id int64, itemName string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bidders[id]; !ok {
		return ErrNotFound
	}
	m.Acquisitions = append(m.Acquisitions, Acquisition{BidderID: id, ItemName: itemName, Amount: amount})
	return nil
}

func (m *MemoryRepository) ListBidders(ctx context.Context, includeBanned bool) ([]models.Bidder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Bidder, 0, len(m.bidders))
	for _, b := range m.bidders {
		if !includeBanned && b.Banned {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}
