package outbox

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	nextSeq int64
	marked  map[int64]bool
}

// NewMemoryStore creates an empty in-memory outbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextSeq: 1, marked: make(map[int64]bool)}
}

func (m *MemoryStore) Insert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.EventID == rec.EventID {
			return nil
		}
	}
	rec.Seq = m.nextSeq
	m.nextSeq++
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) FetchUnpublished(ctx context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if m.marked[r.Seq] {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkPublished(ctx context.Context, seqs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seq := range seqs {
		m.marked[seq] = true
	}
	return nil
}

// All returns every stored record, published or not.
func (m *MemoryStore) All() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
