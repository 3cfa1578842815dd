// Package outbox implements the transactional outbox for auction events:
// the core records events next to the state they describe, and a worker
// publishes them to JetStream asynchronously. A broker outage never blocks
// bidding.
package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one stored event awaiting (or after) publication.
type Record struct {
	Seq       int64
	EventID   string
	RoundID   string
	SessionID string
	EventType string
	Payload   json.RawMessage
}

// Store persists outbox records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	FetchUnpublished(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, seqs []int64) error
}

// Publisher delivers a record to the broker. Publishing must be idempotent
// on EventID; the worker may retry a record it already delivered.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// Config tunes the worker's polling loop.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}
