package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/gavel/internal/auction/round"
	"github.com/redis/go-redis/v9"
)

// ErrNotCached is returned when no snapshot is stored.
var ErrNotCached = errors.New("round snapshot not cached")

// snapshotTTL bounds staleness if an update is ever missed; the engine
// rewrites the snapshot on every state change.
const snapshotTTL = 10 * time.Minute

const currentRoundKey = "auction:round:current"

// RoundCache stores the latest round snapshot as JSON under a single key.
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

// SetSnapshot stores the current round snapshot.
func (rc *RoundCache) SetSnapshot(ctx context.Context, snap round.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal round snapshot: %w", err)
	}
	if err := rc.rdb.Set(ctx, currentRoundKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set round snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot, or ErrNotCached.
func (rc *RoundCache) GetSnapshot(ctx context.Context) (round.Snapshot, error) {
	data, err := rc.rdb.Get(ctx, currentRoundKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return round.Snapshot{}, ErrNotCached
		}
		return round.Snapshot{}, fmt.Errorf("redis: get round snapshot: %w", err)
	}
	var snap round.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return round.Snapshot{}, fmt.Errorf("redis: unmarshal round snapshot: %w", err)
	}
	return snap, nil
}

// Clear removes the cached snapshot, used when no round is live.
func (rc *RoundCache) Clear(ctx context.Context) error {
	if err := rc.rdb.Del(ctx, currentRoundKey).Err(); err != nil {
		return fmt.Errorf("redis: clear round snapshot: %w", err)
	}
	return nil
}
