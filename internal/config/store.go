package config

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store holds the live auction settings behind one update entry point. A
// running round reads a consistent snapshot; runtime overrides never race a
// round that is mid-mutation because readers copy the whole struct.
type Store struct {
	mu  sync.RWMutex
	cur AuctionConfig
}

// NewStore creates a settings store seeded with cfg.
func NewStore(cfg AuctionConfig) *Store {
	return &Store{cur: cfg}
}

// Auction returns a snapshot of the current auction settings.
func (s *Store) Auction() AuctionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update validates and swaps in new settings. It is the only way settings
// change at runtime.
func (s *Store) Update(next AuctionConfig) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	prev := s.cur
	s.cur = next
	s.mu.Unlock()

	log.Info().
		Int("round_duration_sec", next.RoundDurationSec).
		Str("mode", next.Mode).
		Int64("increment_step", next.IncrementStep).
		Bool("mode_changed", prev.Mode != next.Mode).
		Msg("auction settings updated")
	return nil
}
