// Package clock provides cancellable one-shot countdowns for auction rounds
// and breaks. Each Start/Reset begins a new timer generation; an expiry from
// an older generation is suppressed, so once Reset returns the pre-reset
// countdown can never fire.
package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyRunning is returned by Start when the id has a live timer.
	ErrAlreadyRunning = errors.New("timer already running")
	// ErrNotRunning is returned by Reset when the id has no live timer.
	ErrNotRunning = errors.New("timer not running")
)

// ExpiryFunc is invoked at most once per timer generation. Callers receive
// the id and generation so they can re-validate state before acting on what
// may be a stale expiry.
type ExpiryFunc func(id uuid.UUID, generation uint64)

type entry struct {
	generation uint64
	timer      clockwork.Timer
	deadline   time.Time
	fn         ExpiryFunc
	stop       chan struct{}
}

// Service owns the countdowns. All timer replacement happens under one mutex
// so a reset and an expiry can never interleave.
type Service struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[uuid.UUID]*entry
	gens   map[uuid.UUID]uint64
}

// New creates a Service. Pass clockwork.NewRealClock() in production and a
// FakeClock in tests.
func New(clk clockwork.Clock) *Service {
	return &Service{
		clock:  clk,
		timers: make(map[uuid.UUID]*entry),
		gens:   make(map[uuid.UUID]uint64),
	}
}

// Start begins a countdown for id. Fails with ErrAlreadyRunning if a live
// timer exists; callers must Cancel first.
func (s *Service) Start(id uuid.UUID, d time.Duration, fn ExpiryFunc) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.timers[id]; exists {
		return 0, ErrAlreadyRunning
	}
	return s.startLocked(id, d, fn), nil
}

// Reset atomically cancels the existing countdown for id and starts a fresh
// one with the same expiry callback. Once Reset returns, the old generation
// is permanently suppressed.
func (s *Service) Reset(id uuid.UUID, d time.Duration) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.timers[id]
	if !exists {
		return 0, ErrNotRunning
	}
	fn := existing.fn
	s.cancelLocked(id, existing)
	return s.startLocked(id, d, fn), nil
}

// Cancel stops the countdown for id. Idempotent: cancelling an absent or
// already-expired timer is a no-op.
func (s *Service) Cancel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.timers[id]; exists {
		s.cancelLocked(id, existing)
	}
}

// Remaining returns the time left on the live countdown for id, or false if
// none is running.
func (s *Service) Remaining(id uuid.UUID) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.timers[id]
	if !exists {
		return 0, false
	}
	rem := e.deadline.Sub(s.clock.Now())
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

// Active reports whether id has a live countdown.
func (s *Service) Active(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.timers[id]
	return exists
}

func (s *Service) startLocked(id uuid.UUID, d time.Duration, fn ExpiryFunc) uint64 {
	s.gens[id]++
	gen := s.gens[id]

	e := &entry{
		generation: gen,
		timer:      s.clock.NewTimer(d),
		deadline:   s.clock.Now().Add(d),
		fn:         fn,
		stop:       make(chan struct{}),
	}
	s.timers[id] = e

	go s.wait(id, e)

	log.Debug().
		Str("timer_id", id.String()).
		Uint64("generation", gen).
		Dur("duration", d).
		Msg("countdown started")
	return gen
}

func (s *Service) wait(id uuid.UUID, e *entry) {
	select {
	case <-e.timer.Chan():
		// Confirm this generation is still live before delivering. A
		// reset or cancel that won the lock first has already removed
		// the entry, which suppresses this expiry for good.
		s.mu.Lock()
		current, exists := s.timers[id]
		if !exists || current.generation != e.generation {
			s.mu.Unlock()
			log.Debug().
				Str("timer_id", id.String()).
				Uint64("generation", e.generation).
				Msg("stale expiry suppressed")
			return
		}
		delete(s.timers, id)
		s.mu.Unlock()

		e.fn(id, e.generation)
	case <-e.stop:
	}
}

// cancelLocked stops a timer and drains its channel, following the pattern
// from the time.Timer.Stop documentation.
func (s *Service) cancelLocked(id uuid.UUID, e *entry) {
	close(e.stop)
	if !e.timer.Stop() {
		select {
		case <-e.timer.Chan():
		default:
		}
	}
	delete(s.timers, id)
}
