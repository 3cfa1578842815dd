// Package sequencer drives the session: it holds the ordered item backlog,
// owns round creation exclusively (which enforces at most one active round
// system-wide), runs inter-round breaks and tracks session aggregates.
package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/internal/auction/clock"
	"github.com/mcdev12/gavel/internal/auction/events"
	"github.com/mcdev12/gavel/internal/auction/round"
	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/models"
)

var (
	// ErrRoundInProgress is returned when advancing while a round is live.
	ErrRoundInProgress = errors.New("a round is already in progress")
	// ErrQueueEmpty is the explicit no-op signal for advancing with no
	// backlog; it triggers session finish.
	ErrQueueEmpty = errors.New("item queue is empty")
	// ErrNoActiveRound is returned for round operations with no live round.
	ErrNoActiveRound = errors.New("no active round")
	// ErrNotInBreak is the explicit no-op signal for skipping outside a
	// break.
	ErrNotInBreak = errors.New("not in a break")
	// ErrNoSession is returned when no session has been started.
	ErrNoSession = errors.New("no active session")
)

// SessionRepository persists session records and aggregates.
type SessionRepository interface {
	SaveSession(ctx context.Context, s *models.Session) error
}

// RoundStore is what the sequencer needs from round persistence beyond the
// engine's own saves: recovering the last active round after a restart.
type RoundStore interface {
	round.Repository
	ActiveRound(ctx context.Context) (*models.Round, error)
}

// Sequencer coordinates rounds, breaks and the session lifecycle.
type Sequencer struct {
	mu sync.Mutex

	settings *config.Store
	clocks   *clock.Service
	clk      clockwork.Clock
	accounts round.AccountReader
	rounds   RoundStore
	sessions SessionRepository
	recorder round.Recorder
	settler  round.Settler

	session *models.Session
	queue   []models.Item
	current *round.Engine

	breakID uuid.UUID
	inBreak bool

	// participants collects every bidder who placed an accepted bid this
	// session.
	participants map[int64]struct{}
}

// New creates a sequencer. Nothing runs until LoadQueue and Advance.
func New(
	settings *config.Store,
	clocks *clock.Service,
	clk clockwork.Clock,
	accounts round.AccountReader,
	rounds RoundStore,
	sessions SessionRepository,
	recorder round.Recorder,
	settler round.Settler,
) *Sequencer {
	return &Sequencer{
		settings:     settings,
		clocks:       clocks,
		clk:          clk,
		accounts:     accounts,
		rounds:       rounds,
		sessions:     sessions,
		recorder:     recorder,
		settler:      settler,
		breakID:      uuid.New(),
		participants: make(map[int64]struct{}),
	}
}

// LoadQueue replaces the pending backlog and starts a session if none is
// active.
func (s *Sequencer) LoadQueue(ctx context.Context, items []models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append([]models.Item(nil), items...)

	if s.session == nil || s.session.Status != models.SessionStatusActive {
		now := s.clk.Now()
		s.session = &models.Session{
			ID:        uuid.New(),
			Name:      "Auction Session " + now.Format("2006-01-02 15:04"),
			Status:    models.SessionStatusActive,
			StartedAt: now,
		}
		s.participants = make(map[int64]struct{})
		if err := s.sessions.SaveSession(ctx, s.session); err != nil {
			return err
		}
		log.Info().
			Str("session_id", s.session.ID.String()).
			Int("items", len(items)).
			Msg("session started")
	} else {
		log.Info().
			Str("session_id", s.session.ID.String()).
			Int("items", len(items)).
			Msg("queue replaced")
	}
	return nil
}

// Advance pops the next item and opens a round for it. Returns ErrQueueEmpty
// (and finishes the session) when nothing is left. Only this method creates
// rounds, so two rounds can never be active at once.
func (s *Sequencer) Advance(ctx context.Context) error {
	s.mu.Lock()

	if s.session == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.current != nil && !s.currentDoneLocked() {
		s.mu.Unlock()
		return ErrRoundInProgress
	}
	if s.inBreak {
		s.cancelBreakLocked()
	}
	if len(s.queue) == 0 {
		s.mu.Unlock()
		if err := s.FinishSession(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			return err
		}
		return ErrQueueEmpty
	}

	item := s.queue[0]
	s.queue = s.queue[1:]

	mode := models.RoundMode(s.settings.Auction().Mode)
	eng := round.New(
		s.session.ID,
		item,
		mode,
		s.settings,
		s.clocks,
		s.clk,
		s.accounts,
		s.rounds,
		s.recorder,
		s.settler,
		s.onRoundSettled,
	)
	s.current = eng
	s.mu.Unlock()

	return eng.Open(ctx)
}

// Current returns the engine for the live (or settling) round.
func (s *Sequencer) Current() (*round.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.currentDoneLocked() {
		return nil, ErrNoActiveRound
	}
	return s.current, nil
}

// currentDoneLocked reports whether the current engine has reached a
// terminal state.
func (s *Sequencer) currentDoneLocked() bool {
	st := s.current.Status()
	return st == models.RoundStatusCompleted || st == models.RoundStatusCancelled
}

// onRoundSettled runs after a round's settlement confirms. It records the
// aggregates and either starts a break (timed mode) or waits for an explicit
// admin advance (manual mode).
func (s *Sequencer) onRoundSettled(r *models.Round) {
	ctx := context.Background()

	s.mu.Lock()
	if s.session != nil {
		switch r.Outcome {
		case models.RoundOutcomeSold:
			s.session.ItemsSold++
			s.session.TotalValue += r.HighBid
		case models.RoundOutcomeUnsold:
			s.session.ItemsUnsold++
		}
		for _, b := range r.Bids {
			s.participants[b.BidderID] = struct{}{}
		}
		s.session.Bidders = s.participantsLocked()
		if err := s.sessions.SaveSession(ctx, s.session); err != nil {
			log.Error().Err(err).Str("session_id", s.session.ID.String()).Msg("failed to persist session aggregates")
		}
	}

	manual := r.Mode == models.RoundModeManualCall
	queueEmpty := len(s.queue) == 0
	s.mu.Unlock()

	if manual {
		log.Info().Str("round_id", r.ID.String()).Msg("manual mode; waiting for admin advance")
		return
	}
	if queueEmpty {
		if err := s.FinishSession(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			log.Error().Err(err).Msg("failed to finish session")
		}
		return
	}
	s.startBreak(ctx)
}

func (s *Sequencer) participantsLocked() []int64 {
	out := make([]int64, 0, len(s.participants))
	for id := range s.participants {
		out = append(out, id)
	}
	return out
}

// startBreak begins the configurable inter-round pause that expires into
// Advance.
func (s *Sequencer) startBreak(ctx context.Context) {
	s.mu.Lock()
	cfg := s.settings.Auction()
	d := cfg.BreakDuration()
	s.inBreak = true
	var nextID string
	if len(s.queue) > 0 {
		nextID = s.queue[0].ID.String()
	}
	if _, err := s.clocks.Start(s.breakID, d, s.onBreakExpiry); err != nil {
		// A previous break timer is still live; replace it.
		if _, err := s.clocks.Reset(s.breakID, d); err != nil {
			s.inBreak = false
			s.mu.Unlock()
			log.Error().Err(err).Msg("failed to start break timer")
			return
		}
	}
	s.mu.Unlock()

	s.record(ctx, events.EventTypeBreakStarted, events.BreakStartedPayload{
		DurationSec: cfg.BreakDurationSec,
		NextItemID:  nextID,
		StartedAt:   s.clk.Now(),
	})
	log.Info().Int("duration_sec", cfg.BreakDurationSec).Msg("break started")
}

func (s *Sequencer) onBreakExpiry(id uuid.UUID, generation uint64) {
	s.mu.Lock()
	s.inBreak = false
	s.mu.Unlock()

	if err := s.Advance(context.Background()); err != nil && !errors.Is(err, ErrQueueEmpty) {
		log.Error().Err(err).Msg("failed to advance after break")
	}
}

// SkipBreak cancels the remaining break time and advances immediately.
// Explicit no-op signal when no break is running.
func (s *Sequencer) SkipBreak(ctx context.Context) error {
	s.mu.Lock()
	if !s.inBreak {
		s.mu.Unlock()
		return ErrNotInBreak
	}
	var remaining int
	if rem, ok := s.clocks.Remaining(s.breakID); ok {
		remaining = int(rem / time.Second)
	}
	s.cancelBreakLocked()
	s.mu.Unlock()

	s.record(ctx, events.EventTypeBreakSkipped, events.BreakSkippedPayload{
		RemainingSec: remaining,
		SkippedAt:    s.clk.Now(),
	})
	log.Info().Int("remaining_sec", remaining).Msg("break skipped")
	return s.Advance(ctx)
}

func (s *Sequencer) cancelBreakLocked() {
	s.clocks.Cancel(s.breakID)
	s.inBreak = false
}

// FinishSession closes the session and emits its aggregates. Called when the
// queue empties or explicitly by an admin.
func (s *Sequencer) FinishSession(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil || s.session.Status != models.SessionStatusActive {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.inBreak {
		s.cancelBreakLocked()
	}

	now := s.clk.Now()
	s.session.Status = models.SessionStatusFinished
	s.session.FinishedAt = &now
	s.session.Bidders = s.participantsLocked()
	done := *s.session
	if err := s.sessions.SaveSession(ctx, s.session); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.record(ctx, events.EventTypeSessionFinished, events.SessionFinishedPayload{
		ItemsSold:    done.ItemsSold,
		ItemsUnsold:  done.ItemsUnsold,
		TotalValue:   done.TotalValue,
		Participants: len(done.Bidders),
		FinishedAt:   now,
	})
	log.Info().
		Str("session_id", done.ID.String()).
		Int("sold", done.ItemsSold).
		Int("unsold", done.ItemsUnsold).
		Int64("total_value", done.TotalValue).
		Int("participants", len(done.Bidders)).
		Msg("session finished")
	return nil
}

// Session returns a copy of the current session state.
func (s *Sequencer) Session() (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return models.Session{}, ErrNoSession
	}
	return *s.session, nil
}

// InBreak reports whether an inter-round break is running and its remaining
// seconds.
func (s *Sequencer) InBreak() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inBreak {
		return false, 0
	}
	if rem, ok := s.clocks.Remaining(s.breakID); ok {
		return true, int(rem / time.Second)
	}
	return true, 0
}

// Recover reloads a persisted active round after a restart and re-arms its
// countdown, so a crash mid-round cannot silently lose settlement
// obligations.
func (s *Sequencer) Recover(ctx context.Context) error {
	r, err := s.rounds.ActiveRound(ctx)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}

	s.mu.Lock()
	s.session = &models.Session{
		ID:        r.SessionID,
		Status:    models.SessionStatusActive,
		StartedAt: r.CreatedAt,
	}
	eng := round.NewFromRecovered(
		r,
		s.settings,
		s.clocks,
		s.clk,
		s.accounts,
		s.rounds,
		s.recorder,
		s.settler,
		s.onRoundSettled,
	)
	s.current = eng
	s.mu.Unlock()

	log.Info().
		Str("round_id", r.ID.String()).
		Str("status", string(r.Status)).
		Int("bids", len(r.Bids)).
		Msg("recovered in-flight round")

	if r.Status == models.RoundStatusActive {
		return eng.Rearm(ctx)
	}
	if r.Status == models.RoundStatusFinalizing {
		// Settlement was never confirmed; finish it now.
		return eng.Finalize(ctx, round.TriggerStuckSweep)
	}
	return nil
}

// RunJanitor periodically force-finalizes rounds that have been active far
// beyond the configured ceiling, matching the stuck-auction sweep the
// original operators relied on. Blocks until ctx is done.
func (s *Sequencer) RunJanitor(ctx context.Context) error {
	ticker := s.clk.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

func (s *Sequencer) sweep(ctx context.Context) {
	eng, err := s.Current()
	if err != nil {
		return
	}
	snap := eng.Snapshot()
	if snap.Round.Status != models.RoundStatusActive || snap.Round.StartedAt == nil {
		return
	}
	ceiling := time.Duration(s.settings.Auction().StuckRoundCeilingSec) * time.Second
	age := s.clk.Now().Sub(*snap.Round.StartedAt)
	if age < ceiling {
		return
	}

	log.Warn().
		Str("round_id", snap.Round.ID.String()).
		Dur("age", age).
		Msg("force-finalizing stuck round")
	if err := eng.Finalize(ctx, round.TriggerStuckSweep); err != nil && !errors.Is(err, round.ErrAlreadyFinal) {
		log.Error().Err(err).Str("round_id", snap.Round.ID.String()).Msg("stuck round finalization failed")
	}
}

func (s *Sequencer) record(ctx context.Context, typ events.EventType, payload interface{}) {
	s.mu.Lock()
	var sessionID string
	if s.session != nil {
		sessionID = s.session.ID.String()
	}
	s.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal event payload")
		return
	}
	ev := events.Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: s.clk.Now(),
		Data:      data,
	}
	if err := s.recorder.Record(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to record event")
	}
}
