package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/internal/accounts"
	"github.com/mcdev12/gavel/internal/auction/round"
	"github.com/mcdev12/gavel/internal/auction/sequencer"
	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/items"
	"github.com/mcdev12/gavel/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain sentinels onto HTTP status codes. Explicit no-op
// signals come back as 409 so clients can distinguish them from failures.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, accounts.ErrNotFound), errors.Is(err, items.ErrNotFound),
		errors.Is(err, sequencer.ErrNoActiveRound), errors.Is(err, sequencer.ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, sequencer.ErrRoundInProgress), errors.Is(err, sequencer.ErrQueueEmpty),
		errors.Is(err, sequencer.ErrNotInBreak),
		errors.Is(err, round.ErrAlreadyFinal), errors.Is(err, round.ErrSettlementPending),
		errors.Is(err, round.ErrNotActive), errors.Is(err, round.ErrNotPaused),
		errors.Is(err, round.ErrAlreadyPaused), errors.Is(err, round.ErrNotPending),
		errors.Is(err, round.ErrNothingToUndo):
		status = http.StatusConflict
	case errors.Is(err, accounts.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleRegisterBidder(w http.ResponseWriter, r *http.Request) {
	var req accounts.CreateBidderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleListBidders(w http.ResponseWriter, r *http.Request) {
	includeBanned := r.URL.Query().Get("include_banned") == "true"
	bidders, err := s.accounts.List(r.Context(), includeBanned)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bidders)
}

func bidderIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid bidder id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetBidder(w http.ResponseWriter, r *http.Request) {
	id, ok := bidderIDFromPath(w, r)
	if !ok {
		return
	}
	b, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBanBidder(w http.ResponseWriter, r *http.Request) {
	id, ok := bidderIDFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.accounts.Ban(r.Context(), id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"banned": true})
}

func (s *Server) handleUnbanBidder(w http.ResponseWriter, r *http.Request) {
	id, ok := bidderIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.accounts.Unban(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"banned": false})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req items.CreateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := s.items.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	status := models.ItemStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.ItemStatusAvailable
	}
	list, err := s.items.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleLoadQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := s.items.NextAvailable(r.Context(), req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.seq.LoadQueue(r.Context(), batch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": len(batch)})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if err := s.seq.Advance(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)
	writeJSON(w, http.StatusOK, map[string]bool{"advanced": true})
}

type roundStatusResponse struct {
	Round       *round.Snapshot `json:"round,omitempty"`
	InBreak     bool            `json:"in_break"`
	BreakRemSec int             `json:"break_remaining_sec,omitempty"`
	LastRound   *round.Snapshot `json:"last_round,omitempty"`
}

func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	resp := roundStatusResponse{}
	resp.InBreak, resp.BreakRemSec = s.seq.InBreak()

	eng, err := s.seq.Current()
	if err == nil {
		snap := eng.Snapshot()
		resp.Round = &snap
		s.cacheSnapshot(r, snap)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if !errors.Is(err, sequencer.ErrNoActiveRound) {
		writeError(w, err)
		return
	}

	if s.cache != nil {
		if snap, cerr := s.cache.GetSnapshot(r.Context()); cerr == nil {
			resp.LastRound = &snap
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BidderID int64  `json:"bidder_id"`
		Amount   string `json:"amount"`
		Source   string `json:"source"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	source := models.BidSourceCommand
	switch req.Source {
	case string(models.BidSourceQuick):
		source = models.BidSourceQuick
	case string(models.BidSourceAuto):
		source = models.BidSourceAuto
	}

	eng, err := s.seq.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := eng.SubmitBid(r.Context(), req.BidderID, req.Amount, source)
	if err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)

	status := http.StatusOK
	if !res.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	eng, err := s.seq.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	removed, err := eng.UndoLastBid(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)
	writeJSON(w, http.StatusOK, removed)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	eng, err := s.seq.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.Pause(r.Context(), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	eng, err := s.seq.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.Resume(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)
	writeJSON(w, http.StatusOK, map[string]bool{"resumed": true})
}

func (s *Server) handleFinalCall(w http.ResponseWriter, r *http.Request) {
	eng, err := s.seq.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.FinalCall(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"final_call": true})
}

// handleSkip closes the round immediately with its current state: sold if a
// high bidder exists, unsold otherwise.
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	eng, err := s.seq.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.Finalize(r.Context(), round.TriggerSkip); err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)
	writeJSON(w, http.StatusOK, map[string]bool{"skipped": true})
}

func (s *Server) handleRetrySettlement(w http.ResponseWriter, r *http.Request) {
	eng, err := s.seq.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := eng.RetrySettlement(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)
	writeJSON(w, http.StatusOK, map[string]bool{"settled": true})
}

func (s *Server) handleSkipBreak(w http.ResponseWriter, r *http.Request) {
	if err := s.seq.SkipBreak(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.refreshCache(r)
	writeJSON(w, http.StatusOK, map[string]bool{"skipped": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.seq.Session()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	if err := s.seq.FinishSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"finished": true})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Auction())
}

// handleUpdateSettings replaces the runtime auction settings. Changes apply
// to the next round; a live countdown is never retimed mid-flight.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var next config.AuctionConfig
	if !decodeBody(w, r, &next) {
		return
	}
	if err := s.settings.Update(next); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Auction())
}

// refreshCache mirrors the live round into the snapshot cache, best effort.
func (s *Server) refreshCache(r *http.Request) {
	if s.cache == nil {
		return
	}
	eng, err := s.seq.Current()
	if err != nil {
		return
	}
	s.cacheSnapshot(r, eng.Snapshot())
}

func (s *Server) cacheSnapshot(r *http.Request, snap round.Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSnapshot(r.Context(), snap); err != nil {
		log.Warn().Err(err).Msg("failed to cache round snapshot")
	}
}
