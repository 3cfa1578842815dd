package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/internal/accounts"
	"github.com/mcdev12/gavel/internal/auction/round"
	"github.com/mcdev12/gavel/internal/auction/sequencer"
	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/items"
)

// SnapshotCache mirrors the live round state into a fast store so status
// polls can be served without touching the engine.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap round.Snapshot) error
	GetSnapshot(ctx context.Context) (round.Snapshot, error)
	Clear(ctx context.Context) error
}

// Server is the HTTP surface: bidder operations, admin controls and the
// WebSocket event stream.
type Server struct {
	seq      *sequencer.Sequencer
	accounts *accounts.App
	items    *items.App
	settings *config.Store
	hub      *Hub
	cache    SnapshotCache

	cfg config.GatewayConfig
}

// NewServer creates the gateway. cache may be nil.
func NewServer(
	seq *sequencer.Sequencer,
	accountsApp *accounts.App,
	itemsApp *items.App,
	settings *config.Store,
	hub *Hub,
	cache SnapshotCache,
	cfg config.GatewayConfig,
) *Server {
	return &Server{
		seq:      seq,
		accounts: accountsApp,
		items:    itemsApp,
		settings: settings,
		hub:      hub,
		cache:    cache,
		cfg:      cfg,
	}
}

// Handler builds the full route table wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.hub.HandleWS)

	mux.HandleFunc("POST /api/bidders", s.handleRegisterBidder)
	mux.HandleFunc("GET /api/bidders", s.handleListBidders)
	mux.HandleFunc("GET /api/bidders/{id}", s.handleGetBidder)
	mux.HandleFunc("POST /api/bidders/{id}/ban", s.handleBanBidder)
	mux.HandleFunc("POST /api/bidders/{id}/unban", s.handleUnbanBidder)

	mux.HandleFunc("POST /api/items", s.handleCreateItem)
	mux.HandleFunc("GET /api/items", s.handleListItems)

	mux.HandleFunc("POST /api/queue/load", s.handleLoadQueue)

	mux.HandleFunc("POST /api/rounds/advance", s.handleAdvance)
	mux.HandleFunc("GET /api/rounds/current", s.handleCurrentRound)
	mux.HandleFunc("POST /api/rounds/bid", s.handleBid)
	mux.HandleFunc("POST /api/rounds/undo", s.handleUndo)
	mux.HandleFunc("POST /api/rounds/pause", s.handlePause)
	mux.HandleFunc("POST /api/rounds/resume", s.handleResume)
	mux.HandleFunc("POST /api/rounds/final-call", s.handleFinalCall)
	mux.HandleFunc("POST /api/rounds/skip", s.handleSkip)
	mux.HandleFunc("POST /api/rounds/retry-settlement", s.handleRetrySettlement)

	mux.HandleFunc("POST /api/breaks/skip", s.handleSkipBreak)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/session/finish", s.handleFinishSession)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
