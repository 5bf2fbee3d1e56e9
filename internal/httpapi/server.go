// Package httpapi serves the ledger surface over HTTP: weight reads,
// position lifecycle, settlements, claims and epoch control, plus the
// Prometheus endpoint and the live event feed.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"weight-ledger/internal/dividend"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/epoch"
	"weight-ledger/internal/ledger"
	"weight-ledger/internal/observability"
	"weight-ledger/internal/storage"
)

// Server wires the ledger services into an HTTP router.
type Server struct {
	ledger    *ledger.Ledger
	dividends *dividend.Engine
	epochs    *epoch.Checkpointer
	feed      http.Handler
	logger    *zap.Logger
}

// Options for creating a Server.
type Options struct {
	Ledger    *ledger.Ledger
	Dividends *dividend.Engine
	Epochs    *epoch.Checkpointer

	Feed   http.Handler // optional, mounted at /ws
	Logger *zap.Logger  // optional
}

// New creates a new Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ledger:    opts.Ledger,
		dividends: opts.Dividends,
		epochs:    opts.Epochs,
		feed:      opts.Feed,
		logger:    logger,
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())
	if s.feed != nil {
		r.Handle("/ws", s.feed)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/positions", s.handleWrap)
		r.Get("/positions/{id}", s.handlePosition)
		r.Post("/positions/{id}/unwrap", s.handleUnwrap)
		r.Post("/positions/{id}/vote", s.handleVote)
		r.Get("/positions/{id}/weight", s.handlePositionWeight)
		r.Get("/positions/{id}/weights/{participant}", s.handleParticipantWeight)
		r.Get("/weights/global", s.handleGlobalWeight)

		r.Post("/positions/{id}/settle", s.handleSettle)
		r.Get("/payouts/{currency}", s.handlePayoutCount)
		r.Get("/payouts/{currency}/{index}", s.handlePayout)
		r.Post("/claims/{currency}", s.handleClaim)
		r.Get("/claims/{currency}/{claimant}", s.handleClaims)

		r.Get("/epoch", s.handleEpochState)
		r.Post("/epoch/checkpoint", s.handleCheckpoint)
		r.Post("/epoch/kill", s.handleKill)
	})

	return r
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the JSON body for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain and storage errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrPositionInactive):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidRatio),
		errors.Is(err, domain.ErrValueRange):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// atParam parses the optional ?at= query parameter. A missing parameter
// returns ok with the zero time, meaning "now".
func atParam(r *http.Request) (int64, bool, error) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return 0, false, nil
	}
	t, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return t, true, nil
}
