package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"weight-ledger/internal/account"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// positionResponse is the JSON shape of a position.
type positionResponse struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	Vault            string `json:"vault"`
	DividendRatioBps uint32 `json:"dividend_ratio_bps"`
	WrappedAt        int64  `json:"wrapped_at"`
	UnwrappedAt      int64  `json:"unwrapped_at,omitempty"`
	Active           bool   `json:"active"`
}

func toPositionResponse(p *domain.Position) positionResponse {
	return positionResponse{
		ID:               p.ID,
		Owner:            p.Owner,
		Vault:            p.Vault,
		DividendRatioBps: p.DividendRatioBps,
		WrappedAt:        p.WrappedAt,
		UnwrappedAt:      p.UnwrappedAt,
		Active:           p.Active(),
	}
}

// wrapRequest is the payload for POST /api/v1/positions.
type wrapRequest struct {
	PositionID string `json:"position_id"`
	Owner      string `json:"owner"`
	RatioBps   uint32 `json:"ratio_bps"`
}

func (s *Server) handleWrap(w http.ResponseWriter, r *http.Request) {
	var req wrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if !account.Valid(req.PositionID) {
		s.writeError(w, fmt.Errorf("position id %q: %w", req.PositionID, storage.ErrInvalidInput))
		return
	}

	p, err := s.ledger.Wrap(r.Context(), req.PositionID, req.Owner, req.RatioBps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPositionResponse(p))
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Position(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(p))
}

// unwrapRequest is the payload for POST /api/v1/positions/{id}/unwrap.
type unwrapRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleUnwrap(w http.ResponseWriter, r *http.Request) {
	var req unwrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.ledger.Unwrap(r.Context(), id, req.Caller); err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.ledger.Position(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(p))
}

// voteRequest is the payload for POST /api/v1/positions/{id}/vote.
type voteRequest struct {
	Voter    string `json:"voter"`
	AllocBps uint32 `json:"alloc_bps"`
}

// voteResponse echoes the weight the vote resolved to.
type voteResponse struct {
	Position string `json:"position"`
	Voter    string `json:"voter"`
	Weight   uint64 `json:"weight"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Voter == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "voter is required"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.ledger.Vote(r.Context(), id, req.Voter, req.AllocBps); err != nil {
		s.writeError(w, err)
		return
	}
	weight, err := s.ledger.WeightOf(r.Context(), id, req.Voter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{Position: id, Voter: req.Voter, Weight: weight})
}

// weightResponse carries one weight reading and the time it was taken at.
type weightResponse struct {
	Weight uint64 `json:"weight"`
	At     int64  `json:"at"`
}

func (s *Server) handlePositionWeight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	at, hasAt, err := atParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid at parameter"})
		return
	}

	var weight uint64
	if hasAt {
		weight, err = s.ledger.PositionWeightAt(r.Context(), id, at)
	} else {
		at = s.ledger.Clock().Now()
		weight, err = s.ledger.PositionWeightOf(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weightResponse{Weight: weight, At: at})
}

func (s *Server) handleParticipantWeight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	participant := chi.URLParam(r, "participant")
	at, hasAt, err := atParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid at parameter"})
		return
	}

	var weight uint64
	if hasAt {
		weight, err = s.ledger.WeightAt(r.Context(), id, participant, at)
	} else {
		at = s.ledger.Clock().Now()
		weight, err = s.ledger.WeightOf(r.Context(), id, participant)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weightResponse{Weight: weight, At: at})
}

func (s *Server) handleGlobalWeight(w http.ResponseWriter, r *http.Request) {
	at, hasAt, err := atParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid at parameter"})
		return
	}

	var weight uint64
	if hasAt {
		weight, err = s.ledger.TotalWeightAt(r.Context(), at)
	} else {
		at = s.ledger.Clock().Now()
		weight, err = s.ledger.TotalWeightOf(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weightResponse{Weight: weight, At: at})
}

// payoutResponse is the JSON shape of one payout record. AmountPerUnit is a
// decimal string because the 1e18-scaled value overflows JSON numbers.
type payoutResponse struct {
	Currency      string `json:"currency"`
	Index         uint64 `json:"index"`
	Position      string `json:"position,omitempty"`
	IssuedAt      int64  `json:"issued_at"`
	AmountPerUnit string `json:"amount_per_unit"`
	Amount        uint64 `json:"amount"`
	Source        string `json:"source"`
}

func toPayoutResponse(p *domain.Payout) payoutResponse {
	apu := "0"
	if p.AmountPerUnit != nil {
		apu = p.AmountPerUnit.String()
	}
	return payoutResponse{
		Currency:      p.Currency,
		Index:         p.Index,
		Position:      p.Position,
		IssuedAt:      p.IssuedAt,
		AmountPerUnit: apu,
		Amount:        p.Amount,
		Source:        string(p.Source),
	}
}

// settleRequest is the payload for POST /api/v1/positions/{id}/settle.
type settleRequest struct {
	Currency  string `json:"currency"`
	Payer     string `json:"payer"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// settleResponse reports the payout the settlement produced, if any.
type settleResponse struct {
	Payout *payoutResponse `json:"payout"`
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Currency == "" || req.Payer == "" || req.Recipient == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "currency, payer, recipient required"})
		return
	}

	payout, err := s.dividends.Settle(r.Context(), chi.URLParam(r, "id"), req.Currency, req.Payer, req.Recipient, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := settleResponse{}
	if payout != nil {
		pr := toPayoutResponse(payout)
		resp.Payout = &pr
	}
	writeJSON(w, http.StatusOK, resp)
}

// payoutCountResponse reports the payout list length for a currency.
type payoutCountResponse struct {
	Currency string `json:"currency"`
	Count    uint64 `json:"count"`
}

func (s *Server) handlePayoutCount(w http.ResponseWriter, r *http.Request) {
	currency := chi.URLParam(r, "currency")
	count, err := s.dividends.PayoutCount(r.Context(), currency)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutCountResponse{Currency: currency, Count: count})
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payout index"})
		return
	}

	payout, err := s.dividends.PayoutAt(r.Context(), chi.URLParam(r, "currency"), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutResponse(payout))
}

// claimRequest is the payload for POST /api/v1/claims/{currency}.
type claimRequest struct {
	Claimant string   `json:"claimant"`
	Indices  []uint64 `json:"indices"`
}

// claimResponse reports the total paid for a claim batch.
type claimResponse struct {
	Currency string `json:"currency"`
	Claimant string `json:"claimant"`
	Total    uint64 `json:"total"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Claimant == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "claimant is required"})
		return
	}

	currency := chi.URLParam(r, "currency")
	total, err := s.dividends.Claim(r.Context(), currency, req.Indices, req.Claimant)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Currency: currency, Claimant: req.Claimant, Total: total})
}

// claimRecord is the JSON shape of one recorded claim.
type claimRecord struct {
	Index     uint64 `json:"index"`
	Amount    uint64 `json:"amount"`
	ClaimedAt int64  `json:"claimed_at"`
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := s.dividends.ClaimsOf(r.Context(), chi.URLParam(r, "currency"), chi.URLParam(r, "claimant"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	records := make([]claimRecord, 0, len(claims))
	for _, c := range claims {
		records = append(records, claimRecord{Index: c.Index, Amount: c.Amount, ClaimedAt: c.ClaimedAt})
	}
	writeJSON(w, http.StatusOK, records)
}

// epochResponse is the JSON shape of the checkpointer state. Initialized is
// false until the first checkpoint call creates the state row.
type epochResponse struct {
	Initialized    bool   `json:"initialized"`
	LastCheckpoint int64  `json:"last_checkpoint,omitempty"`
	EmissionRate   uint64 `json:"emission_rate,omitempty"`
	NextRateEpoch  int64  `json:"next_rate_epoch,omitempty"`
	Killed         bool   `json:"killed"`
	CaughtUp       bool   `json:"caught_up"`
}

func (s *Server) handleEpochState(w http.ResponseWriter, r *http.Request) {
	caughtUp, err := s.epochs.CaughtUp(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	state, err := s.epochs.State(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusOK, epochResponse{})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, epochResponse{
		Initialized:    true,
		LastCheckpoint: state.LastCheckpoint,
		EmissionRate:   state.EmissionRate,
		NextRateEpoch:  state.NextRateEpoch,
		Killed:         state.Killed,
		CaughtUp:       caughtUp,
	})
}

// checkpointResponse reports how many periods one checkpoint call walked.
type checkpointResponse struct {
	Periods int `json:"periods"`
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	periods, err := s.epochs.Checkpoint(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpointResponse{Periods: periods})
}

// killRequest is the payload for POST /api/v1/epoch/kill.
type killRequest struct {
	Caller string `json:"caller"`
	Killed bool   `json:"killed"`
}

// killResponse echoes the resulting kill switch state.
type killResponse struct {
	Killed bool `json:"killed"`
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := s.epochs.SetKilled(r.Context(), req.Caller, req.Killed); err != nil {
		s.writeError(w, err)
		return
	}
	killed, err := s.epochs.Killed(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, killResponse{Killed: killed})
}
