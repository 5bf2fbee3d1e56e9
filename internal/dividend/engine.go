// Package dividend distributes settlement proceeds and emission rewards
// as per-currency payout records, and pays claims against them using each
// claimant's historical weight at the payout's issuance boundary.
package dividend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"weight-ledger/internal/account"
	"weight-ledger/internal/chain"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/observability"
	"weight-ledger/internal/storage"
)

// EventEmitter records one audit event per state transition.
type EventEmitter interface {
	Emit(ctx context.Context, e *domain.Event) error
}

// Engine appends payout records and settles claims. All mutations lock
// the gate shared with the weight ledger, so settlements and claims are
// serialized against votes and lifecycle changes.
type Engine struct {
	gate sync.Locker

	checkpoints storage.CheckpointStore
	positions   storage.PositionStore
	payouts     storage.PayoutStore
	claims      storage.ClaimStore
	fees        chain.FeeRouter
	payer       chain.Payer
	emitter     EventEmitter
	clock       domain.Clock
	logger      *zap.Logger

	interval       int64
	nativeCurrency string
}

// Options for creating an Engine.
type Options struct {
	Checkpoints storage.CheckpointStore
	Positions   storage.PositionStore
	Payouts     storage.PayoutStore
	Claims      storage.ClaimStore
	Fees        chain.FeeRouter
	Payer       chain.Payer

	// Interval is the epoch interval in seconds fixing payout boundaries.
	Interval int64

	Gate           sync.Locker  // optional, shared with the ledger; defaults to a private lock
	NativeCurrency string       // optional, defaults to the native payout asset
	Emitter        EventEmitter // optional, nil disables events
	Clock          domain.Clock // optional, defaults to the system clock
	Logger         *zap.Logger  // optional
}

// New creates a new Engine.
func New(opts Options) *Engine {
	gate := opts.Gate
	if gate == nil {
		gate = &sync.Mutex{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	native := opts.NativeCurrency
	if native == "" {
		native = account.NativeCurrency
	}
	return &Engine{
		gate:           gate,
		checkpoints:    opts.Checkpoints,
		positions:      opts.Positions,
		payouts:        opts.Payouts,
		claims:         opts.Claims,
		fees:           opts.Fees,
		payer:          opts.Payer,
		emitter:        opts.Emitter,
		clock:          clock,
		logger:         logger,
		interval:       opts.Interval,
		nativeCurrency: native,
	}
}

// Settle processes proceeds of amount in currency changing hands for a
// position. The protocol fee is routed first; a dividend slice
// (amount-fee)*ratio/10000 is recorded as a payout only while the
// position's weight sum is nonzero, and the remainder goes to recipient.
// The payout's IssuedAt is the next interval boundary, so claimants are
// judged by weight held at a stable period start. Returns the appended
// payout, or nil when no dividend was taken.
func (e *Engine) Settle(ctx context.Context, positionID, currency, payer, recipient string, amount uint64) (*domain.Payout, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	p, err := e.positions.Get(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}

	sum, err := e.checkpoints.Latest(ctx, domain.PositionSeries(positionID))
	if err != nil {
		return nil, fmt.Errorf("read position sum: %w", err)
	}

	// External calls precede local commits.
	var fee uint64
	if currency == e.nativeCurrency {
		fee, err = e.fees.RouteNativeFee(ctx, amount)
	} else {
		fee, err = e.fees.RouteFee(ctx, currency, amount)
	}
	if err != nil {
		return nil, fmt.Errorf("route fee: %w", err)
	}
	if fee > amount {
		return nil, fmt.Errorf("fee %d exceeds amount %d: %w", fee, amount, storage.ErrInvalidInput)
	}

	var dividend uint64
	if sum > 0 {
		dividend = domain.MulDiv(amount-fee, uint64(p.DividendRatioBps), domain.BpsDenominator)
	}

	if err := e.payer.Pay(ctx, currency, recipient, amount-fee-dividend); err != nil {
		return nil, fmt.Errorf("pay recipient: %w", err)
	}
	if dividend == 0 {
		return nil, nil
	}

	index, err := e.payouts.Count(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("next payout index: %w", err)
	}

	now := e.clock.Now()
	payout := &domain.Payout{
		Currency:      currency,
		Index:         index,
		Position:      positionID,
		IssuedAt:      domain.NextBoundary(now, e.interval),
		AmountPerUnit: domain.ScaleAmount(dividend, sum),
		Amount:        dividend,
		Source:        domain.PayoutSourceSettlement,
		CreatedAt:     now,
	}
	if err := e.payouts.Append(ctx, payout); err != nil {
		return nil, fmt.Errorf("append payout: %w", err)
	}

	observability.RecordPayout(currency, string(domain.PayoutSourceSettlement))
	e.emit(ctx, &domain.Event{
		Type:          domain.EventDividendDistributed,
		Timestamp:     now,
		Position:      positionID,
		Account:       payer,
		Currency:      currency,
		PayoutIndex:   int64(index),
		IssuedAt:      payout.IssuedAt,
		Amount:        dividend,
		AmountPerUnit: payout.AmountPerUnit.String(),
	})
	return payout, nil
}

// Claim pays the claimant their share of the given payout indices,
// all-or-nothing: an unknown index or one already claimed by this
// claimant rejects the whole batch before any effect. Indices where the
// claimant held no weight contribute zero but are still consumed. Returns
// the total amount paid.
func (e *Engine) Claim(ctx context.Context, currency string, indices []uint64, claimant string) (uint64, error) {
	if len(indices) == 0 {
		return 0, fmt.Errorf("empty claim batch: %w", storage.ErrInvalidInput)
	}

	e.gate.Lock()
	defer e.gate.Unlock()

	now := e.clock.Now()
	seen := make(map[uint64]bool, len(indices))
	records := make([]*domain.Claim, 0, len(indices))
	var total uint64

	for _, idx := range indices {
		if seen[idx] {
			return 0, fmt.Errorf("payout %s/%d repeated in batch: %w", currency, idx, domain.ErrAlreadyClaimed)
		}
		seen[idx] = true

		payout, err := e.payouts.Get(ctx, currency, idx)
		if err != nil {
			return 0, fmt.Errorf("load payout %s/%d: %w", currency, idx, err)
		}

		claimed, err := e.claims.IsClaimed(ctx, currency, idx, claimant)
		if err != nil {
			return 0, fmt.Errorf("check claim %s/%d: %w", currency, idx, err)
		}
		if claimed {
			return 0, fmt.Errorf("payout %s/%d: %w", currency, idx, domain.ErrAlreadyClaimed)
		}

		weight, err := e.weightAt(ctx, payout.Position, claimant, payout.IssuedAt)
		if err != nil {
			return 0, err
		}

		share := domain.ApplyPerUnit(weight, payout.AmountPerUnit)
		total += share
		records = append(records, &domain.Claim{
			Currency:  currency,
			Index:     idx,
			Claimant:  claimant,
			Amount:    share,
			ClaimedAt: now,
		})
	}

	// External transfer precedes the local claim marks.
	if err := e.payer.Pay(ctx, currency, claimant, total); err != nil {
		return 0, fmt.Errorf("pay claimant: %w", err)
	}
	if err := e.claims.InsertBulk(ctx, records); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return 0, fmt.Errorf("mark claims: %w", domain.ErrAlreadyClaimed)
		}
		return 0, fmt.Errorf("mark claims: %w", err)
	}

	observability.RecordClaim(currency, total)
	e.emit(ctx, &domain.Event{
		Type:        domain.EventDividendsClaimed,
		Timestamp:   now,
		Account:     claimant,
		Currency:    currency,
		PayoutIndex: -1,
		Indices:     append([]uint64(nil), indices...),
		Amount:      total,
	})
	return total, nil
}

// DistributeEmission turns one period's emission into payout records: each
// active position with weight at issuedAt gets a payout carrying
// amount*1e18/global per unit weight, so claims resolve pro-rata to the
// global weight at the boundary. Positions without weight are skipped;
// with no global weight at all the emission is dropped whole.
func (e *Engine) DistributeEmission(ctx context.Context, issuedAt int64, amount uint64) error {
	if amount == 0 {
		return nil
	}

	e.gate.Lock()
	defer e.gate.Unlock()

	global, err := e.checkpoints.ValueAt(ctx, domain.GlobalSeries(), issuedAt)
	if err != nil {
		return fmt.Errorf("read global sum: %w", err)
	}
	if global == 0 {
		e.logger.Warn("emission with no global weight",
			zap.Int64("issued_at", issuedAt),
			zap.Uint64("amount", amount))
		return nil
	}

	perUnit := domain.ScaleAmount(amount, global)
	positions, err := e.positions.List(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	now := e.clock.Now()
	for _, p := range positions {
		if !p.Active() {
			continue
		}
		sum, err := e.checkpoints.ValueAt(ctx, domain.PositionSeries(p.ID), issuedAt)
		if err != nil {
			return fmt.Errorf("read sum of %s: %w", p.ID, err)
		}
		if sum == 0 {
			continue
		}

		index, err := e.payouts.Count(ctx, e.nativeCurrency)
		if err != nil {
			return fmt.Errorf("next payout index: %w", err)
		}

		slice := domain.MulDiv(sum, amount, global)
		payout := &domain.Payout{
			Currency:      e.nativeCurrency,
			Index:         index,
			Position:      p.ID,
			IssuedAt:      issuedAt,
			AmountPerUnit: perUnit,
			Amount:        slice,
			Source:        domain.PayoutSourceEmission,
			CreatedAt:     now,
		}
		if err := e.payouts.Append(ctx, payout); err != nil {
			return fmt.Errorf("append emission payout: %w", err)
		}

		observability.RecordPayout(e.nativeCurrency, string(domain.PayoutSourceEmission))
		e.emit(ctx, &domain.Event{
			Type:          domain.EventDividendDistributed,
			Timestamp:     now,
			Position:      p.ID,
			Currency:      e.nativeCurrency,
			PayoutIndex:   int64(index),
			IssuedAt:      issuedAt,
			Amount:        slice,
			AmountPerUnit: perUnit.String(),
		})
	}
	return nil
}

// PayoutCount returns the number of payouts issued for a currency.
func (e *Engine) PayoutCount(ctx context.Context, currency string) (uint64, error) {
	return e.payouts.Count(ctx, currency)
}

// PayoutAt returns one payout record.
func (e *Engine) PayoutAt(ctx context.Context, currency string, index uint64) (*domain.Payout, error) {
	return e.payouts.Get(ctx, currency, index)
}

// ClaimsOf returns the claimant's recorded claims for a currency.
func (e *Engine) ClaimsOf(ctx context.Context, currency, claimant string) ([]*domain.Claim, error) {
	return e.claims.ListByClaimant(ctx, currency, claimant)
}

// weightAt is the sum-gated historical weight read: zero whenever the
// position's own sum was zero at t.
func (e *Engine) weightAt(ctx context.Context, position, participant string, t int64) (uint64, error) {
	sum, err := e.checkpoints.ValueAt(ctx, domain.PositionSeries(position), t)
	if err != nil {
		return 0, fmt.Errorf("read sum of %s: %w", position, err)
	}
	if sum == 0 {
		return 0, nil
	}
	w, err := e.checkpoints.ValueAt(ctx, domain.ParticipantSeries(position, participant), t)
	if err != nil {
		return 0, fmt.Errorf("read weight of %s: %w", participant, err)
	}
	return w, nil
}

func (e *Engine) emit(ctx context.Context, ev *domain.Event) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.Emit(ctx, ev); err != nil {
		e.logger.Warn("emit event",
			zap.String("type", string(ev.Type)),
			zap.String("currency", ev.Currency),
			zap.Error(err))
	}
}
