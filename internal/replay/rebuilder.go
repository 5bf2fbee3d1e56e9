// Package replay rebuilds ledger state by re-applying the audit event
// log in sequence order. Weight events run through the real ledger with
// a manual clock, so the rebuilt checkpoint series are byte-for-byte the
// ones the original operations wrote; payout and claim events are
// reconstructed from their recorded fields, with claim shares recomputed
// and cross-checked against the logged totals.
package replay

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"weight-ledger/internal/chain/stub"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/ledger"
	"weight-ledger/internal/storage"
)

// Rebuilder applies events one at a time onto a set of target stores.
// The targets are expected to start empty.
type Rebuilder struct {
	ledger      *ledger.Ledger
	clock       *stub.ManualClock
	oracle      *stub.BalanceOracle
	checkpoints storage.CheckpointStore
	payouts     storage.PayoutStore
	claims      storage.ClaimStore
	logger      *zap.Logger

	lastSeq uint64
	applied int
}

// Options for creating a Rebuilder.
type Options struct {
	Checkpoints storage.CheckpointStore
	Positions   storage.PositionStore
	Payouts     storage.PayoutStore
	Claims      storage.ClaimStore

	Logger *zap.Logger // optional
}

// New creates a Rebuilder over empty target stores. The internal ledger
// emits no events of its own, so a rebuild never re-journals.
func New(opts Options) *Rebuilder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := stub.NewManualClock(0)
	oracle := stub.NewBalanceOracle()
	led := ledger.New(ledger.Options{
		Checkpoints: opts.Checkpoints,
		Positions:   opts.Positions,
		Registry:    stub.NewRegistry(0),
		Balances:    oracle,
		Clock:       clock,
		Logger:      logger,
	})

	return &Rebuilder{
		ledger:      led,
		clock:       clock,
		oracle:      oracle,
		checkpoints: opts.Checkpoints,
		payouts:     opts.Payouts,
		claims:      opts.Claims,
		logger:      logger,
	}
}

// Apply replays one event. Events must arrive with increasing sequence
// numbers; gaps are fine, the emitter leaves them on persist failures.
func (r *Rebuilder) Apply(ctx context.Context, e *domain.Event) error {
	if e.Seq <= r.lastSeq {
		return fmt.Errorf("seq %d after %d: %w", e.Seq, r.lastSeq, ErrOutOfOrder)
	}

	r.clock.Set(e.Timestamp)
	var err error
	switch e.Type {
	case domain.EventPositionWrapped:
		_, err = r.ledger.Wrap(ctx, e.Position, e.Account, e.RatioBps)
	case domain.EventVoteCast:
		err = r.applyVote(ctx, e)
	case domain.EventPositionUnwrapped:
		err = r.ledger.Unwrap(ctx, e.Position, e.Account)
	case domain.EventDividendDistributed:
		err = r.applyPayout(ctx, e)
	case domain.EventDividendsClaimed:
		err = r.applyClaims(ctx, e)
	case domain.EventEpochCheckpointed, domain.EventKillSwitchSet:
		// Epoch machine state is sourced externally and not rebuilt.
		r.logger.Debug("skipping epoch event",
			zap.Uint64("seq", e.Seq),
			zap.String("type", string(e.Type)))
	default:
		return fmt.Errorf("seq %d: unknown event type %q", e.Seq, e.Type)
	}
	if err != nil {
		return fmt.Errorf("apply seq %d (%s): %w", e.Seq, e.Type, err)
	}

	r.lastSeq = e.Seq
	r.applied++
	return nil
}

// Applied returns the number of events applied so far.
func (r *Rebuilder) Applied() int {
	return r.applied
}

// applyVote re-votes the recorded weight. The logged weight is fed back
// as the voter's balance with a full allocation, so the multiply-divide
// lands on exactly the value the original vote wrote.
func (r *Rebuilder) applyVote(ctx context.Context, e *domain.Event) error {
	r.oracle.SetBalance(e.Account, e.Weight)
	return r.ledger.Vote(ctx, e.Position, e.Account, domain.MaxRatioBps)
}

// applyPayout reconstructs the payout record the event describes.
// Settlement payouts log the paying account; emission payouts have none.
func (r *Rebuilder) applyPayout(ctx context.Context, e *domain.Event) error {
	if e.PayoutIndex < 0 {
		return fmt.Errorf("negative payout index %d: %w", e.PayoutIndex, storage.ErrInvalidInput)
	}
	perUnit, ok := new(big.Int).SetString(e.AmountPerUnit, 10)
	if !ok {
		return fmt.Errorf("bad amount per unit %q: %w", e.AmountPerUnit, storage.ErrInvalidInput)
	}

	source := domain.PayoutSourceEmission
	if e.Account != "" {
		source = domain.PayoutSourceSettlement
	}
	return r.payouts.Append(ctx, &domain.Payout{
		Currency:      e.Currency,
		Index:         uint64(e.PayoutIndex),
		Position:      e.Position,
		IssuedAt:      e.IssuedAt,
		AmountPerUnit: perUnit,
		Amount:        e.Amount,
		Source:        source,
		CreatedAt:     e.Timestamp,
	})
}

// applyClaims recomputes each index's share from the rebuilt series and
// payout records, then checks the total against the logged amount.
func (r *Rebuilder) applyClaims(ctx context.Context, e *domain.Event) error {
	records := make([]*domain.Claim, 0, len(e.Indices))
	var total uint64

	for _, idx := range e.Indices {
		payout, err := r.payouts.Get(ctx, e.Currency, idx)
		if err != nil {
			return fmt.Errorf("load payout %s/%d: %w", e.Currency, idx, err)
		}
		weight, err := r.weightAt(ctx, payout.Position, e.Account, payout.IssuedAt)
		if err != nil {
			return err
		}

		share := domain.ApplyPerUnit(weight, payout.AmountPerUnit)
		total += share
		records = append(records, &domain.Claim{
			Currency:  e.Currency,
			Index:     idx,
			Claimant:  e.Account,
			Amount:    share,
			ClaimedAt: e.Timestamp,
		})
	}

	if total != e.Amount {
		return fmt.Errorf("claim total %d, log says %d: %w", total, e.Amount, ErrDiverged)
	}
	return r.claims.InsertBulk(ctx, records)
}

// weightAt is the sum-gated historical weight read, matching the
// dividend engine's claim-time lookup.
func (r *Rebuilder) weightAt(ctx context.Context, position, participant string, t int64) (uint64, error) {
	sum, err := r.checkpoints.ValueAt(ctx, domain.PositionSeries(position), t)
	if err != nil {
		return 0, fmt.Errorf("read sum of %s: %w", position, err)
	}
	if sum == 0 {
		return 0, nil
	}
	w, err := r.checkpoints.ValueAt(ctx, domain.ParticipantSeries(position, participant), t)
	if err != nil {
		return 0, fmt.Errorf("read weight of %s: %w", participant, err)
	}
	return w, nil
}
