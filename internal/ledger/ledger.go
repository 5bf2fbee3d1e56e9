// Package ledger maintains checkpointed voting weights for wrapped
// positions: one series per (position, participant), one weight-sum series
// per position and a single global series, kept consistent by delta
// propagation applied in atomic checkpoint batches.
package ledger

import (
	"context"
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

// Ledger serializes all weight mutations behind one write lock. Reads
// take the shared side of the same lock so the sum gate can never observe
// a half-applied update.
type Ledger struct {
	mu sync.RWMutex

	checkpoints storage.CheckpointStore
	positions   storage.PositionStore
	registry    chain.Registry
	balances    chain.BalanceOracle
	emitter     EventEmitter
	clock       domain.Clock
	logger      *zap.Logger
}

// Options for creating a Ledger.
type Options struct {
	Checkpoints storage.CheckpointStore
	Positions   storage.PositionStore
	Registry    chain.Registry
	Balances    chain.BalanceOracle

	Emitter EventEmitter // optional, nil disables events
	Clock   domain.Clock // optional, defaults to the system clock
	Logger  *zap.Logger  // optional
}

// New creates a new Ledger.
func New(opts Options) *Ledger {
	clock := opts.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		checkpoints: opts.Checkpoints,
		positions:   opts.Positions,
		registry:    opts.Registry,
		balances:    opts.Balances,
		emitter:     opts.Emitter,
		clock:       clock,
		logger:      logger,
	}
}

// Gate returns the lock serializing every weight mutation. The dividend
// engine locks the same gate so settlements and claims never interleave
// with votes or lifecycle changes.
func (l *Ledger) Gate() sync.Locker {
	return &l.mu
}

// Clock returns the ledger's time source.
func (l *Ledger) Clock() domain.Clock {
	return l.clock
}

// Wrap registers a position and derives its vault account. The dividend
// ratio is fixed for the position's whole active life.
func (l *Ledger) Wrap(ctx context.Context, positionID, owner string, ratioBps uint32) (*domain.Position, error) {
	if ratioBps > domain.MaxRatioBps {
		return nil, fmt.Errorf("dividend ratio %d bps: %w", ratioBps, domain.ErrInvalidRatio)
	}
	if !account.Valid(owner) {
		return nil, fmt.Errorf("owner %q: %w", owner, storage.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	vault, err := account.DeriveVault(positionID)
	if err != nil {
		return nil, fmt.Errorf("derive vault: %w", err)
	}

	now := l.clock.Now()
	p := &domain.Position{
		ID:               positionID,
		Owner:            owner,
		Vault:            vault,
		DividendRatioBps: ratioBps,
		WrappedAt:        now,
		CreatedAt:        now,
	}
	if err := l.positions.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("insert position: %w", err)
	}

	observability.RecordPositionWrapped()
	l.emit(ctx, &domain.Event{
		Type:        domain.EventPositionWrapped,
		Timestamp:   now,
		Position:    positionID,
		Account:     owner,
		RatioBps:    ratioBps,
		PayoutIndex: -1,
	})
	return p, nil
}

// Unwrap retires a position. The position's sum series and the global
// series are zeroed by one atomic batch; participant series keep their
// last values and are silenced by the sum gate instead.
func (l *Ledger) Unwrap(ctx context.Context, positionID, caller string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.positions.Get(ctx, positionID)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	if p.Owner != caller {
		return fmt.Errorf("unwrap of %s by %s: %w", positionID, caller, domain.ErrUnauthorized)
	}
	if !p.Active() {
		return fmt.Errorf("position %s: %w", positionID, domain.ErrPositionInactive)
	}

	sumKey := domain.PositionSeries(positionID)
	globalKey := domain.GlobalSeries()

	sum, err := l.checkpoints.Latest(ctx, sumKey)
	if err != nil {
		return fmt.Errorf("read position sum: %w", err)
	}
	global, err := l.checkpoints.Latest(ctx, globalKey)
	if err != nil {
		return fmt.Errorf("read global sum: %w", err)
	}
	if sum > global {
		return fmt.Errorf("global sum %d below position sum %d: %w", global, sum, storage.ErrInvalidInput)
	}

	now := l.clock.Now()
	writes := []*domain.CheckpointWrite{
		{Key: sumKey, Timestamp: now, Value: 0},
		{Key: globalKey, Timestamp: now, Value: global - sum},
	}
	if err := l.checkpoints.SetCurrent(ctx, writes); err != nil {
		return fmt.Errorf("zero weight sums: %w", err)
	}

	p.DividendRatioBps = 0
	p.UnwrappedAt = now
	if err := l.positions.Update(ctx, p); err != nil {
		return fmt.Errorf("update position: %w", err)
	}

	observability.RecordPositionUnwrapped()
	observability.UpdateGlobalWeight(global - sum)
	l.emit(ctx, &domain.Event{
		Type:        domain.EventPositionUnwrapped,
		Timestamp:   now,
		Position:    positionID,
		Account:     caller,
		Weight:      sum,
		PayoutIndex: -1,
	})
	return nil
}

// Vote sets the voter's weight on a position to balance*allocBps/10000,
// where balance comes from the votable balance oracle. The participant
// series, the position sum and the global sum move together in one atomic
// batch; a vote that does not change the weight rewrites only the
// participant snapshot and emits nothing.
func (l *Ledger) Vote(ctx context.Context, positionID, voter string, allocBps uint32) error {
	if allocBps > domain.MaxRatioBps {
		return fmt.Errorf("allocation %d bps: %w", allocBps, domain.ErrInvalidRatio)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.positions.Get(ctx, positionID)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	if !p.Active() {
		return fmt.Errorf("position %s: %w", positionID, domain.ErrPositionInactive)
	}

	balance, err := l.balances.TotalVotableBalance(ctx, voter)
	if err != nil {
		return fmt.Errorf("votable balance: %w", err)
	}
	newWeight := domain.MulDiv(balance, uint64(allocBps), domain.BpsDenominator)

	key := domain.ParticipantSeries(positionID, voter)
	old, err := l.checkpoints.Latest(ctx, key)
	if err != nil {
		return fmt.Errorf("read participant weight: %w", err)
	}

	now := l.clock.Now()
	if newWeight == old {
		write := []*domain.CheckpointWrite{{Key: key, Timestamp: now, Value: newWeight}}
		if err := l.checkpoints.SetCurrent(ctx, write); err != nil {
			return fmt.Errorf("write participant weight: %w", err)
		}
		return nil
	}

	// External notification precedes local commits.
	if err := l.registry.VoteForWeight(ctx, voter, allocBps); err != nil {
		return fmt.Errorf("registry vote: %w", err)
	}

	sumKey := domain.PositionSeries(positionID)
	globalKey := domain.GlobalSeries()
	sum, err := l.checkpoints.Latest(ctx, sumKey)
	if err != nil {
		return fmt.Errorf("read position sum: %w", err)
	}
	global, err := l.checkpoints.Latest(ctx, globalKey)
	if err != nil {
		return fmt.Errorf("read global sum: %w", err)
	}

	var newSum, newGlobal uint64
	if newWeight >= old {
		delta := newWeight - old
		newSum, newGlobal = sum+delta, global+delta
	} else {
		delta := old - newWeight
		if delta > sum || delta > global {
			return fmt.Errorf("weight delta %d exceeds sums (sum=%d, global=%d): %w", delta, sum, global, storage.ErrInvalidInput)
		}
		newSum, newGlobal = sum-delta, global-delta
	}

	writes := []*domain.CheckpointWrite{
		{Key: key, Timestamp: now, Value: newWeight},
		{Key: sumKey, Timestamp: now, Value: newSum},
		{Key: globalKey, Timestamp: now, Value: newGlobal},
	}
	if err := l.checkpoints.SetCurrent(ctx, writes); err != nil {
		return fmt.Errorf("apply vote: %w", err)
	}

	observability.RecordVoteCast()
	observability.UpdateGlobalWeight(newGlobal)
	l.emit(ctx, &domain.Event{
		Type:        domain.EventVoteCast,
		Timestamp:   now,
		Position:    positionID,
		Account:     voter,
		Weight:      newWeight,
		RatioBps:    allocBps,
		PayoutIndex: -1,
	})
	return nil
}

// WeightOf returns the participant's current weight in a position. Reads
// are sum-gated: whenever the position's own sum is zero the answer is
// zero, regardless of the participant series tail.
func (l *Ledger) WeightOf(ctx context.Context, positionID, participant string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sum, err := l.checkpoints.Latest(ctx, domain.PositionSeries(positionID))
	if err != nil {
		return 0, fmt.Errorf("read position sum: %w", err)
	}
	if sum == 0 {
		return 0, nil
	}
	w, err := l.checkpoints.Latest(ctx, domain.ParticipantSeries(positionID, participant))
	if err != nil {
		return 0, fmt.Errorf("read participant weight: %w", err)
	}
	return w, nil
}

// WeightAt returns the participant's weight in a position as of t, gated
// by the position's sum at t.
func (l *Ledger) WeightAt(ctx context.Context, positionID, participant string, t int64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sum, err := l.checkpoints.ValueAt(ctx, domain.PositionSeries(positionID), t)
	if err != nil {
		return 0, fmt.Errorf("read position sum: %w", err)
	}
	if sum == 0 {
		return 0, nil
	}
	w, err := l.checkpoints.ValueAt(ctx, domain.ParticipantSeries(positionID, participant), t)
	if err != nil {
		return 0, fmt.Errorf("read participant weight: %w", err)
	}
	return w, nil
}

// PositionWeightOf returns the position's current weight sum.
func (l *Ledger) PositionWeightOf(ctx context.Context, positionID string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkpoints.Latest(ctx, domain.PositionSeries(positionID))
}

// PositionWeightAt returns the position's weight sum as of t.
func (l *Ledger) PositionWeightAt(ctx context.Context, positionID string, t int64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkpoints.ValueAt(ctx, domain.PositionSeries(positionID), t)
}

// TotalWeightOf returns the current global weight sum.
func (l *Ledger) TotalWeightOf(ctx context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkpoints.Latest(ctx, domain.GlobalSeries())
}

// TotalWeightAt returns the global weight sum as of t.
func (l *Ledger) TotalWeightAt(ctx context.Context, t int64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkpoints.ValueAt(ctx, domain.GlobalSeries(), t)
}

// Position returns a position by id.
func (l *Ledger) Position(ctx context.Context, positionID string) (*domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions.Get(ctx, positionID)
}

func (l *Ledger) emit(ctx context.Context, e *domain.Event) {
	if l.emitter == nil {
		return
	}
	if err := l.emitter.Emit(ctx, e); err != nil {
		l.logger.Warn("emit event",
			zap.String("type", string(e.Type)),
			zap.String("position", e.Position),
			zap.Error(err))
	}
}
