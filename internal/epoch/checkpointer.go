// Package epoch advances the ledger's discrete period clock. The
// checkpointer is a resumable state machine over LastCheckpoint: each
// call walks at most MaxSteps completed intervals toward the present,
// turning each period's emission into dividend payouts, and persists
// its position so the walk continues on the next call.
package epoch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"weight-ledger/internal/chain"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/observability"
	"weight-ledger/internal/storage"
)

// DefaultMaxSteps bounds the intervals walked per Checkpoint call.
const DefaultMaxSteps = 500

// Distributor turns one completed period's emission into payout records.
type Distributor interface {
	DistributeEmission(ctx context.Context, issuedAt int64, amount uint64) error
}

// EventEmitter records one audit event per state transition.
type EventEmitter interface {
	Emit(ctx context.Context, e *domain.Event) error
}

// Checkpointer owns the epoch state machine. It serializes its own
// callers and acquires the dividend engine's gate only through
// DistributeEmission, so the lock order is always checkpointer first.
type Checkpointer struct {
	mu sync.Mutex

	epochs    storage.EpochStore
	registry  chain.Registry
	emission  chain.EmissionSource
	dividends Distributor
	emitter   EventEmitter
	clock     domain.Clock
	logger    *zap.Logger

	selfID     string
	controller string
	interval   int64
	maxSteps   int
}

// Options for creating a Checkpointer.
type Options struct {
	Epochs    storage.EpochStore
	Registry  chain.Registry
	Emission  chain.EmissionSource
	Dividends Distributor

	// SelfID is the ledger's identity reported to the registry.
	SelfID string
	// Controller is the only account allowed to toggle the kill switch.
	Controller string
	// Interval is the epoch interval in seconds.
	Interval int64

	MaxSteps int          // optional, defaults to DefaultMaxSteps
	Emitter  EventEmitter // optional, nil disables events
	Clock    domain.Clock // optional, defaults to the system clock
	Logger   *zap.Logger  // optional
}

// New creates a new Checkpointer.
func New(opts Options) *Checkpointer {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	clock := opts.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpointer{
		epochs:     opts.Epochs,
		registry:   opts.Registry,
		emission:   opts.Emission,
		dividends:  opts.Dividends,
		emitter:    opts.Emitter,
		clock:      clock,
		logger:     logger,
		selfID:     opts.SelfID,
		controller: opts.Controller,
		interval:   opts.Interval,
		maxSteps:   maxSteps,
	}
}

// Checkpoint advances the epoch clock toward now. It refreshes the
// cached emission rate once the rate epoch boundary has passed, notifies
// the registry, then walks completed intervals from LastCheckpoint. For
// each period start t the registry's relative weight is read and
// rate*interval*relWeight/1e18 is distributed as emission payouts issued
// at t. The walk stops after MaxSteps intervals or once caught up; state
// is persisted per period so an interrupted walk resumes where it left
// off. Returns the number of periods advanced.
func (c *Checkpointer) Checkpoint(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	state, inited, err := c.loadOrInit(ctx, now)
	if err != nil {
		return 0, err
	}

	dirty := inited
	if !inited && now >= state.NextRateEpoch {
		rate, err := c.emission.CurrentRate(ctx)
		if err != nil {
			return 0, fmt.Errorf("refresh emission rate: %w", err)
		}
		nextEpoch, err := c.emission.RefreshNextRateEpoch(ctx)
		if err != nil {
			return 0, fmt.Errorf("refresh rate epoch: %w", err)
		}
		state.EmissionRate = rate
		state.NextRateEpoch = nextEpoch
		dirty = true
		c.logger.Info("emission rate refreshed",
			zap.Uint64("rate", rate),
			zap.Int64("next_rate_epoch", nextEpoch))
	}

	rate := state.EmissionRate
	if state.Killed {
		rate = 0
	}

	if err := c.registry.CheckpointPeriod(ctx, c.selfID, now); err != nil {
		return 0, fmt.Errorf("notify registry: %w", err)
	}

	periods := 0
	for periods < c.maxSteps {
		start := state.LastCheckpoint
		if start+c.interval > now {
			break
		}

		relWeight, err := c.registry.RelativeWeight(ctx, c.selfID, start)
		if err != nil {
			return periods, fmt.Errorf("relative weight at %d: %w", start, err)
		}

		emission := emissionFor(rate, c.interval, relWeight)
		if emission > 0 {
			if err := c.dividends.DistributeEmission(ctx, start, emission); err != nil {
				return periods, fmt.Errorf("distribute emission at %d: %w", start, err)
			}
		} else if relWeight > 0 && rate > 0 {
			c.logger.Debug("period emission truncated to zero",
				zap.Int64("period_start", start),
				zap.Uint64("relative_weight", relWeight))
		}

		state.LastCheckpoint = start + c.interval
		state.UpdatedAt = now
		if err := c.epochs.Put(ctx, state); err != nil {
			return periods, fmt.Errorf("persist epoch state: %w", err)
		}
		periods++
	}

	if dirty && periods == 0 {
		state.UpdatedAt = now
		if err := c.epochs.Put(ctx, state); err != nil {
			return 0, fmt.Errorf("persist epoch state: %w", err)
		}
	}

	observability.UpdateEpochCheckpoint(state.LastCheckpoint)
	observability.UpdateEmissionRate(rate)
	if periods > 0 {
		observability.RecordEpochSteps(periods)
		c.emit(ctx, &domain.Event{
			Type:        domain.EventEpochCheckpointed,
			Timestamp:   now,
			PayoutIndex: -1,
			Periods:     uint32(periods),
		})
		c.logger.Info("epoch advanced",
			zap.Int("periods", periods),
			zap.Int64("last_checkpoint", state.LastCheckpoint),
			zap.Bool("caught_up", state.LastCheckpoint+c.interval > now))
	}
	return periods, nil
}

// CaughtUp reports whether another Checkpoint call would advance the
// clock further. False until the first checkpoint initializes the state.
func (c *Checkpointer) CaughtUp(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.epochs.Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load epoch state: %w", err)
	}
	return state.LastCheckpoint+c.interval > c.clock.Now(), nil
}

// SetKilled toggles the kill switch. Only the configured controller may
// call it. While killed the effective emission rate is zero going
// forward; payouts already recorded are untouched.
func (c *Checkpointer) SetKilled(ctx context.Context, caller string, killed bool) error {
	if caller != c.controller {
		return fmt.Errorf("caller %s is not the controller: %w", caller, domain.ErrUnauthorized)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	state, _, err := c.loadOrInit(ctx, now)
	if err != nil {
		return err
	}

	state.Killed = killed
	state.UpdatedAt = now
	if err := c.epochs.Put(ctx, state); err != nil {
		return fmt.Errorf("persist epoch state: %w", err)
	}

	observability.UpdateKillSwitch(killed)
	c.emit(ctx, &domain.Event{
		Type:        domain.EventKillSwitchSet,
		Timestamp:   now,
		Account:     caller,
		PayoutIndex: -1,
		Killed:      killed,
	})
	c.logger.Info("kill switch set",
		zap.Bool("killed", killed),
		zap.String("caller", caller))
	return nil
}

// Killed reports whether the kill switch is engaged.
func (c *Checkpointer) Killed(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.epochs.Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load epoch state: %w", err)
	}
	return state.Killed, nil
}

// State returns a copy of the persisted epoch state.
func (c *Checkpointer) State(ctx context.Context) (*domain.EpochState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.epochs.Get(ctx)
	if err != nil {
		return nil, err
	}
	cp := *state
	return &cp, nil
}

// loadOrInit loads the persisted state, or builds the initial one on
// first use: LastCheckpoint aligned down to the interval and the rate
// schedule fetched fresh. The caller persists it.
func (c *Checkpointer) loadOrInit(ctx context.Context, now int64) (*domain.EpochState, bool, error) {
	state, err := c.epochs.Get(ctx)
	if err == nil {
		return state, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("load epoch state: %w", err)
	}

	rate, err := c.emission.CurrentRate(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("initial emission rate: %w", err)
	}
	nextEpoch, err := c.emission.RefreshNextRateEpoch(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("initial rate epoch: %w", err)
	}

	state = &domain.EpochState{
		LastCheckpoint: domain.AlignBoundary(now, c.interval),
		EmissionRate:   rate,
		NextRateEpoch:  nextEpoch,
		UpdatedAt:      now,
	}
	c.logger.Info("epoch state initialized",
		zap.Int64("last_checkpoint", state.LastCheckpoint),
		zap.Uint64("rate", rate))
	return state, true, nil
}

// emissionFor computes rate*interval*relWeight/1e18 without overflowing
// the intermediate product.
func emissionFor(rate uint64, interval int64, relWeight uint64) uint64 {
	e := new(big.Int).SetUint64(rate)
	e.Mul(e, big.NewInt(interval))
	e.Mul(e, new(big.Int).SetUint64(relWeight))
	e.Div(e, domain.WeightScale)
	return e.Uint64()
}

func (c *Checkpointer) emit(ctx context.Context, ev *domain.Event) {
	if c.emitter == nil {
		return
	}
	if err := c.emitter.Emit(ctx, ev); err != nil {
		c.logger.Warn("emit event",
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}
