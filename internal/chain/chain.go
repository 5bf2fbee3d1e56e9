// Package chain defines the external collaborator contracts the ledger
// depends on: the weight registry, the emission schedule, the votable
// balance oracle, the protocol fee router and the funds transfer
// primitive. Client speaks to all of them over JSON-RPC; stub provides
// in-memory implementations for tests and embedded runs.
package chain

import "context"

// Registry defines the external weight registry interface.
type Registry interface {
	// Interval returns the epoch interval in seconds.
	Interval(ctx context.Context) (int64, error)

	// CheckpointPeriod notifies the registry that selfID is checkpointing
	// the period containing t.
	CheckpointPeriod(ctx context.Context, selfID string, t int64) error

	// RelativeWeight returns the 1e18-scaled relative weight of selfID at
	// the period boundary t.
	RelativeWeight(ctx context.Context, selfID string, t int64) (uint64, error)

	// VoteForWeight forwards a voter's allocation, in basis points, to the
	// registry.
	VoteForWeight(ctx context.Context, voter string, weightBps uint32) error
}

// EmissionSource defines the external emission schedule interface.
type EmissionSource interface {
	// CurrentRate returns the current emission rate per second.
	CurrentRate(ctx context.Context) (uint64, error)

	// RefreshNextRateEpoch advances the schedule if due and returns the
	// next rate-change boundary as a unix timestamp.
	RefreshNextRateEpoch(ctx context.Context) (int64, error)
}

// BalanceOracle defines the external votable balance source.
type BalanceOracle interface {
	// TotalVotableBalance returns the total balance account may allocate
	// across positions.
	TotalVotableBalance(ctx context.Context, account string) (uint64, error)
}

// FeeRouter defines the external protocol fee sink.
type FeeRouter interface {
	// RouteFee routes the protocol fee for a settlement of amount in
	// currency and returns the fee taken.
	RouteFee(ctx context.Context, currency string, amount uint64) (uint64, error)

	// RouteNativeFee routes the protocol fee for a settlement denominated
	// in the native payout asset and returns the fee taken.
	RouteNativeFee(ctx context.Context, amount uint64) (uint64, error)
}

// Payer defines the external funds transfer primitive. Transfer failures
// must surface as errors; implementations never swallow them.
type Payer interface {
	// Pay transfers amount of currency to recipient. A zero amount is a
	// no-op.
	Pay(ctx context.Context, currency, recipient string, amount uint64) error
}
