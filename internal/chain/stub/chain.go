// Package stub provides in-memory chain collaborators for tests and
// embedded runs. The stubs are not internally synchronized; callers
// serialize access the same way the services serialize their own state.
package stub

import "context"

// Registry implements chain.Registry over fixed in-memory schedules.
type Registry struct {
	IntervalSec   int64
	DefaultWeight uint64           // 1e18-scaled, returned when no pinned weight matches
	Weights       map[int64]uint64 // boundary timestamp -> 1e18-scaled relative weight
	Checkpointed  []int64          // CheckpointPeriod times, in call order
	Votes         map[string]uint32
	Err           error // when set, every call fails with it
}

// NewRegistry creates a registry stub with the given epoch interval.
func NewRegistry(intervalSec int64) *Registry {
	return &Registry{
		IntervalSec: intervalSec,
		Weights:     make(map[int64]uint64),
		Votes:       make(map[string]uint32),
	}
}

// Interval returns the configured epoch interval in seconds.
func (r *Registry) Interval(_ context.Context) (int64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	return r.IntervalSec, nil
}

// CheckpointPeriod records the checkpoint notification.
func (r *Registry) CheckpointPeriod(_ context.Context, _ string, t int64) error {
	if r.Err != nil {
		return r.Err
	}
	r.Checkpointed = append(r.Checkpointed, t)
	return nil
}

// RelativeWeight returns the weight pinned at t, or the default weight.
func (r *Registry) RelativeWeight(_ context.Context, _ string, t int64) (uint64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	if w, ok := r.Weights[t]; ok {
		return w, nil
	}
	return r.DefaultWeight, nil
}

// VoteForWeight records the voter's latest allocation.
func (r *Registry) VoteForWeight(_ context.Context, voter string, weightBps uint32) error {
	if r.Err != nil {
		return r.Err
	}
	r.Votes[voter] = weightBps
	return nil
}

// SetWeight pins the relative weight at the period boundary t.
func (r *Registry) SetWeight(t int64, weight uint64) {
	r.Weights[t] = weight
}

// EmissionSource implements chain.EmissionSource over fixed fields. Tests
// mutate Rate and NextEpoch between calls to model schedule changes.
type EmissionSource struct {
	Rate      uint64
	NextEpoch int64
	Refreshed int // RefreshNextRateEpoch call count
	Err       error
}

// NewEmissionSource creates an emission stub with the given rate and next
// rate-change boundary.
func NewEmissionSource(rate uint64, nextEpoch int64) *EmissionSource {
	return &EmissionSource{Rate: rate, NextEpoch: nextEpoch}
}

// CurrentRate returns the configured emission rate.
func (s *EmissionSource) CurrentRate(_ context.Context) (uint64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Rate, nil
}

// RefreshNextRateEpoch counts the refresh and returns the configured
// boundary.
func (s *EmissionSource) RefreshNextRateEpoch(_ context.Context) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.Refreshed++
	return s.NextEpoch, nil
}

// BalanceOracle implements chain.BalanceOracle over a fixed balance table.
type BalanceOracle struct {
	Balances map[string]uint64
	Err      error
}

// NewBalanceOracle creates an empty balance oracle stub.
func NewBalanceOracle() *BalanceOracle {
	return &BalanceOracle{Balances: make(map[string]uint64)}
}

// TotalVotableBalance returns the configured balance, or 0 for unknown
// accounts.
func (o *BalanceOracle) TotalVotableBalance(_ context.Context, account string) (uint64, error) {
	if o.Err != nil {
		return 0, o.Err
	}
	return o.Balances[account], nil
}

// SetBalance sets account's votable balance.
func (o *BalanceOracle) SetBalance(account string, balance uint64) {
	o.Balances[account] = balance
}

// FeeRouter implements chain.FeeRouter with a flat fee rate in basis
// points.
type FeeRouter struct {
	FeeBps uint32
	Err    error
}

// NewFeeRouter creates a fee router stub taking feeBps of every amount.
func NewFeeRouter(feeBps uint32) *FeeRouter {
	return &FeeRouter{FeeBps: feeBps}
}

// RouteFee returns the flat-rate fee for amount.
func (r *FeeRouter) RouteFee(_ context.Context, _ string, amount uint64) (uint64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	return amount * uint64(r.FeeBps) / 10000, nil
}

// RouteNativeFee returns the flat-rate fee for a native-asset amount.
func (r *FeeRouter) RouteNativeFee(_ context.Context, amount uint64) (uint64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	return amount * uint64(r.FeeBps) / 10000, nil
}

// Payment records one transfer made through the Payer stub.
type Payment struct {
	Currency  string
	Recipient string
	Amount    uint64
}

// Payer implements chain.Payer, recording transfers in memory.
type Payer struct {
	Payments []Payment
	Err      error
}

// NewPayer creates an empty payer stub.
func NewPayer() *Payer {
	return &Payer{}
}

// Pay records the transfer. Zero amounts are dropped without a record.
func (p *Payer) Pay(_ context.Context, currency, recipient string, amount uint64) error {
	if p.Err != nil {
		return p.Err
	}
	if amount == 0 {
		return nil
	}
	p.Payments = append(p.Payments, Payment{Currency: currency, Recipient: recipient, Amount: amount})
	return nil
}

// Paid returns the total amount transferred to recipient in currency.
func (p *Payer) Paid(currency, recipient string) uint64 {
	var total uint64
	for _, pay := range p.Payments {
		if pay.Currency == currency && pay.Recipient == recipient {
			total += pay.Amount
		}
	}
	return total
}
