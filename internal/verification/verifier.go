// Package verification checks stored ledger state against the
// delta-propagation invariants and against a rebuild from the audit log.
package verification

import (
	"context"
	"fmt"
	"sort"

	"weight-ledger/internal/account"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// Divergence is one detected violation or mismatch.
type Divergence struct {
	Subject  string      `json:"subject"`  // series key, position id or payout reference
	Field    string      `json:"field"`    // what diverged
	Expected interface{} `json:"expected"` // value demanded by the invariant
	Actual   interface{} `json:"actual"`   // value found in the store
}

// Report aggregates the outcome of a verification pass.
type Report struct {
	SeriesChecked    int          `json:"series_checked"`
	PositionsChecked int          `json:"positions_checked"`
	PayoutsChecked   int          `json:"payouts_checked"`
	ClaimsChecked    int          `json:"claims_checked"`
	Divergences      []Divergence `json:"divergences,omitempty"`
}

// OK reports whether the pass found no divergences.
func (r *Report) OK() bool {
	return len(r.Divergences) == 0
}

func (r *Report) add(subject, field string, expected, actual interface{}) {
	r.Divergences = append(r.Divergences, Divergence{
		Subject:  subject,
		Field:    field,
		Expected: expected,
		Actual:   actual,
	})
}

// Checker verifies structural invariants directly against the stores:
// snapshot ordering, per-position sum consistency, global consistency
// and position record sanity.
type Checker struct {
	checkpoints storage.CheckpointStore
	positions   storage.PositionStore
	payouts     storage.PayoutStore
	claims      storage.ClaimStore
}

// CheckerOptions contains the stores a Checker runs against.
type CheckerOptions struct {
	Checkpoints storage.CheckpointStore
	Positions   storage.PositionStore
	Payouts     storage.PayoutStore
	Claims      storage.ClaimStore
}

// NewChecker creates a new Checker.
func NewChecker(opts CheckerOptions) *Checker {
	return &Checker{
		checkpoints: opts.Checkpoints,
		positions:   opts.Positions,
		payouts:     opts.Payouts,
		claims:      opts.Claims,
	}
}

// Verify runs the checkpoint and position invariants and returns the
// collected divergences.
func (c *Checker) Verify(ctx context.Context) (*Report, error) {
	report := &Report{}

	keys, err := c.checkpoints.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series keys: %w", err)
	}

	histories := make(map[domain.SeriesKey][]*domain.CheckpointWrite, len(keys))
	participants := make(map[string][]domain.SeriesKey)
	var sums []domain.SeriesKey
	for _, key := range keys {
		hist, err := c.checkpoints.History(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", key, err)
		}
		histories[key] = hist
		c.checkOrdering(report, key, hist)

		switch key.Scope {
		case domain.ScopeParticipant:
			participants[key.Position] = append(participants[key.Position], key)
		case domain.ScopePosition:
			sums = append(sums, key)
		}
	}
	report.SeriesChecked = len(keys)

	for _, sumKey := range sums {
		c.checkSumConsistency(report, sumKey, histories[sumKey], participants[sumKey.Position], histories)
	}
	c.checkGlobalConsistency(report, sums, histories)

	if err := c.checkPositions(ctx, report, sums, histories); err != nil {
		return nil, err
	}
	return report, nil
}

// VerifyPayouts checks one currency's payout list: dense indices, sane
// amounts and a known position behind every record. Claims are bounded
// by their payout's total.
func (c *Checker) VerifyPayouts(ctx context.Context, currency string) (*Report, error) {
	report := &Report{}

	payouts, err := c.payouts.ListByCurrency(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	count, err := c.payouts.Count(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("count payouts: %w", err)
	}
	if uint64(len(payouts)) != count {
		report.add(currency, "payout count", count, len(payouts))
	}

	for i, p := range payouts {
		subject := fmt.Sprintf("%s/%d", currency, p.Index)
		if p.Index != uint64(i) {
			report.add(subject, "index density", uint64(i), p.Index)
		}
		if p.AmountPerUnit == nil || p.AmountPerUnit.Sign() < 0 {
			report.add(subject, "amount per unit", "non-negative", p.AmountPerUnit)
		}
		if !p.Source.IsValid() {
			report.add(subject, "source", "settlement or emission", p.Source)
		}
		if p.IssuedAt <= 0 {
			report.add(subject, "issued at", "positive timestamp", p.IssuedAt)
		}
		if _, err := c.positions.Get(ctx, p.Position); err != nil {
			report.add(subject, "position", "known position", p.Position)
		}
	}
	report.PayoutsChecked = len(payouts)
	return report, nil
}

// VerifyClaims checks one claimant's claims for a currency: every claim
// references an issued payout and never exceeds its total.
func (c *Checker) VerifyClaims(ctx context.Context, currency, claimant string) (*Report, error) {
	report := &Report{}

	claims, err := c.claims.ListByClaimant(ctx, currency, claimant)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	for _, cl := range claims {
		subject := fmt.Sprintf("%s/%d/%s", currency, cl.Index, claimant)
		payout, err := c.payouts.Get(ctx, currency, cl.Index)
		if err != nil {
			report.add(subject, "payout", "issued payout", cl.Index)
			continue
		}
		if cl.Amount > payout.Amount {
			report.add(subject, "claim amount", fmt.Sprintf("<= %d", payout.Amount), cl.Amount)
		}
	}
	report.ClaimsChecked = len(claims)
	return report, nil
}

// checkOrdering flags snapshots whose timestamps do not strictly
// increase.
func (c *Checker) checkOrdering(report *Report, key domain.SeriesKey, hist []*domain.CheckpointWrite) {
	for i := 1; i < len(hist); i++ {
		if hist[i].Timestamp <= hist[i-1].Timestamp {
			report.add(key.String(), "snapshot order",
				fmt.Sprintf("> %d", hist[i-1].Timestamp), hist[i].Timestamp)
		}
	}
}

// checkSumConsistency verifies that wherever a position's sum is
// nonzero, it equals the sum of its participants' values at that time.
// Timestamps where the sum reads zero are exempt: unwrap zeroes only the
// sum series and stale participant values are masked by the gate.
func (c *Checker) checkSumConsistency(report *Report, sumKey domain.SeriesKey, sumHist []*domain.CheckpointWrite, participantKeys []domain.SeriesKey, histories map[domain.SeriesKey][]*domain.CheckpointWrite) {
	times := snapshotTimes(sumHist)
	for _, key := range participantKeys {
		times = append(times, snapshotTimes(histories[key])...)
	}
	times = dedupeTimes(times)

	for _, t := range times {
		sum := valueAt(sumHist, t)
		if sum == 0 {
			continue
		}
		var total uint64
		for _, key := range participantKeys {
			total += valueAt(histories[key], t)
		}
		if total != sum {
			report.add(sumKey.String(), fmt.Sprintf("sum at %d", t), total, sum)
		}
	}
}

// checkGlobalConsistency verifies the global series equals the sum of
// all position sums at every snapshot time either side recorded.
func (c *Checker) checkGlobalConsistency(report *Report, sums []domain.SeriesKey, histories map[domain.SeriesKey][]*domain.CheckpointWrite) {
	globalHist := histories[domain.GlobalSeries()]
	times := snapshotTimes(globalHist)
	for _, key := range sums {
		times = append(times, snapshotTimes(histories[key])...)
	}
	times = dedupeTimes(times)

	for _, t := range times {
		var total uint64
		for _, key := range sums {
			total += valueAt(histories[key], t)
		}
		if global := valueAt(globalHist, t); global != total {
			report.add(domain.GlobalSeries().String(), fmt.Sprintf("global at %d", t), total, global)
		}
	}
}

// checkPositions cross-checks position records against their series:
// every sum series belongs to a stored position, vaults re-derive, and
// unwrapped positions carry a zero sum tail.
func (c *Checker) checkPositions(ctx context.Context, report *Report, sums []domain.SeriesKey, histories map[domain.SeriesKey][]*domain.CheckpointWrite) error {
	positions, err := c.positions.List(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	known := make(map[string]*domain.Position, len(positions))
	for _, p := range positions {
		known[p.ID] = p
	}

	for _, sumKey := range sums {
		if _, ok := known[sumKey.Position]; !ok {
			report.add(sumKey.String(), "position", "stored position", "orphan series")
		}
	}

	for _, p := range positions {
		if p.DividendRatioBps > domain.MaxRatioBps {
			report.add(p.ID, "dividend ratio", fmt.Sprintf("<= %d", domain.MaxRatioBps), p.DividendRatioBps)
		}
		if vault, err := account.DeriveVault(p.ID); err != nil || vault != p.Vault {
			report.add(p.ID, "vault", vault, p.Vault)
		}
		if !p.Active() {
			hist := histories[domain.PositionSeries(p.ID)]
			if len(hist) > 0 && hist[len(hist)-1].Value != 0 {
				report.add(p.ID, "unwrapped sum tail", uint64(0), hist[len(hist)-1].Value)
			}
		}
	}
	report.PositionsChecked = len(positions)
	return nil
}

// snapshotTimes collects a history's timestamps.
func snapshotTimes(hist []*domain.CheckpointWrite) []int64 {
	times := make([]int64, len(hist))
	for i, w := range hist {
		times[i] = w.Timestamp
	}
	return times
}

// dedupeTimes sorts and deduplicates a timestamp union.
func dedupeTimes(times []int64) []int64 {
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	out := times[:0]
	var prev int64
	for i, t := range times {
		if i > 0 && t == prev {
			continue
		}
		out = append(out, t)
		prev = t
	}
	return out
}

// valueAt resolves an in-memory history at time t, the same predecessor
// rule the checkpoint stores implement.
func valueAt(hist []*domain.CheckpointWrite, t int64) uint64 {
	idx := sort.Search(len(hist), func(i int) bool { return hist[i].Timestamp > t })
	if idx == 0 {
		return 0
	}
	return hist[idx-1].Value
}
