package verification

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/replay"
	"weight-ledger/internal/storage"
	"weight-ledger/internal/storage/memory"
)

// ReplayVerifier rebuilds ledger state from the audit event log into
// fresh in-memory stores and compares the result against the live
// stores. Any field that differs is reported as a divergence.
type ReplayVerifier struct {
	events      storage.EventStore
	checkpoints storage.CheckpointStore
	positions   storage.PositionStore
	payouts     storage.PayoutStore
	claims      storage.ClaimStore
	logger      *zap.Logger
}

// ReplayVerifierOptions contains the live stores and the event log to
// verify them against.
type ReplayVerifierOptions struct {
	Events      storage.EventStore
	Checkpoints storage.CheckpointStore
	Positions   storage.PositionStore
	Payouts     storage.PayoutStore
	Claims      storage.ClaimStore

	Logger *zap.Logger // optional
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayVerifier{
		events:      opts.Events,
		checkpoints: opts.Checkpoints,
		positions:   opts.Positions,
		payouts:     opts.Payouts,
		claims:      opts.Claims,
		logger:      logger,
	}
}

// VerifyAll replays the full event log and cross-checks every series,
// position, payout list and claim list against the live stores.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	events, err := v.events.GetByTimeRange(ctx, 0, math.MaxInt64)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	rebuilt := struct {
		checkpoints *memory.CheckpointStore
		positions   *memory.PositionStore
		payouts     *memory.PayoutStore
		claims      *memory.ClaimStore
	}{
		checkpoints: memory.NewCheckpointStore(),
		positions:   memory.NewPositionStore(),
		payouts:     memory.NewPayoutStore(),
		claims:      memory.NewClaimStore(),
	}

	rb := replay.New(replay.Options{
		Checkpoints: rebuilt.checkpoints,
		Positions:   rebuilt.positions,
		Payouts:     rebuilt.payouts,
		Claims:      rebuilt.claims,
		Logger:      v.logger,
	})
	for _, e := range events {
		if err := rb.Apply(ctx, e); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}

	report := &Report{}
	if err := v.compareSeries(ctx, report, rebuilt.checkpoints); err != nil {
		return nil, err
	}
	if err := v.comparePositions(ctx, report, rebuilt.positions); err != nil {
		return nil, err
	}
	if err := v.comparePayouts(ctx, report, rebuilt.payouts, currenciesOf(events)); err != nil {
		return nil, err
	}
	if err := v.compareClaims(ctx, report, rebuilt.claims, claimantsOf(events)); err != nil {
		return nil, err
	}

	v.logger.Info("replay verification complete",
		zap.Int("events", len(events)),
		zap.Int("series", report.SeriesChecked),
		zap.Int("divergences", len(report.Divergences)))
	return report, nil
}

func (v *ReplayVerifier) compareSeries(ctx context.Context, report *Report, rebuilt storage.CheckpointStore) error {
	liveKeys, err := v.checkpoints.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("list live keys: %w", err)
	}
	rebuiltKeys, err := rebuilt.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("list rebuilt keys: %w", err)
	}

	keySet := make(map[domain.SeriesKey]bool, len(liveKeys))
	for _, k := range liveKeys {
		keySet[k] = true
	}
	for _, k := range rebuiltKeys {
		if !keySet[k] {
			report.add(k.String(), "series", "absent", "rebuilt only")
			keySet[k] = true
		}
	}

	keys := make([]domain.SeriesKey, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		liveHist, err := v.checkpoints.History(ctx, key)
		if err != nil {
			return fmt.Errorf("live history of %s: %w", key, err)
		}
		rebuiltHist, err := rebuilt.History(ctx, key)
		if err != nil {
			return fmt.Errorf("rebuilt history of %s: %w", key, err)
		}
		if !historiesEqual(liveHist, rebuiltHist) {
			report.add(key.String(), "history", flattenHistory(rebuiltHist), flattenHistory(liveHist))
		}
	}
	report.SeriesChecked = len(keys)
	return nil
}

func (v *ReplayVerifier) comparePositions(ctx context.Context, report *Report, rebuilt storage.PositionStore) error {
	live, err := v.positions.List(ctx)
	if err != nil {
		return fmt.Errorf("list live positions: %w", err)
	}
	replayed, err := rebuilt.List(ctx)
	if err != nil {
		return fmt.Errorf("list rebuilt positions: %w", err)
	}

	if len(live) != len(replayed) {
		report.add("positions", "count", len(replayed), len(live))
	} else {
		for i := range live {
			if !reflect.DeepEqual(live[i], replayed[i]) {
				report.add(live[i].ID, "position", *replayed[i], *live[i])
			}
		}
	}
	report.PositionsChecked = len(live)
	return nil
}

func (v *ReplayVerifier) comparePayouts(ctx context.Context, report *Report, rebuilt storage.PayoutStore, currencies []string) error {
	for _, currency := range currencies {
		live, err := v.payouts.ListByCurrency(ctx, currency)
		if err != nil {
			return fmt.Errorf("list live payouts %s: %w", currency, err)
		}
		replayed, err := rebuilt.ListByCurrency(ctx, currency)
		if err != nil {
			return fmt.Errorf("list rebuilt payouts %s: %w", currency, err)
		}

		if len(live) != len(replayed) {
			report.add(currency, "payout count", len(replayed), len(live))
			continue
		}
		for i := range live {
			if !payoutsEqual(live[i], replayed[i]) {
				report.add(fmt.Sprintf("%s/%d", currency, live[i].Index), "payout", *replayed[i], *live[i])
			}
		}
		report.PayoutsChecked += len(live)
	}
	return nil
}

func (v *ReplayVerifier) compareClaims(ctx context.Context, report *Report, rebuilt storage.ClaimStore, claimants map[string][]string) error {
	for currency, accounts := range claimants {
		for _, claimant := range accounts {
			live, err := v.claims.ListByClaimant(ctx, currency, claimant)
			if err != nil {
				return fmt.Errorf("list live claims %s/%s: %w", currency, claimant, err)
			}
			replayed, err := rebuilt.ListByClaimant(ctx, currency, claimant)
			if err != nil {
				return fmt.Errorf("list rebuilt claims %s/%s: %w", currency, claimant, err)
			}
			if !reflect.DeepEqual(live, replayed) {
				report.add(fmt.Sprintf("%s/%s", currency, claimant), "claims", replayed, live)
			}
			report.ClaimsChecked += len(live)
		}
	}
	return nil
}

// currenciesOf collects the distinct payout currencies the log mentions.
func currenciesOf(events []*domain.Event) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range events {
		if e.Type != domain.EventDividendDistributed || seen[e.Currency] {
			continue
		}
		seen[e.Currency] = true
		out = append(out, e.Currency)
	}
	sort.Strings(out)
	return out
}

// claimantsOf collects the distinct claimants per currency.
func claimantsOf(events []*domain.Event) map[string][]string {
	seen := make(map[string]map[string]bool)
	for _, e := range events {
		if e.Type != domain.EventDividendsClaimed {
			continue
		}
		if seen[e.Currency] == nil {
			seen[e.Currency] = make(map[string]bool)
		}
		seen[e.Currency][e.Account] = true
	}

	out := make(map[string][]string, len(seen))
	for currency, accounts := range seen {
		for claimant := range accounts {
			out[currency] = append(out[currency], claimant)
		}
		sort.Strings(out[currency])
	}
	return out
}

func historiesEqual(a, b []*domain.CheckpointWrite) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if *a[i] != *b[i] {
			return false
		}
	}
	return true
}

func payoutsEqual(a, b *domain.Payout) bool {
	if a.Currency != b.Currency || a.Index != b.Index || a.Position != b.Position ||
		a.IssuedAt != b.IssuedAt || a.Amount != b.Amount || a.Source != b.Source ||
		a.CreatedAt != b.CreatedAt {
		return false
	}
	if (a.AmountPerUnit == nil) != (b.AmountPerUnit == nil) {
		return false
	}
	return a.AmountPerUnit == nil || a.AmountPerUnit.Cmp(b.AmountPerUnit) == 0
}

func flattenHistory(hist []*domain.CheckpointWrite) []domain.CheckpointWrite {
	out := make([]domain.CheckpointWrite, len(hist))
	for i, w := range hist {
		out[i] = *w
	}
	return out
}
