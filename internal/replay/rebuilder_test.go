package replay

import (
	"context"
	"crypto/sha256"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/mr-tron/base58"

	"weight-ledger/internal/account"
	"weight-ledger/internal/audit"
	"weight-ledger/internal/chain/stub"
	"weight-ledger/internal/dividend"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/ledger"
	"weight-ledger/internal/storage"
	"weight-ledger/internal/storage/memory"
)

// testKey derives a deterministic 32-byte base58 account id from a label.
func testKey(label string) string {
	sum := sha256.Sum256([]byte(label))
	return base58.Encode(sum[:])
}

// stores bundles one complete set of ledger state.
type stores struct {
	checkpoints *memory.CheckpointStore
	positions   *memory.PositionStore
	payouts     *memory.PayoutStore
	claims      *memory.ClaimStore
}

func newStores() *stores {
	return &stores{
		checkpoints: memory.NewCheckpointStore(),
		positions:   memory.NewPositionStore(),
		payouts:     memory.NewPayoutStore(),
		claims:      memory.NewClaimStore(),
	}
}

// runScenario drives the real services through a history touching every
// replayable event type and returns the stores plus the event log.
func runScenario(t *testing.T) (*stores, *memory.EventStore) {
	t.Helper()
	ctx := context.Background()

	live := newStores()
	events := memory.NewEventStore()
	clock := stub.NewManualClock(1000)
	oracle := stub.NewBalanceOracle()

	emitter, err := audit.NewEmitter(ctx, events, nil, nil)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	led := ledger.New(ledger.Options{
		Checkpoints: live.checkpoints,
		Positions:   live.positions,
		Registry:    stub.NewRegistry(100),
		Balances:    oracle,
		Emitter:     emitter,
		Clock:       clock,
	})
	engine := dividend.New(dividend.Options{
		Checkpoints: live.checkpoints,
		Positions:   live.positions,
		Payouts:     live.payouts,
		Claims:      live.claims,
		Fees:        stub.NewFeeRouter(0),
		Payer:       stub.NewPayer(),
		Interval:    100,
		Gate:        led.Gate(),
		Emitter:     emitter,
		Clock:       clock,
	})

	pos1, pos2 := testKey("pos1"), testKey("pos2")
	owner := testKey("owner1")
	alice, bob, carol := testKey("alice"), testKey("bob"), testKey("carol")
	currency := testKey("usd")

	vote := func(pos, voter string, balance uint64, alloc uint32) {
		oracle.SetBalance(voter, balance)
		if err := led.Vote(ctx, pos, voter, alloc); err != nil {
			t.Fatalf("Vote %s: %v", voter, err)
		}
	}

	if _, err := led.Wrap(ctx, pos1, owner, 5000); err != nil {
		t.Fatalf("Wrap pos1: %v", err)
	}
	clock.Set(1005)
	if _, err := led.Wrap(ctx, pos2, owner, 2500); err != nil {
		t.Fatalf("Wrap pos2: %v", err)
	}

	clock.Set(1010)
	vote(pos1, alice, 300, 10000)
	clock.Set(1020)
	vote(pos1, bob, 700, 10000)
	vote(pos2, carol, 400, 5000) // 200

	clock.Set(1030)
	if _, err := engine.Settle(ctx, pos1, currency, testKey("payer1"), testKey("seller1"), 200); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	clock.Set(1040)
	if _, err := engine.Claim(ctx, currency, []uint64{0}, alice); err != nil {
		t.Fatalf("Claim alice: %v", err)
	}

	// Rewrites alice's weight after her claim; replay must apply the
	// claim against the pre-revote series.
	clock.Set(1050)
	vote(pos1, alice, 300, 5000) // 150

	clock.Set(1060)
	if err := led.Unwrap(ctx, pos2, owner); err != nil {
		t.Fatalf("Unwrap pos2: %v", err)
	}

	// Zero-weight claim: carol held nothing in pos1.
	clock.Set(1070)
	if _, err := engine.Claim(ctx, currency, []uint64{0}, carol); err != nil {
		t.Fatalf("Claim carol: %v", err)
	}

	clock.Set(1100)
	if err := engine.DistributeEmission(ctx, 1100, 50); err != nil {
		t.Fatalf("DistributeEmission: %v", err)
	}

	clock.Set(1120)
	if _, err := engine.Claim(ctx, account.NativeCurrency, []uint64{0}, bob); err != nil {
		t.Fatalf("Claim bob: %v", err)
	}

	return live, events
}

func TestRunner_RebuildsStores(t *testing.T) {
	ctx := context.Background()
	live, events := runScenario(t)

	rebuilt := newStores()
	rb := New(Options{
		Checkpoints: rebuilt.checkpoints,
		Positions:   rebuilt.positions,
		Payouts:     rebuilt.payouts,
		Claims:      rebuilt.claims,
	})

	applied, err := NewRunner(events, nil).RunAll(ctx, rb)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if applied == 0 {
		t.Fatal("expected events to be applied")
	}

	compareCheckpoints(t, ctx, live.checkpoints, rebuilt.checkpoints)
	comparePositions(t, ctx, live.positions, rebuilt.positions)
	for _, currency := range []string{testKey("usd"), account.NativeCurrency} {
		comparePayouts(t, ctx, currency, live.payouts, rebuilt.payouts)
	}
	for _, claimant := range []string{testKey("alice"), testKey("bob"), testKey("carol")} {
		for _, currency := range []string{testKey("usd"), account.NativeCurrency} {
			compareClaims(t, ctx, currency, claimant, live.claims, rebuilt.claims)
		}
	}
}

func compareCheckpoints(t *testing.T, ctx context.Context, live, rebuilt storage.CheckpointStore) {
	t.Helper()

	liveKeys, err := live.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys live: %v", err)
	}
	rebuiltKeys, err := rebuilt.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys rebuilt: %v", err)
	}

	sortKeys := func(keys []domain.SeriesKey) {
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	}
	sortKeys(liveKeys)
	sortKeys(rebuiltKeys)
	if !reflect.DeepEqual(liveKeys, rebuiltKeys) {
		t.Fatalf("series keys diverge:\nlive:    %v\nrebuilt: %v", liveKeys, rebuiltKeys)
	}

	for _, key := range liveKeys {
		liveHist, err := live.History(ctx, key)
		if err != nil {
			t.Fatalf("History live %s: %v", key, err)
		}
		rebuiltHist, err := rebuilt.History(ctx, key)
		if err != nil {
			t.Fatalf("History rebuilt %s: %v", key, err)
		}
		if !reflect.DeepEqual(liveHist, rebuiltHist) {
			t.Errorf("series %s diverges:\nlive:    %+v\nrebuilt: %+v", key, dumpHistory(liveHist), dumpHistory(rebuiltHist))
		}
	}
}

func dumpHistory(hist []*domain.CheckpointWrite) []domain.CheckpointWrite {
	out := make([]domain.CheckpointWrite, len(hist))
	for i, w := range hist {
		out[i] = *w
	}
	return out
}

func comparePositions(t *testing.T, ctx context.Context, live, rebuilt storage.PositionStore) {
	t.Helper()

	livePos, err := live.List(ctx)
	if err != nil {
		t.Fatalf("List live: %v", err)
	}
	rebuiltPos, err := rebuilt.List(ctx)
	if err != nil {
		t.Fatalf("List rebuilt: %v", err)
	}
	if !reflect.DeepEqual(livePos, rebuiltPos) {
		t.Errorf("positions diverge:\nlive:    %+v\nrebuilt: %+v", livePos, rebuiltPos)
	}
}

func comparePayouts(t *testing.T, ctx context.Context, currency string, live, rebuilt storage.PayoutStore) {
	t.Helper()

	livePayouts, err := live.ListByCurrency(ctx, currency)
	if err != nil {
		t.Fatalf("ListByCurrency live: %v", err)
	}
	rebuiltPayouts, err := rebuilt.ListByCurrency(ctx, currency)
	if err != nil {
		t.Fatalf("ListByCurrency rebuilt: %v", err)
	}
	if !reflect.DeepEqual(livePayouts, rebuiltPayouts) {
		t.Errorf("payouts %s diverge:\nlive:    %+v\nrebuilt: %+v", currency, livePayouts, rebuiltPayouts)
	}
}

func compareClaims(t *testing.T, ctx context.Context, currency, claimant string, live, rebuilt storage.ClaimStore) {
	t.Helper()

	liveClaims, err := live.ListByClaimant(ctx, currency, claimant)
	if err != nil {
		t.Fatalf("ListByClaimant live: %v", err)
	}
	rebuiltClaims, err := rebuilt.ListByClaimant(ctx, currency, claimant)
	if err != nil {
		t.Fatalf("ListByClaimant rebuilt: %v", err)
	}
	if !reflect.DeepEqual(liveClaims, rebuiltClaims) {
		t.Errorf("claims %s/%s diverge:\nlive:    %+v\nrebuilt: %+v", currency, claimant, liveClaims, rebuiltClaims)
	}
}

func TestRebuilder_RejectsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	rb := New(Options{
		Checkpoints: memory.NewCheckpointStore(),
		Positions:   memory.NewPositionStore(),
		Payouts:     memory.NewPayoutStore(),
		Claims:      memory.NewClaimStore(),
	})

	wrapped := &domain.Event{
		Seq:       2,
		Type:      domain.EventPositionWrapped,
		Timestamp: 1000,
		Position:  testKey("pos1"),
		Account:   testKey("owner1"),
		RatioBps:  5000,
	}
	if err := rb.Apply(ctx, wrapped); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	err := rb.Apply(ctx, wrapped)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
}

func TestRebuilder_SequenceGapsAllowed(t *testing.T) {
	ctx := context.Background()
	rb := New(Options{
		Checkpoints: memory.NewCheckpointStore(),
		Positions:   memory.NewPositionStore(),
		Payouts:     memory.NewPayoutStore(),
		Claims:      memory.NewClaimStore(),
	})

	events := []*domain.Event{
		{Seq: 1, Type: domain.EventPositionWrapped, Timestamp: 1000,
			Position: testKey("pos1"), Account: testKey("owner1"), RatioBps: 5000},
		// seq 2 lost to a persist failure
		{Seq: 3, Type: domain.EventVoteCast, Timestamp: 1010,
			Position: testKey("pos1"), Account: testKey("alice"), Weight: 250, RatioBps: 10000},
	}
	for _, e := range events {
		if err := rb.Apply(ctx, e); err != nil {
			t.Fatalf("Apply seq %d: %v", e.Seq, err)
		}
	}
	if rb.Applied() != 2 {
		t.Errorf("expected 2 applied, got %d", rb.Applied())
	}
}

func TestRebuilder_ClaimTotalDivergence(t *testing.T) {
	ctx := context.Background()
	rb := New(Options{
		Checkpoints: memory.NewCheckpointStore(),
		Positions:   memory.NewPositionStore(),
		Payouts:     memory.NewPayoutStore(),
		Claims:      memory.NewClaimStore(),
	})

	pos, owner, alice := testKey("pos1"), testKey("owner1"), testKey("alice")
	currency := testKey("usd")
	events := []*domain.Event{
		{Seq: 1, Type: domain.EventPositionWrapped, Timestamp: 1000,
			Position: pos, Account: owner, RatioBps: 5000},
		{Seq: 2, Type: domain.EventVoteCast, Timestamp: 1010,
			Position: pos, Account: alice, Weight: 1000, RatioBps: 10000},
		{Seq: 3, Type: domain.EventDividendDistributed, Timestamp: 1030,
			Position: pos, Account: testKey("payer1"), Currency: currency,
			PayoutIndex: 0, IssuedAt: 1100, Amount: 100,
			AmountPerUnit: "100000000000000000"},
	}
	for _, e := range events {
		if err := rb.Apply(ctx, e); err != nil {
			t.Fatalf("Apply seq %d: %v", e.Seq, err)
		}
	}

	// alice's share recomputes to 100, not the logged 99.
	err := rb.Apply(ctx, &domain.Event{
		Seq: 4, Type: domain.EventDividendsClaimed, Timestamp: 1040,
		Account: alice, Currency: currency, PayoutIndex: -1,
		Indices: []uint64{0}, Amount: 99,
	})
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
}

func TestRebuilder_UnknownEventType(t *testing.T) {
	ctx := context.Background()
	rb := New(Options{
		Checkpoints: memory.NewCheckpointStore(),
		Positions:   memory.NewPositionStore(),
		Payouts:     memory.NewPayoutStore(),
		Claims:      memory.NewClaimStore(),
	})

	err := rb.Apply(ctx, &domain.Event{Seq: 1, Type: "telemetry", Timestamp: 1000})
	if err == nil {
		t.Fatal("expected an error for an unknown event type")
	}
}
