package memory

import (
	"context"
	"errors"
	"testing"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

func TestClaimStore_InsertBulkAndIsClaimed(t *testing.T) {
	store := NewClaimStore()
	ctx := context.Background()

	claims := []*domain.Claim{
		{Currency: "cur1", Index: 0, Claimant: "acct1", Amount: 30, ClaimedAt: 1000},
		{Currency: "cur1", Index: 1, Claimant: "acct1", Amount: 40, ClaimedAt: 1000},
	}
	if err := store.InsertBulk(ctx, claims); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	claimed, err := store.IsClaimed(ctx, "cur1", 0, "acct1")
	if err != nil {
		t.Fatalf("IsClaimed failed: %v", err)
	}
	if !claimed {
		t.Errorf("IsClaimed = false, want true")
	}

	claimed, err = store.IsClaimed(ctx, "cur1", 0, "acct2")
	if err != nil {
		t.Fatalf("IsClaimed failed: %v", err)
	}
	if claimed {
		t.Errorf("IsClaimed = true for a different claimant")
	}

	claimed, err = store.IsClaimed(ctx, "cur1", 2, "acct1")
	if err != nil {
		t.Fatalf("IsClaimed failed: %v", err)
	}
	if claimed {
		t.Errorf("IsClaimed = true for an unclaimed index")
	}
}

func TestClaimStore_DuplicateAgainstStore(t *testing.T) {
	store := NewClaimStore()
	ctx := context.Background()

	first := []*domain.Claim{{Currency: "cur1", Index: 0, Claimant: "acct1", Amount: 30, ClaimedAt: 1000}}
	if err := store.InsertBulk(ctx, first); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	second := []*domain.Claim{
		{Currency: "cur1", Index: 1, Claimant: "acct1", Amount: 40, ClaimedAt: 2000},
		{Currency: "cur1", Index: 0, Claimant: "acct1", Amount: 30, ClaimedAt: 2000},
	}
	err := store.InsertBulk(ctx, second)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// The failed batch must leave nothing behind.
	claimed, err := store.IsClaimed(ctx, "cur1", 1, "acct1")
	if err != nil {
		t.Fatalf("IsClaimed failed: %v", err)
	}
	if claimed {
		t.Errorf("failed batch partially applied: index 1 is claimed")
	}
}

func TestClaimStore_IntraBatchDuplicate(t *testing.T) {
	store := NewClaimStore()
	ctx := context.Background()

	claims := []*domain.Claim{
		{Currency: "cur1", Index: 0, Claimant: "acct1", Amount: 30, ClaimedAt: 1000},
		{Currency: "cur1", Index: 0, Claimant: "acct1", Amount: 30, ClaimedAt: 1000},
	}
	err := store.InsertBulk(ctx, claims)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}

func TestClaimStore_SameIndexDifferentClaimants(t *testing.T) {
	store := NewClaimStore()
	ctx := context.Background()

	claims := []*domain.Claim{
		{Currency: "cur1", Index: 0, Claimant: "acct1", Amount: 30, ClaimedAt: 1000},
		{Currency: "cur1", Index: 0, Claimant: "acct2", Amount: 70, ClaimedAt: 1000},
	}
	if err := store.InsertBulk(ctx, claims); err != nil {
		t.Errorf("InsertBulk failed for distinct claimants: %v", err)
	}
}

func TestClaimStore_ListByClaimant(t *testing.T) {
	store := NewClaimStore()
	ctx := context.Background()

	claims := []*domain.Claim{
		{Currency: "cur1", Index: 2, Claimant: "acct1", Amount: 3, ClaimedAt: 1000},
		{Currency: "cur1", Index: 0, Claimant: "acct1", Amount: 1, ClaimedAt: 1000},
		{Currency: "cur1", Index: 1, Claimant: "acct2", Amount: 2, ClaimedAt: 1000},
		{Currency: "cur2", Index: 0, Claimant: "acct1", Amount: 9, ClaimedAt: 1000},
	}
	if err := store.InsertBulk(ctx, claims); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.ListByClaimant(ctx, "cur1", "acct1")
	if err != nil {
		t.Fatalf("ListByClaimant failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("ListByClaimant len = %d, want 2", len(result))
	}
	if result[0].Index != 0 || result[1].Index != 2 {
		t.Errorf("ListByClaimant order = [%d %d], want [0 2]", result[0].Index, result[1].Index)
	}
}

func TestClaimStore_InvalidInput(t *testing.T) {
	store := NewClaimStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.Claim{nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil claim, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.Claim{{Currency: "", Index: 0, Claimant: "acct1"}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty currency, got %v", err)
	}

	if err := store.InsertBulk(ctx, nil); err != nil {
		t.Errorf("InsertBulk(nil) = %v, want nil", err)
	}
}
