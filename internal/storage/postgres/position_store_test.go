package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

func TestPositionStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	p := &domain.Position{
		ID:               "pos-1",
		Owner:            "owner-1",
		Vault:            "vault-1",
		DividendRatioBps: 5000,
		WrappedAt:        1700000000,
		CreatedAt:        1700000000,
	}

	err := store.Insert(ctx, p)
	require.NoError(t, err)

	got, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, p.Owner, got.Owner)
	assert.Equal(t, p.Vault, got.Vault)
	assert.Equal(t, p.DividendRatioBps, got.DividendRatioBps)
	assert.Equal(t, p.WrappedAt, got.WrappedAt)
	assert.Zero(t, got.UnwrappedAt)
	assert.True(t, got.Active())
}

func TestPositionStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	p := &domain.Position{ID: "pos-1", Owner: "owner-1", Vault: "vault-1", WrappedAt: 1000, CreatedAt: 1000}

	err := store.Insert(ctx, p)
	require.NoError(t, err)

	err = store.Insert(ctx, p)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPositionStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	_, err := store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.Update(ctx, &domain.Position{ID: "nonexistent", Owner: "o", Vault: "v"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStore_UpdateAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	positions := []*domain.Position{
		{ID: "pos-2", Owner: "o", Vault: "v", WrappedAt: 2000, CreatedAt: 2000},
		{ID: "pos-1", Owner: "o", Vault: "v", WrappedAt: 1000, CreatedAt: 1000},
	}
	for _, p := range positions {
		require.NoError(t, store.Insert(ctx, p))
	}

	// Unwrap pos-1
	p := positions[1]
	p.UnwrappedAt = 3000
	require.NoError(t, store.Update(ctx, p))

	got, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), got.UnwrappedAt)
	assert.False(t, got.Active())

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pos-1", list[0].ID, "ordered by created_at ASC")
	assert.Equal(t, "pos-2", list[1].ID)
}
