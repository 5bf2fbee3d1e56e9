package postgres

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

func TestCheckpointStore_SetCurrentAndReads(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	participant := domain.ParticipantSeries("pos-1", "acct-1")
	sum := domain.PositionSeries("pos-1")
	global := domain.GlobalSeries()

	err := store.SetCurrent(ctx, []*domain.CheckpointWrite{
		{Key: participant, Timestamp: 10, Value: 100},
		{Key: sum, Timestamp: 10, Value: 100},
		{Key: global, Timestamp: 10, Value: 100},
	})
	require.NoError(t, err)

	err = store.SetCurrent(ctx, []*domain.CheckpointWrite{
		{Key: participant, Timestamp: 20, Value: 250},
		{Key: sum, Timestamp: 20, Value: 250},
		{Key: global, Timestamp: 20, Value: 250},
	})
	require.NoError(t, err)

	latest, err := store.Latest(ctx, participant)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), latest)

	// Point-in-time reads
	v, err := store.ValueAt(ctx, sum, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v, "before first snapshot")

	v, err = store.ValueAt(ctx, sum, 15)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v)

	v, err = store.ValueAt(ctx, sum, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), v)

	v, err = store.ValueAt(ctx, global, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), v, "after last snapshot")

	// Unknown series reads zero
	v, err = store.Latest(ctx, domain.PositionSeries("missing"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestCheckpointStore_OverwriteSameTimestamp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()
	key := domain.PositionSeries("pos-1")

	err := store.SetCurrent(ctx, []*domain.CheckpointWrite{{Key: key, Timestamp: 20, Value: 7}})
	require.NoError(t, err)
	err = store.SetCurrent(ctx, []*domain.CheckpointWrite{{Key: key, Timestamp: 20, Value: 9}})
	require.NoError(t, err)

	history, err := store.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 1, "same-timestamp write must overwrite, not append")
	assert.Equal(t, uint64(9), history[0].Value)
}

func TestCheckpointStore_AtomicBatchRollback(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	k1 := domain.PositionSeries("pos-1")
	k2 := domain.PositionSeries("pos-2")

	err := store.SetCurrent(ctx, []*domain.CheckpointWrite{{Key: k2, Timestamp: 50, Value: 5}})
	require.NoError(t, err)

	// Second write regresses; the first must be rolled back with it.
	err = store.SetCurrent(ctx, []*domain.CheckpointWrite{
		{Key: k1, Timestamp: 60, Value: 6},
		{Key: k2, Timestamp: 40, Value: 4},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	v, err := store.Latest(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v, "rejected batch must not apply")
}

func TestCheckpointStore_History(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()
	key := domain.ParticipantSeries("pos-1", "acct-1")

	for i, ts := range []int64{10, 20, 30} {
		err := store.SetCurrent(ctx, []*domain.CheckpointWrite{
			{Key: key, Timestamp: ts, Value: uint64(i + 1)},
		})
		require.NoError(t, err)
	}

	history, err := store.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, ts := range []int64{10, 20, 30} {
		assert.Equal(t, ts, history[i].Timestamp)
		assert.Equal(t, uint64(i+1), history[i].Value)
		assert.Equal(t, key, history[i].Key)
	}
}

func TestCheckpointStore_ListKeys(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	err := store.SetCurrent(ctx, []*domain.CheckpointWrite{
		{Key: domain.GlobalSeries(), Timestamp: 10, Value: 1},
		{Key: domain.PositionSeries("pos-1"), Timestamp: 10, Value: 1},
		{Key: domain.ParticipantSeries("pos-1", "acct-1"), Timestamp: 10, Value: 1},
	})
	require.NoError(t, err)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, domain.GlobalSeries())
	assert.Contains(t, keys, domain.PositionSeries("pos-1"))
	assert.Contains(t, keys, domain.ParticipantSeries("pos-1", "acct-1"))
}

func TestCheckpointStore_ValueRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	err := store.SetCurrent(ctx, []*domain.CheckpointWrite{
		{Key: domain.GlobalSeries(), Timestamp: 10, Value: math.MaxInt64 + 1},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "value above BIGINT range must be rejected")

	err = store.SetCurrent(ctx, []*domain.CheckpointWrite{
		{Key: domain.GlobalSeries(), Timestamp: 10, Value: math.MaxInt64},
	})
	require.NoError(t, err)

	v, err := store.Latest(ctx, domain.GlobalSeries())
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxInt64), v)
}
