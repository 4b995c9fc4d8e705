package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

func allowEntry(tsUTC int64, chainID, pair string, source domain.AllowlistSource) *domain.AllowlistEntry {
	return &domain.AllowlistEntry{
		TsUTC:  tsUTC,
		Key:    domain.InstrumentKey{ChainID: chainID, PairAddress: pair},
		Source: source,
	}
}

func TestAllowlistStoreInsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	err := store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairB", domain.SourceEligible),
		allowEntry(1000, "solana", "PairA", domain.SourceHeld),
		allowEntry(1000, "ethereum", "0xabc", domain.SourceEligible),
	})
	require.NoError(t, err)

	entries, err := store.GetByTimestamp(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Ordered by chain_id, pair_address.
	assert.Equal(t, "ethereum", entries[0].Key.ChainID)
	assert.Equal(t, "PairA", entries[1].Key.PairAddress)
	assert.Equal(t, domain.SourceHeld, entries[1].Source)
	assert.Equal(t, "PairB", entries[2].Key.PairAddress)
	assert.NotZero(t, entries[0].CreatedAt)
}

func TestAllowlistStoreDuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairA", domain.SourceEligible),
	}))

	err := store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairA", domain.SourceHeld),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAllowlistStoreDuplicateRollsBackWholeSnapshot(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairA", domain.SourceEligible),
	}))

	err := store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairB", domain.SourceEligible),
		allowEntry(1000, "solana", "PairA", domain.SourceEligible), // dup
	})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	entries, err := store.GetByTimestamp(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed snapshot must not leave partial rows")
}

func TestAllowlistStoreInvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	err := store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "", "PairA", domain.SourceEligible),
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAllowlistStoreLatestTimestamp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	_, err := store.LatestTimestamp(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairA", domain.SourceEligible),
	}))
	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(2000, "solana", "PairA", domain.SourceEligible),
	}))

	ts, err := store.LatestTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), ts)
}

func TestAllowlistStoreLatestGroups(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairA", domain.SourceEligible),
		allowEntry(1000, "solana", "PairB", domain.SourceEligible),
	}))
	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(2000, "solana", "PairA", domain.SourceEligible),
	}))
	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(3000, "solana", "PairA", domain.SourceEligible),
		allowEntry(3000, "solana", "PairB", domain.SourceEligible),
		allowEntry(3000, "solana", "PairC", domain.SourceEligible),
	}))

	groups, err := store.LatestGroups(ctx, 2)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// Newest first.
	assert.Equal(t, int64(3000), groups[0].TsUTC)
	assert.Equal(t, int64(3), groups[0].Rows)
	assert.Equal(t, int64(2000), groups[1].TsUTC)
	assert.Equal(t, int64(1), groups[1].Rows)
}

func TestAllowlistStoreLatestEntries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairA", domain.SourceEligible),
	}))
	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(2000, "solana", "PairA", domain.SourceHeld),
		allowEntry(2000, "solana", "PairB", domain.SourceEligible),
	}))
	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(3000, "solana", "PairB", domain.SourceEligible),
	}))

	entries, err := store.LatestEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 3, "only the two newest groups")

	for _, e := range entries {
		assert.GreaterOrEqual(t, e.TsUTC, int64(2000))
	}
}

func TestAllowlistStoreDistinctKeys(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAllowlistStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(1000, "solana", "PairA", domain.SourceEligible),
		allowEntry(1000, "solana", "PairB", domain.SourceEligible),
	}))
	require.NoError(t, store.InsertSnapshot(ctx, []*domain.AllowlistEntry{
		allowEntry(2000, "solana", "PairA", domain.SourceEligible),
	}))

	keys, err := store.DistinctKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "PairA", keys[0].PairAddress)
	assert.Equal(t, "PairB", keys[1].PairAddress)
}
