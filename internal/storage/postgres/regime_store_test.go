package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

func testRun(id string) *domain.RegimeRun {
	return &domain.RegimeRun{
		RegimeRunID: id,
		DatasetID:   "ds1",
		Freq:        "1h",
		Model:       "hmm",
		ParamsJSON:  `{"n_states": 3}`,
	}
}

func TestRegimeRunStoreInsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRegimeRunStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRun("run1")))

	got, err := store.GetByID(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, "ds1", got.DatasetID)
	assert.Equal(t, "1h", got.Freq)
	assert.Equal(t, "hmm", got.Model)
	assert.JSONEq(t, `{"n_states": 3}`, got.ParamsJSON)
	assert.NotZero(t, got.CreatedAt)
}

func TestRegimeRunStoreDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRegimeRunStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRun("run1")))
	assert.ErrorIs(t, store.Insert(ctx, testRun("run1")), storage.ErrDuplicateKey)
}

func TestRegimeRunStoreNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRegimeRunStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegimeStateStoreInsertBulkAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	runStore := NewRegimeRunStore(pool)
	stateStore := NewRegimeStateStore(pool)
	ctx := context.Background()

	require.NoError(t, runStore.Insert(ctx, testRun("run1")))

	err := stateStore.InsertBulk(ctx, []*domain.RegimeState{
		{RegimeRunID: "run1", PeriodTsUTC: 2000, StateLabel: "bear", Confidence: 0.7},
		{RegimeRunID: "run1", PeriodTsUTC: 1000, StateLabel: "bull", Confidence: 0.9},
	})
	require.NoError(t, err)

	states, err := stateStore.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, states, 2)

	// Ordered by period.
	assert.Equal(t, int64(1000), states[0].PeriodTsUTC)
	assert.Equal(t, "bull", states[0].StateLabel)
	assert.Equal(t, int64(2000), states[1].PeriodTsUTC)

	count, err := stateStore.CountByRunID(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRegimeStateStoreDuplicateFailsWholeBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	runStore := NewRegimeRunStore(pool)
	stateStore := NewRegimeStateStore(pool)
	ctx := context.Background()

	require.NoError(t, runStore.Insert(ctx, testRun("run1")))
	require.NoError(t, stateStore.InsertBulk(ctx, []*domain.RegimeState{
		{RegimeRunID: "run1", PeriodTsUTC: 1000, StateLabel: "bull", Confidence: 0.9},
	}))

	err := stateStore.InsertBulk(ctx, []*domain.RegimeState{
		{RegimeRunID: "run1", PeriodTsUTC: 2000, StateLabel: "bear", Confidence: 0.6},
		{RegimeRunID: "run1", PeriodTsUTC: 1000, StateLabel: "bull", Confidence: 0.9}, // dup
	})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := stateStore.CountByRunID(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "failed batch must not leave partial rows")
}

func TestRegimeStateStoreRequiresRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	stateStore := NewRegimeStateStore(pool)

	// FK to regime_runs.
	err := stateStore.InsertBulk(context.Background(), []*domain.RegimeState{
		{RegimeRunID: "orphan", PeriodTsUTC: 1000, StateLabel: "bull", Confidence: 0.5},
	})
	assert.Error(t, err)
}

func TestRegimeStateStoreEmptyRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	stateStore := NewRegimeStateStore(pool)
	ctx := context.Background()

	states, err := stateStore.GetByRunID(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, states)

	count, err := stateStore.CountByRunID(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, count)
}
