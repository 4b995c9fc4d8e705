package storage

import (
	"context"

	"dex-universe-lab/internal/domain"
)

// AllowlistStore provides access to universe_allowlist storage.
type AllowlistStore interface {
	// InsertSnapshot adds a full refresh snapshot. All entries must
	// share one ts_utc; returns ErrDuplicateKey if any
	// (ts_utc, instrument key) row exists.
	InsertSnapshot(ctx context.Context, entries []*domain.AllowlistEntry) error

	// GetByTimestamp retrieves the snapshot at a refresh timestamp,
	// ordered by instrument key ASC.
	GetByTimestamp(ctx context.Context, tsUTC int64) ([]*domain.AllowlistEntry, error)

	// LatestTimestamp returns the newest refresh timestamp.
	// Returns ErrNotFound if no snapshot exists.
	LatestTimestamp(ctx context.Context) (int64, error)

	// LatestGroups retrieves the latest n refresh timestamps with their
	// row counts, newest first. Allowlist health diagnostic.
	LatestGroups(ctx context.Context, n int) ([]*domain.RefreshGroup, error)

	// LatestEntries retrieves all entries of the latest n refresh
	// groups, for state replay.
	LatestEntries(ctx context.Context, groups int) ([]*domain.AllowlistEntry, error)

	// DistinctKeys retrieves every instrument key ever present in the
	// allowlist.
	DistinctKeys(ctx context.Context) ([]domain.InstrumentKey, error)
}

// ChurnLogStore provides access to universe_churn_log storage.
// Read methods canonicalize legacy action values (added/removed);
// stored rows are never rewritten.
type ChurnLogStore interface {
	// InsertBatch adds churn entries. Entries carry canonical actions.
	InsertBatch(ctx context.Context, entries []*domain.ChurnLogEntry) error

	// GetByTimestamp retrieves entries at a refresh timestamp, ordered
	// by action ASC, instrument key ASC.
	GetByTimestamp(ctx context.Context, tsUTC int64) ([]*domain.ChurnLogEntry, error)

	// CountByActionReason aggregates the (action, reason) histogram at
	// a refresh timestamp. Thrash-detection diagnostic.
	CountByActionReason(ctx context.Context, tsUTC int64) ([]*domain.ChurnBucket, error)
}

// RefreshWriter persists one refresh atomically: the allowlist snapshot
// and its churn entries are written together, so a reader never
// observes a partially-written refresh.
type RefreshWriter interface {
	ApplyRefresh(ctx context.Context, allowlist []*domain.AllowlistEntry, churn []*domain.ChurnLogEntry) error
}

// RegimeRunStore provides access to regime_runs storage.
type RegimeRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if regime_run_id
	// exists; run identity is immutable once created.
	Insert(ctx context.Context, run *domain.RegimeRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, regimeRunID string) (*domain.RegimeRun, error)
}

// RegimeStateStore provides access to regime_states storage.
type RegimeStateStore interface {
	// InsertBulk adds multiple state rows. Fails entire batch on any
	// duplicate (regime_run_id, period_ts_utc).
	InsertBulk(ctx context.Context, states []*domain.RegimeState) error

	// GetByRunID retrieves all state rows for a run, ordered by period ASC.
	GetByRunID(ctx context.Context, regimeRunID string) ([]*domain.RegimeState, error)

	// CountByRunID counts the persisted state rows for a run.
	CountByRunID(ctx context.Context, regimeRunID string) (int64, error)
}

// ChurnHistoryStore is the optional analytics archive of churn entries
// (ClickHouse). Never read by the refresh decision path.
type ChurnHistoryStore interface {
	// InsertBulk archives churn entries.
	InsertBulk(ctx context.Context, entries []*domain.ChurnLogEntry) error

	// CountByInstrument aggregates churn events per instrument since a
	// timestamp, most-churned first.
	CountByInstrument(ctx context.Context, fromTsUTC int64) ([]*domain.InstrumentChurnCount, error)
}
