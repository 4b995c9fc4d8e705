package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// AllowlistStore implements storage.AllowlistStore using PostgreSQL.
type AllowlistStore struct {
	pool *Pool
}

// NewAllowlistStore creates a new AllowlistStore.
func NewAllowlistStore(pool *Pool) *AllowlistStore {
	return &AllowlistStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AllowlistStore = (*AllowlistStore)(nil)

// InsertSnapshot adds a full refresh snapshot. Returns ErrDuplicateKey
// if any (ts_utc, chain_id, pair_address) row exists.
func (s *AllowlistStore) InsertSnapshot(ctx context.Context, entries []*domain.AllowlistEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot insert: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertAllowlistTx(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot insert: %w", err)
	}
	return nil
}

// insertAllowlistTx writes allowlist entries inside an open transaction.
// Shared with the refresh writer.
func insertAllowlistTx(ctx context.Context, tx pgx.Tx, entries []*domain.AllowlistEntry) error {
	query := `
		INSERT INTO universe_allowlist (ts_utc, chain_id, pair_address, source)
		VALUES ($1, $2, $3, $4)
	`

	for _, e := range entries {
		if e == nil || e.Key.ChainID == "" || e.Key.PairAddress == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query, e.TsUTC, e.Key.ChainID, e.Key.PairAddress, string(e.Source))
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert allowlist entry: %w", err)
		}
	}
	return nil
}

// GetByTimestamp retrieves the snapshot at a refresh timestamp.
func (s *AllowlistStore) GetByTimestamp(ctx context.Context, tsUTC int64) ([]*domain.AllowlistEntry, error) {
	query := `
		SELECT ts_utc, chain_id, pair_address, source, created_at
		FROM universe_allowlist
		WHERE ts_utc = $1
		ORDER BY chain_id ASC, pair_address ASC
	`

	rows, err := s.pool.Query(ctx, query, tsUTC)
	if err != nil {
		return nil, fmt.Errorf("get allowlist by timestamp: %w", err)
	}
	defer rows.Close()

	return scanAllowlistEntries(rows)
}

// LatestTimestamp returns the newest refresh timestamp.
func (s *AllowlistStore) LatestTimestamp(ctx context.Context) (int64, error) {
	query := `SELECT ts_utc FROM universe_allowlist ORDER BY ts_utc DESC LIMIT 1`

	var ts int64
	if err := s.pool.QueryRow(ctx, query).Scan(&ts); err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get latest allowlist timestamp: %w", err)
	}
	return ts, nil
}

// LatestGroups retrieves the latest n refresh timestamps with row counts.
func (s *AllowlistStore) LatestGroups(ctx context.Context, n int) ([]*domain.RefreshGroup, error) {
	query := `
		SELECT ts_utc, COUNT(*) AS rows
		FROM universe_allowlist
		GROUP BY ts_utc
		ORDER BY ts_utc DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("get latest refresh groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.RefreshGroup
	for rows.Next() {
		var g domain.RefreshGroup
		if err := rows.Scan(&g.TsUTC, &g.Rows); err != nil {
			return nil, fmt.Errorf("scan refresh group: %w", err)
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh groups: %w", err)
	}
	return groups, nil
}

// LatestEntries retrieves all entries of the latest n refresh groups.
func (s *AllowlistStore) LatestEntries(ctx context.Context, groups int) ([]*domain.AllowlistEntry, error) {
	query := `
		SELECT ts_utc, chain_id, pair_address, source, created_at
		FROM universe_allowlist
		WHERE ts_utc IN (
			SELECT DISTINCT ts_utc FROM universe_allowlist
			ORDER BY ts_utc DESC
			LIMIT $1
		)
		ORDER BY ts_utc ASC, chain_id ASC, pair_address ASC
	`

	rows, err := s.pool.Query(ctx, query, groups)
	if err != nil {
		return nil, fmt.Errorf("get latest allowlist entries: %w", err)
	}
	defer rows.Close()

	return scanAllowlistEntries(rows)
}

// DistinctKeys retrieves every instrument key ever present.
func (s *AllowlistStore) DistinctKeys(ctx context.Context) ([]domain.InstrumentKey, error) {
	query := `
		SELECT DISTINCT chain_id, pair_address
		FROM universe_allowlist
		ORDER BY chain_id ASC, pair_address ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get distinct instrument keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.InstrumentKey
	for rows.Next() {
		var k domain.InstrumentKey
		if err := rows.Scan(&k.ChainID, &k.PairAddress); err != nil {
			return nil, fmt.Errorf("scan instrument key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument keys: %w", err)
	}
	return keys, nil
}

// scanAllowlistEntries scans multiple rows into a slice of AllowlistEntry.
func scanAllowlistEntries(rows pgx.Rows) ([]*domain.AllowlistEntry, error) {
	var entries []*domain.AllowlistEntry

	for rows.Next() {
		var e domain.AllowlistEntry
		var sourceStr string

		err := rows.Scan(&e.TsUTC, &e.Key.ChainID, &e.Key.PairAddress, &sourceStr, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan allowlist row: %w", err)
		}

		e.Source = domain.AllowlistSource(sourceStr)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowlist rows: %w", err)
	}

	return entries, nil
}
