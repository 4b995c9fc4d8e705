package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// ChurnLogStore implements storage.ChurnLogStore using PostgreSQL.
// Legacy action values (added/removed) are canonicalized on read;
// stored rows are never rewritten.
type ChurnLogStore struct {
	pool *Pool
}

// NewChurnLogStore creates a new ChurnLogStore.
func NewChurnLogStore(pool *Pool) *ChurnLogStore {
	return &ChurnLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ChurnLogStore = (*ChurnLogStore)(nil)

// InsertBatch adds churn entries.
func (s *ChurnLogStore) InsertBatch(ctx context.Context, entries []*domain.ChurnLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin churn insert: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertChurnTx(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit churn insert: %w", err)
	}
	return nil
}

// insertChurnTx writes churn entries inside an open transaction.
// Shared with the refresh writer.
func insertChurnTx(ctx context.Context, tx pgx.Tx, entries []*domain.ChurnLogEntry) error {
	query := `
		INSERT INTO universe_churn_log (ts_utc, action, reason, chain_id, pair_address)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, e := range entries {
		if e == nil || e.Action == "" || e.Key.ChainID == "" || e.Key.PairAddress == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query, e.TsUTC, e.Action, e.Reason, e.Key.ChainID, e.Key.PairAddress)
		if err != nil {
			return fmt.Errorf("insert churn entry: %w", err)
		}
	}
	return nil
}

// GetByTimestamp retrieves entries at a refresh timestamp with actions
// canonicalized.
func (s *ChurnLogStore) GetByTimestamp(ctx context.Context, tsUTC int64) ([]*domain.ChurnLogEntry, error) {
	query := `
		SELECT ts_utc, action, reason, chain_id, pair_address, created_at
		FROM universe_churn_log
		WHERE ts_utc = $1
		ORDER BY action ASC, chain_id ASC, pair_address ASC
	`

	rows, err := s.pool.Query(ctx, query, tsUTC)
	if err != nil {
		return nil, fmt.Errorf("get churn by timestamp: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ChurnLogEntry
	for rows.Next() {
		var e domain.ChurnLogEntry
		err := rows.Scan(&e.TsUTC, &e.Action, &e.Reason, &e.Key.ChainID, &e.Key.PairAddress, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan churn row: %w", err)
		}
		e.Action = domain.CanonicalChurnAction(e.Action)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate churn rows: %w", err)
	}
	return entries, nil
}

// CountByActionReason aggregates the (action, reason) histogram at a
// refresh timestamp. Canonicalization happens after the SQL GROUP BY,
// so legacy and canonical buckets of the same action are merged here.
func (s *ChurnLogStore) CountByActionReason(ctx context.Context, tsUTC int64) ([]*domain.ChurnBucket, error) {
	query := `
		SELECT action, reason, COUNT(*) AS cnt
		FROM universe_churn_log
		WHERE ts_utc = $1
		GROUP BY action, reason
	`

	rows, err := s.pool.Query(ctx, query, tsUTC)
	if err != nil {
		return nil, fmt.Errorf("count churn by action/reason: %w", err)
	}
	defer rows.Close()

	type bucketKey struct{ action, reason string }
	counts := make(map[bucketKey]int64)
	for rows.Next() {
		var action, reason string
		var cnt int64
		if err := rows.Scan(&action, &reason, &cnt); err != nil {
			return nil, fmt.Errorf("scan churn bucket: %w", err)
		}
		counts[bucketKey{domain.CanonicalChurnAction(action), reason}] += cnt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate churn buckets: %w", err)
	}

	buckets := make([]*domain.ChurnBucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, &domain.ChurnBucket{Action: k.action, Reason: k.reason, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Action != buckets[j].Action {
			return buckets[i].Action < buckets[j].Action
		}
		return buckets[i].Reason < buckets[j].Reason
	})
	return buckets, nil
}
