package postgres

import (
	"context"
	"fmt"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// RegimeStateStore implements storage.RegimeStateStore using PostgreSQL.
type RegimeStateStore struct {
	pool *Pool
}

// NewRegimeStateStore creates a new RegimeStateStore.
func NewRegimeStateStore(pool *Pool) *RegimeStateStore {
	return &RegimeStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RegimeStateStore = (*RegimeStateStore)(nil)

// InsertBulk adds multiple state rows atomically. Fails entire batch on
// any duplicate (regime_run_id, period_ts_utc).
func (s *RegimeStateStore) InsertBulk(ctx context.Context, states []*domain.RegimeState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin state insert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO regime_states (regime_run_id, period_ts_utc, state_label, confidence)
		VALUES ($1, $2, $3, $4)
	`

	for _, st := range states {
		if st == nil || st.RegimeRunID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query, st.RegimeRunID, st.PeriodTsUTC, st.StateLabel, st.Confidence)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert regime state: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit state insert: %w", err)
	}
	return nil
}

// GetByRunID retrieves all state rows for a run, ordered by period ASC.
func (s *RegimeStateStore) GetByRunID(ctx context.Context, regimeRunID string) ([]*domain.RegimeState, error) {
	query := `
		SELECT regime_run_id, period_ts_utc, state_label, confidence
		FROM regime_states
		WHERE regime_run_id = $1
		ORDER BY period_ts_utc ASC
	`

	rows, err := s.pool.Query(ctx, query, regimeRunID)
	if err != nil {
		return nil, fmt.Errorf("get regime states by run id: %w", err)
	}
	defer rows.Close()

	var states []*domain.RegimeState
	for rows.Next() {
		var st domain.RegimeState
		if err := rows.Scan(&st.RegimeRunID, &st.PeriodTsUTC, &st.StateLabel, &st.Confidence); err != nil {
			return nil, fmt.Errorf("scan regime state row: %w", err)
		}
		states = append(states, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regime state rows: %w", err)
	}
	return states, nil
}

// CountByRunID counts the persisted state rows for a run.
func (s *RegimeStateStore) CountByRunID(ctx context.Context, regimeRunID string) (int64, error) {
	query := `SELECT COUNT(*) FROM regime_states WHERE regime_run_id = $1`

	var count int64
	if err := s.pool.QueryRow(ctx, query, regimeRunID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count regime states: %w", err)
	}
	return count, nil
}
