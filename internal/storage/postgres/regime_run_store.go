package postgres

import (
	"context"
	"fmt"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// RegimeRunStore implements storage.RegimeRunStore using PostgreSQL.
type RegimeRunStore struct {
	pool *Pool
}

// NewRegimeRunStore creates a new RegimeRunStore.
func NewRegimeRunStore(pool *Pool) *RegimeRunStore {
	return &RegimeRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RegimeRunStore = (*RegimeRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if regime_run_id exists.
func (s *RegimeRunStore) Insert(ctx context.Context, run *domain.RegimeRun) error {
	if run == nil || run.RegimeRunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO regime_runs (regime_run_id, dataset_id, freq, model, params_json)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		run.RegimeRunID,
		run.DatasetID,
		run.Freq,
		run.Model,
		run.ParamsJSON,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert regime run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RegimeRunStore) GetByID(ctx context.Context, regimeRunID string) (*domain.RegimeRun, error) {
	query := `
		SELECT regime_run_id, dataset_id, freq, model, params_json, created_at
		FROM regime_runs
		WHERE regime_run_id = $1
	`

	var run domain.RegimeRun
	err := s.pool.QueryRow(ctx, query, regimeRunID).Scan(
		&run.RegimeRunID,
		&run.DatasetID,
		&run.Freq,
		&run.Model,
		&run.ParamsJSON,
		&run.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get regime run by id: %w", err)
	}
	return &run, nil
}
