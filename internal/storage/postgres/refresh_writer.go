package postgres

import (
	"context"
	"fmt"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// RefreshWriter implements storage.RefreshWriter using PostgreSQL.
// The allowlist snapshot and its churn entries commit in one
// transaction, so a reader never observes a partially-written refresh.
type RefreshWriter struct {
	pool *Pool
}

// NewRefreshWriter creates a new RefreshWriter.
func NewRefreshWriter(pool *Pool) *RefreshWriter {
	return &RefreshWriter{pool: pool}
}

// Compile-time interface check.
var _ storage.RefreshWriter = (*RefreshWriter)(nil)

// ApplyRefresh writes one refresh atomically.
func (w *RefreshWriter) ApplyRefresh(ctx context.Context, allowlist []*domain.AllowlistEntry, churn []*domain.ChurnLogEntry) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin refresh: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertAllowlistTx(ctx, tx, allowlist); err != nil {
		return err
	}
	if err := insertChurnTx(ctx, tx, churn); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit refresh: %w", err)
	}
	return nil
}
