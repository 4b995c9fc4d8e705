package memory

import (
	"context"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// RefreshWriter applies one refresh atomically across the in-memory
// allowlist and churn log stores by holding both locks for the whole
// write. Mirrors the transactional grouping of the Postgres adapter.
type RefreshWriter struct {
	allowlist *AllowlistStore
	churn     *ChurnLogStore
}

// NewRefreshWriter creates a refresh writer over in-memory stores.
func NewRefreshWriter(allowlist *AllowlistStore, churn *ChurnLogStore) *RefreshWriter {
	return &RefreshWriter{allowlist: allowlist, churn: churn}
}

// ApplyRefresh writes the allowlist snapshot and its churn entries
// together. On any failure neither write is visible.
func (w *RefreshWriter) ApplyRefresh(_ context.Context, allowlist []*domain.AllowlistEntry, churn []*domain.ChurnLogEntry) error {
	w.allowlist.mu.Lock()
	defer w.allowlist.mu.Unlock()
	w.churn.mu.Lock()
	defer w.churn.mu.Unlock()

	// Validate both batches before writing either, so the pair commits
	// or neither does.
	if err := w.allowlist.validateLocked(allowlist); err != nil {
		return err
	}
	if err := validateChurnEntries(churn); err != nil {
		return err
	}

	w.allowlist.storeLocked(allowlist)
	w.churn.storeLocked(churn)
	return nil
}

// Verify interface compliance at compile time.
var _ storage.RefreshWriter = (*RefreshWriter)(nil)
