package memory

import (
	"context"
	"sync"
	"time"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// RegimeRunStore is an in-memory implementation of storage.RegimeRunStore.
type RegimeRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RegimeRun // keyed by regime_run_id
}

// NewRegimeRunStore creates a new in-memory regime run store.
func NewRegimeRunStore() *RegimeRunStore {
	return &RegimeRunStore{
		data: make(map[string]*domain.RegimeRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if regime_run_id exists.
func (s *RegimeRunStore) Insert(_ context.Context, run *domain.RegimeRun) error {
	if run == nil || run.RegimeRunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RegimeRunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *run
	if runCopy.CreatedAt == 0 {
		runCopy.CreatedAt = time.Now().UnixMilli()
	}
	s.data[run.RegimeRunID] = &runCopy
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RegimeRunStore) GetByID(_ context.Context, regimeRunID string) (*domain.RegimeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[regimeRunID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	runCopy := *run
	return &runCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.RegimeRunStore = (*RegimeRunStore)(nil)
