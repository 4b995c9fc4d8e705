package memory

import (
	"context"
	"sort"
	"sync"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// RegimeStateStore is an in-memory implementation of storage.RegimeStateStore.
type RegimeStateStore struct {
	mu   sync.RWMutex
	data map[stateKey]*domain.RegimeState
}

type stateKey struct {
	regimeRunID string
	periodTsUTC int64
}

// NewRegimeStateStore creates a new in-memory regime state store.
func NewRegimeStateStore() *RegimeStateStore {
	return &RegimeStateStore{
		data: make(map[stateKey]*domain.RegimeState),
	}
}

// InsertBulk adds multiple state rows. Fails entire batch on any
// duplicate (regime_run_id, period_ts_utc).
func (s *RegimeStateStore) InsertBulk(_ context.Context, states []*domain.RegimeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[stateKey]struct{}, len(states))
	for _, st := range states {
		if st == nil || st.RegimeRunID == "" {
			return storage.ErrInvalidInput
		}
		k := stateKey{st.RegimeRunID, st.PeriodTsUTC}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, st := range states {
		stateCopy := *st
		s.data[stateKey{st.RegimeRunID, st.PeriodTsUTC}] = &stateCopy
	}
	return nil
}

// GetByRunID retrieves all state rows for a run, ordered by period ASC.
func (s *RegimeStateStore) GetByRunID(_ context.Context, regimeRunID string) ([]*domain.RegimeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RegimeState
	for _, st := range s.data {
		if st.RegimeRunID == regimeRunID {
			stateCopy := *st
			result = append(result, &stateCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodTsUTC < result[j].PeriodTsUTC
	})
	return result, nil
}

// CountByRunID counts the persisted state rows for a run.
func (s *RegimeStateStore) CountByRunID(_ context.Context, regimeRunID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, st := range s.data {
		if st.RegimeRunID == regimeRunID {
			count++
		}
	}
	return count, nil
}

// Verify interface compliance at compile time.
var _ storage.RegimeStateStore = (*RegimeStateStore)(nil)
