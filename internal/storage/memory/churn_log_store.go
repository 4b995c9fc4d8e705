package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/idhash"
	"dex-universe-lab/internal/storage"
)

// ChurnLogStore is an in-memory implementation of storage.ChurnLogStore.
type ChurnLogStore struct {
	mu   sync.RWMutex
	data []*domain.ChurnLogEntry
}

// NewChurnLogStore creates a new in-memory churn log store.
func NewChurnLogStore() *ChurnLogStore {
	return &ChurnLogStore{}
}

// InsertBatch adds churn entries.
func (s *ChurnLogStore) InsertBatch(_ context.Context, entries []*domain.ChurnLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entries)
}

// insertLocked validates and stores entries. Caller holds the lock.
func (s *ChurnLogStore) insertLocked(entries []*domain.ChurnLogEntry) error {
	if err := validateChurnEntries(entries); err != nil {
		return err
	}
	s.storeLocked(entries)
	return nil
}

func validateChurnEntries(entries []*domain.ChurnLogEntry) error {
	for _, e := range entries {
		if e == nil || e.Action == "" || e.Key.ChainID == "" || e.Key.PairAddress == "" {
			return storage.ErrInvalidInput
		}
	}
	return nil
}

// storeLocked writes pre-validated entries. Caller holds the lock.
func (s *ChurnLogStore) storeLocked(entries []*domain.ChurnLogEntry) {
	now := time.Now().UnixMilli()
	for _, e := range entries {
		entryCopy := *e
		if entryCopy.CreatedAt == 0 {
			entryCopy.CreatedAt = now
		}
		s.data = append(s.data, &entryCopy)
	}
}

// GetByTimestamp retrieves entries at a refresh timestamp with actions
// canonicalized.
func (s *ChurnLogStore) GetByTimestamp(_ context.Context, tsUTC int64) ([]*domain.ChurnLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ChurnLogEntry
	for _, e := range s.data {
		if e.TsUTC == tsUTC {
			entryCopy := *e
			entryCopy.Action = domain.CanonicalChurnAction(entryCopy.Action)
			result = append(result, &entryCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Action != result[j].Action {
			return result[i].Action < result[j].Action
		}
		return idhash.CanonicalInstrumentKey(result[i].Key) < idhash.CanonicalInstrumentKey(result[j].Key)
	})
	return result, nil
}

// CountByActionReason aggregates the (action, reason) histogram at a
// refresh timestamp. Legacy added/removed rows count under their
// canonical action.
func (s *ChurnLogStore) CountByActionReason(_ context.Context, tsUTC int64) ([]*domain.ChurnBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucketKey struct{ action, reason string }
	counts := make(map[bucketKey]int64)
	for _, e := range s.data {
		if e.TsUTC != tsUTC {
			continue
		}
		counts[bucketKey{domain.CanonicalChurnAction(e.Action), e.Reason}]++
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

// Verify interface compliance at compile time.
var _ storage.ChurnLogStore = (*ChurnLogStore)(nil)
