// Package memory provides in-memory store implementations for tests
// and fixture runs.
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

// AllowlistStore is an in-memory implementation of storage.AllowlistStore.
type AllowlistStore struct {
	mu   sync.RWMutex
	data map[allowlistKey]*domain.AllowlistEntry
}

type allowlistKey struct {
	tsUTC     int64
	canonical string
}

// NewAllowlistStore creates a new in-memory allowlist store.
func NewAllowlistStore() *AllowlistStore {
	return &AllowlistStore{
		data: make(map[allowlistKey]*domain.AllowlistEntry),
	}
}

// InsertSnapshot adds a full refresh snapshot.
func (s *AllowlistStore) InsertSnapshot(_ context.Context, entries []*domain.AllowlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entries)
}

// insertLocked validates and stores entries. Caller holds the lock.
func (s *AllowlistStore) insertLocked(entries []*domain.AllowlistEntry) error {
	if err := s.validateLocked(entries); err != nil {
		return err
	}
	s.storeLocked(entries)
	return nil
}

// validateLocked checks entries without writing. Caller holds the lock.
func (s *AllowlistStore) validateLocked(entries []*domain.AllowlistEntry) error {
	for _, e := range entries {
		if e == nil || e.Key.ChainID == "" || e.Key.PairAddress == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[allowlistKey{e.TsUTC, idhash.CanonicalInstrumentKey(e.Key)}]; exists {
			return storage.ErrDuplicateKey
		}
	}
	return nil
}

// storeLocked writes pre-validated entries. Caller holds the lock.
func (s *AllowlistStore) storeLocked(entries []*domain.AllowlistEntry) {
	now := time.Now().UnixMilli()
	for _, e := range entries {
		entryCopy := *e
		if entryCopy.CreatedAt == 0 {
			entryCopy.CreatedAt = now
		}
		s.data[allowlistKey{e.TsUTC, idhash.CanonicalInstrumentKey(e.Key)}] = &entryCopy
	}
}

// GetByTimestamp retrieves the snapshot at a refresh timestamp.
func (s *AllowlistStore) GetByTimestamp(_ context.Context, tsUTC int64) ([]*domain.AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AllowlistEntry
	for _, e := range s.data {
		if e.TsUTC == tsUTC {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}
	sortEntries(result)
	return result, nil
}

// LatestTimestamp returns the newest refresh timestamp.
func (s *AllowlistStore) LatestTimestamp(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for k := range s.data {
		if !found || k.tsUTC > latest {
			latest = k.tsUTC
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return latest, nil
}

// LatestGroups retrieves the latest n refresh timestamps with row counts.
func (s *AllowlistStore) LatestGroups(_ context.Context, n int) ([]*domain.RefreshGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int64)
	for k := range s.data {
		counts[k.tsUTC]++
	}

	groups := make([]*domain.RefreshGroup, 0, len(counts))
	for ts, rows := range counts {
		groups = append(groups, &domain.RefreshGroup{TsUTC: ts, Rows: rows})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].TsUTC > groups[j].TsUTC })

	if n > 0 && len(groups) > n {
		groups = groups[:n]
	}
	return groups, nil
}

// LatestEntries retrieves all entries of the latest n refresh groups.
func (s *AllowlistStore) LatestEntries(ctx context.Context, groups int) ([]*domain.AllowlistEntry, error) {
	recent, err := s.LatestGroups(ctx, groups)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keep := make(map[int64]struct{}, len(recent))
	for _, g := range recent {
		keep[g.TsUTC] = struct{}{}
	}

	var result []*domain.AllowlistEntry
	for _, e := range s.data {
		if _, ok := keep[e.TsUTC]; ok {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}
	sortEntries(result)
	return result, nil
}

// DistinctKeys retrieves every instrument key ever present.
func (s *AllowlistStore) DistinctKeys(_ context.Context) ([]domain.InstrumentKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]domain.InstrumentKey)
	for _, e := range s.data {
		seen[idhash.CanonicalInstrumentKey(e.Key)] = e.Key
	}

	canonicals := make([]string, 0, len(seen))
	for c := range seen {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)

	keys := make([]domain.InstrumentKey, 0, len(canonicals))
	for _, c := range canonicals {
		keys = append(keys, seen[c])
	}
	return keys, nil
}

// sortEntries orders by ts ASC then instrument key ASC.
func sortEntries(entries []*domain.AllowlistEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TsUTC != entries[j].TsUTC {
			return entries[i].TsUTC < entries[j].TsUTC
		}
		return idhash.CanonicalInstrumentKey(entries[i].Key) < idhash.CanonicalInstrumentKey(entries[j].Key)
	})
}

// Verify interface compliance at compile time.
var _ storage.AllowlistStore = (*AllowlistStore)(nil)
