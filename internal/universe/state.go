// Package universe decides allowlist membership across refreshes,
// damping oscillation with persistence hysteresis and a churn budget.
//
// The controller is stateless between invocations: per-instrument state
// is derived by replaying recent allowlist snapshots, where the source
// column ("eligible" vs "held") encodes consecutive eligibility misses.
package universe

import (
	"sort"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/idhash"
)

// MemberState is the derived state of one current universe member.
type MemberState struct {
	Key domain.InstrumentKey

	// MissStreak counts consecutive trailing refreshes at which the
	// member was retained only by hysteresis (source "held").
	MissStreak int
}

// PriorState is the controller's view of history before a refresh.
type PriorState struct {
	// Members holds current universe members by canonical key.
	Members map[string]MemberState

	// Known holds every canonical key that ever appeared in the
	// allowlist, for distinguishing first sightings from re-entries.
	Known map[string]struct{}
}

// NewPriorState returns an empty state, used for the first-ever refresh.
func NewPriorState() *PriorState {
	return &PriorState{
		Members: make(map[string]MemberState),
		Known:   make(map[string]struct{}),
	}
}

// ReplayState derives PriorState from allowlist history.
//
// history carries the entries of the most recent refresh groups (enough
// groups to cover the hysteresis window); the latest group defines
// current membership and trailing "held" rows per key define the miss
// streak. knownKeys carries every key ever present in the allowlist.
func ReplayState(history []*domain.AllowlistEntry, knownKeys []domain.InstrumentKey) *PriorState {
	state := NewPriorState()

	for _, k := range knownKeys {
		state.Known[idhash.CanonicalInstrumentKey(k)] = struct{}{}
	}

	if len(history) == 0 {
		return state
	}

	// Group entries by refresh timestamp, newest first.
	byTs := make(map[int64]map[string]*domain.AllowlistEntry)
	var timestamps []int64
	for _, e := range history {
		group, ok := byTs[e.TsUTC]
		if !ok {
			group = make(map[string]*domain.AllowlistEntry)
			byTs[e.TsUTC] = group
			timestamps = append(timestamps, e.TsUTC)
		}
		group[idhash.CanonicalInstrumentKey(e.Key)] = e
		state.Known[idhash.CanonicalInstrumentKey(e.Key)] = struct{}{}
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] > timestamps[j] })

	latest := byTs[timestamps[0]]
	for canonical, entry := range latest {
		state.Members[canonical] = MemberState{
			Key:        entry.Key,
			MissStreak: missStreak(canonical, timestamps, byTs),
		}
	}

	return state
}

// missStreak counts, from the newest group backwards, how many
// consecutive groups carry the key with source "held".
func missStreak(canonical string, timestamps []int64, byTs map[int64]map[string]*domain.AllowlistEntry) int {
	streak := 0
	for _, ts := range timestamps {
		entry, present := byTs[ts][canonical]
		if !present || entry.Source != domain.SourceHeld {
			break
		}
		streak++
	}
	return streak
}
