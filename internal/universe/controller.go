package universe

import (
	"sort"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/idhash"
)

// Policy holds the churn-control knobs for one refresh.
type Policy struct {
	// MinLiquidityUSD is the eligibility floor; candidates below it
	// fail the filter regardless of tradability.
	MinLiquidityUSD float64

	// MaxUniverseSize caps the universe at the top-N eligible
	// candidates by liquidity. 0 means unbounded.
	MaxUniverseSize int

	// MinPersistenceRefreshes is the hysteresis window: a member is
	// evicted only after failing eligibility for this many consecutive
	// refreshes. Minimum effective value is 1 (immediate eviction).
	MinPersistenceRefreshes int

	// MaxChurnPct bounds churn-logged changes as a fraction of the
	// prior universe size per refresh. A proposed batch above the bound
	// is suppressed: the prior allowlist is held and every suppressed
	// decision is logged with reason persistence_fail. 0 disables the
	// bound.
	MaxChurnPct float64
}

// Decision is the controller's output for one refresh: the full new
// allowlist snapshot plus the churn entries explaining every membership
// change. Both are deterministically ordered.
type Decision struct {
	Allowlist []*domain.AllowlistEntry
	Churn     []*domain.ChurnLogEntry

	// Suppressed reports that the proposed churn batch exceeded
	// MaxChurnPct and the prior allowlist was retained.
	Suppressed bool
}

// proposedChange is one add/remove the controller wants to apply.
type proposedChange struct {
	key    domain.InstrumentKey
	action string
	reason string
}

// Decide computes the next allowlist and churn log from prior state and
// the current candidate snapshot. Pure: identical inputs yield
// identical output. An empty snapshot means every member fails
// eligibility this refresh; hysteresis still applies.
func Decide(state *PriorState, candidates []domain.InstrumentCandidate, tsUTC int64, policy Policy) Decision {
	eligible := eligibleCandidates(candidates, policy)

	// Rank by liquidity desc, canonical key asc for ties.
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].LiquidityUSD != eligible[j].LiquidityUSD {
			return eligible[i].LiquidityUSD > eligible[j].LiquidityUSD
		}
		return idhash.CanonicalInstrumentKey(eligible[i].Key) < idhash.CanonicalInstrumentKey(eligible[j].Key)
	})

	eligibleSet := make(map[string]struct{}, len(eligible))
	for _, c := range eligible {
		eligibleSet[idhash.CanonicalInstrumentKey(c.Key)] = struct{}{}
	}

	top := eligible
	if policy.MaxUniverseSize > 0 && len(top) > policy.MaxUniverseSize {
		top = top[:policy.MaxUniverseSize]
	}
	topSet := make(map[string]struct{}, len(top))
	for _, c := range top {
		topSet[idhash.CanonicalInstrumentKey(c.Key)] = struct{}{}
	}

	var (
		stay             []memberAllowance // surviving prior members
		removals         []proposedChange
		replaceEvictions int
	)

	for _, canonical := range sortedMemberKeys(state) {
		m := state.Members[canonical]

		switch {
		case inSet(topSet, canonical):
			// IN → IN, no churn entry.
			stay = append(stay, memberAllowance{key: m.Key, source: domain.SourceEligible})

		case inSet(eligibleSet, canonical):
			// Still eligible but displaced from the top-N.
			removals = append(removals, proposedChange{
				key: m.Key, action: domain.ChurnActionRemove, reason: domain.ChurnReasonChurnReplace,
			})
			replaceEvictions++

		default:
			// Failed eligibility this refresh.
			if m.MissStreak+1 >= minPersistence(policy) {
				removals = append(removals, proposedChange{
					key: m.Key, action: domain.ChurnActionRemove, reason: domain.ChurnReasonDelisted,
				})
			} else {
				stay = append(stay, memberAllowance{key: m.Key, source: domain.SourceHeld})
			}
		}
	}

	// Entrants, in rank order. The first entrants pair with capacity
	// evictions as replacements; the rest are first sightings or
	// re-entries.
	var additions []proposedChange
	for _, c := range top {
		canonical := idhash.CanonicalInstrumentKey(c.Key)
		if _, isMember := state.Members[canonical]; isMember {
			continue
		}

		reason := domain.ChurnReasonNewListing
		if len(additions) < replaceEvictions {
			reason = domain.ChurnReasonChurnReplace
		} else if _, known := state.Known[canonical]; known {
			reason = "" // plain re-entry after a prior removal
		}

		additions = append(additions, proposedChange{
			key: c.Key, action: domain.ChurnActionAdd, reason: reason,
		})
	}

	if exceedsChurnBudget(len(additions)+len(removals), len(state.Members), policy) {
		return suppressedDecision(state, eligibleSet, additions, removals, tsUTC)
	}

	// Apply: surviving members plus entrants.
	allowance := stay
	for _, a := range additions {
		allowance = append(allowance, memberAllowance{key: a.key, source: domain.SourceEligible})
	}

	return Decision{
		Allowlist: allowlistEntries(allowance, tsUTC),
		Churn:     churnEntries(append(additions, removals...), tsUTC, ""),
	}
}

// memberAllowance is one instrument headed for the new snapshot.
type memberAllowance struct {
	key    domain.InstrumentKey
	source domain.AllowlistSource
}

func eligibleCandidates(candidates []domain.InstrumentCandidate, policy Policy) []domain.InstrumentCandidate {
	var eligible []domain.InstrumentCandidate
	for _, c := range candidates {
		if c.Tradable && c.LiquidityUSD >= policy.MinLiquidityUSD {
			eligible = append(eligible, c)
		}
	}
	return eligible
}

func minPersistence(policy Policy) int {
	if policy.MinPersistenceRefreshes < 1 {
		return 1
	}
	return policy.MinPersistenceRefreshes
}

// exceedsChurnBudget reports whether a proposed batch breaks the
// MaxChurnPct bound. Never triggers on the first refresh: a fraction of
// an empty universe would suppress everything.
func exceedsChurnBudget(proposed, universeSize int, policy Policy) bool {
	if policy.MaxChurnPct <= 0 || universeSize == 0 {
		return false
	}
	return float64(proposed) > policy.MaxChurnPct*float64(universeSize)
}

// suppressedDecision holds the prior allowlist and logs every proposed
// change with reason persistence_fail for operator review. Member
// provenance still reflects current eligibility so miss streaks keep
// advancing under suppression.
func suppressedDecision(state *PriorState, eligibleSet map[string]struct{}, additions, removals []proposedChange, tsUTC int64) Decision {
	var allowance []memberAllowance
	for _, canonical := range sortedMemberKeys(state) {
		m := state.Members[canonical]
		source := domain.SourceHeld
		if inSet(eligibleSet, canonical) {
			source = domain.SourceEligible
		}
		allowance = append(allowance, memberAllowance{key: m.Key, source: source})
	}

	return Decision{
		Allowlist:  allowlistEntries(allowance, tsUTC),
		Churn:      churnEntries(append(additions, removals...), tsUTC, domain.ChurnReasonPersistenceFail),
		Suppressed: true,
	}
}

func allowlistEntries(allowance []memberAllowance, tsUTC int64) []*domain.AllowlistEntry {
	entries := make([]*domain.AllowlistEntry, 0, len(allowance))
	for _, a := range allowance {
		entries = append(entries, &domain.AllowlistEntry{
			TsUTC:  tsUTC,
			Key:    a.key,
			Source: a.source,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return idhash.CanonicalInstrumentKey(entries[i].Key) < idhash.CanonicalInstrumentKey(entries[j].Key)
	})
	return entries
}

// churnEntries materializes proposed changes. A non-empty reasonOverride
// replaces every reason (suppression).
func churnEntries(changes []proposedChange, tsUTC int64, reasonOverride string) []*domain.ChurnLogEntry {
	entries := make([]*domain.ChurnLogEntry, 0, len(changes))
	for _, ch := range changes {
		reason := ch.reason
		if reasonOverride != "" {
			reason = reasonOverride
		}
		entries = append(entries, &domain.ChurnLogEntry{
			TsUTC:  tsUTC,
			Action: ch.action,
			Reason: reason,
			Key:    ch.key,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Action != entries[j].Action {
			return entries[i].Action < entries[j].Action
		}
		return idhash.CanonicalInstrumentKey(entries[i].Key) < idhash.CanonicalInstrumentKey(entries[j].Key)
	})
	return entries
}

func sortedMemberKeys(state *PriorState) []string {
	keys := make([]string, 0, len(state.Members))
	for canonical := range state.Members {
		keys = append(keys, canonical)
	}
	sort.Strings(keys)
	return keys
}

func inSet(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
