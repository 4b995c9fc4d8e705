package domain

// Churn actions, canonical values.
const (
	ChurnActionAdd    = "add"
	ChurnActionRemove = "remove"
)

// Legacy action values present in historical rows. Accepted as synonyms
// on read; never written.
const (
	churnActionAddedLegacy   = "added"
	churnActionRemovedLegacy = "removed"
)

// Churn reason codes.
const (
	ChurnReasonNewListing      = "new_listing"      // first sighting enters the universe
	ChurnReasonDelisted        = "delisted"         // evicted after sustained eligibility failure
	ChurnReasonChurnReplace    = "churn_replace"    // displaced by / displacing another member (top-N)
	ChurnReasonPersistenceFail = "persistence_fail" // proposed change suppressed by the churn budget
)

// ChurnLogEntry represents one add/remove decision at a refresh.
// Corresponds to universe_churn_log table in PostgreSQL. Append-only.
type ChurnLogEntry struct {
	TsUTC     int64 // refresh timestamp, Unix milliseconds
	Action    string
	Reason    string
	Key       InstrumentKey
	CreatedAt int64 // record creation timestamp (ms)
}

// ChurnBucket is one (action, reason) histogram cell from the churn log.
type ChurnBucket struct {
	Action string
	Reason string
	Count  int64
}

// InstrumentChurnCount is a per-instrument churn event count over a
// time window, from the analytics archive.
type InstrumentChurnCount struct {
	Key    InstrumentKey
	Events int64
}

// CanonicalChurnAction maps legacy action values to their canonical
// form. Applied at the read boundary; stored rows are never mutated.
func CanonicalChurnAction(action string) string {
	switch action {
	case churnActionAddedLegacy:
		return ChurnActionAdd
	case churnActionRemovedLegacy:
		return ChurnActionRemove
	default:
		return action
	}
}
