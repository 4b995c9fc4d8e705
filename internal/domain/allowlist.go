package domain

// AllowlistSource records why an instrument is part of a snapshot.
type AllowlistSource string

const (
	// SourceEligible marks a member that passed the eligibility filter
	// at this refresh.
	SourceEligible AllowlistSource = "eligible"

	// SourceHeld marks a member retained only by hysteresis or by churn
	// suppression. Consecutive "held" rows encode the miss streak.
	SourceHeld AllowlistSource = "held"
)

// AllowlistEntry represents one instrument's membership at one refresh.
// Corresponds to universe_allowlist table in PostgreSQL.
// Primary key (ts_utc, chain_id, pair_address). Append-only.
type AllowlistEntry struct {
	TsUTC     int64 // refresh timestamp, Unix milliseconds
	Key       InstrumentKey
	Source    AllowlistSource
	CreatedAt int64 // record creation timestamp (ms)
}

// RefreshGroup is one refresh timestamp with its allowlist row count.
// Read-side diagnostic aggregate, never written directly.
type RefreshGroup struct {
	TsUTC int64
	Rows  int64
}
