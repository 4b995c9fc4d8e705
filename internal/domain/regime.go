package domain

// RegimeRun represents one recorded regime computation.
// Corresponds to regime_runs table in PostgreSQL.
// Identity is immutable once created: if a request's identity differs
// from a stored run's identity under the same id, the stored run is
// stale and must not be reused.
type RegimeRun struct {
	RegimeRunID string // PRIMARY KEY, deterministic hash of the identity
	DatasetID   string
	Freq        string // bar frequency, e.g. "1h"
	Model       string // regime model name
	ParamsJSON  string // serialized model parameters, order-insensitive equality
	CreatedAt   int64  // record creation timestamp (ms)
}

// RegimeState is one per-period output row of a regime run.
// Corresponds to regime_states table in PostgreSQL. One row per covered
// period; the count for a valid run must equal the period count of the
// dataset the run was computed over.
type RegimeState struct {
	RegimeRunID string
	PeriodTsUTC int64   // period start, Unix milliseconds
	StateLabel  string  // e.g. "trending", "choppy", "crash"
	Confidence  float64 // model confidence in [0, 1]
}
