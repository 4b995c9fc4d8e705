// Package regimecache gates reuse of persisted regime computations.
// The guard is a pure decision gate: it never computes or writes
// results, and ambiguity always resolves to recompute.
package regimecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/observability"
	"dex-universe-lab/internal/storage"
)

// Decision reasons, stable strings for logs and metrics.
const (
	ReasonReusable          = "reusable"
	ReasonRunNotFound       = "run_not_found"
	ReasonDatasetMismatch   = "dataset_mismatch"
	ReasonFreqMismatch      = "freq_mismatch"
	ReasonModelMismatch     = "model_mismatch"
	ReasonParamsMismatch    = "params_mismatch"
	ReasonParamsUndecodable = "params_undecodable"
	ReasonRowCountMismatch  = "row_count_mismatch"
)

// RunIdentity is the identity tuple of a requested regime computation.
type RunIdentity struct {
	DatasetID  string
	Freq       string
	Model      string
	ParamsJSON string
}

// Decision is the guard's verdict for one stored run.
type Decision struct {
	Reuse  bool
	Reason string
}

// MayReuse decides whether a stored run may serve a request. Reuse
// requires exact identity equality (semantic for params) and an exact
// child-row count match. stored == nil means no run exists for the id.
func MayReuse(stored *domain.RegimeRun, requested RunIdentity, storedRows, expectedRows int64) Decision {
	if stored == nil {
		return Decision{Reason: ReasonRunNotFound}
	}
	if stored.DatasetID != requested.DatasetID {
		return Decision{Reason: ReasonDatasetMismatch}
	}
	if stored.Freq != requested.Freq {
		return Decision{Reason: ReasonFreqMismatch}
	}
	if stored.Model != requested.Model {
		return Decision{Reason: ReasonModelMismatch}
	}

	equal, err := paramsEqual(stored.ParamsJSON, requested.ParamsJSON)
	if err != nil {
		// Undecodable params on either side fail closed.
		return Decision{Reason: ReasonParamsUndecodable}
	}
	if !equal {
		return Decision{Reason: ReasonParamsMismatch}
	}

	// Identity matches; a row-count mismatch means a previous write was
	// partial or interrupted.
	if storedRows != expectedRows {
		return Decision{Reason: ReasonRowCountMismatch}
	}

	return Decision{Reuse: true, Reason: ReasonReusable}
}

// paramsEqual compares two parameter encodings by decoded structure, so
// differently-ordered but equivalent encodings are equal. An empty
// encoding decodes as JSON null.
func paramsEqual(a, b string) (bool, error) {
	decodedA, err := decodeParams(a)
	if err != nil {
		return false, err
	}
	decodedB, err := decodeParams(b)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(decodedA, decodedB), nil
}

func decodeParams(params string) (any, error) {
	if params == "" {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(params), &decoded); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return decoded, nil
}

// Guard wires the pure decision to the persistence adapter.
type Guard struct {
	runs   storage.RegimeRunStore
	states storage.RegimeStateStore
}

// NewGuard creates a store-backed consistency guard.
func NewGuard(runs storage.RegimeRunStore, states storage.RegimeStateStore) *Guard {
	return &Guard{runs: runs, states: states}
}

// Check reads the stored run and its child-row count, then decides
// reuse. A missing run is a normal cache miss, not an error.
func (g *Guard) Check(ctx context.Context, runID string, requested RunIdentity, expectedRows int64) (Decision, error) {
	stored, err := g.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			observability.RecordCacheDecision(ReasonRunNotFound)
			return Decision{Reason: ReasonRunNotFound}, nil
		}
		return Decision{}, fmt.Errorf("fetch run %s: %w", runID, err)
	}

	storedRows, err := g.states.CountByRunID(ctx, runID)
	if err != nil {
		return Decision{}, fmt.Errorf("count states for run %s: %w", runID, err)
	}

	decision := MayReuse(stored, requested, storedRows, expectedRows)
	observability.RecordCacheDecision(decision.Reason)
	return decision, nil
}
