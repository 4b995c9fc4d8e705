package regimecache

import (
	"context"
	"testing"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage/memory"
)

func storedRun() *domain.RegimeRun {
	return &domain.RegimeRun{
		RegimeRunID: "run-1",
		DatasetID:   "d1",
		Freq:        "1h",
		Model:       "m",
		ParamsJSON:  `{"k":1,"window":24}`,
	}
}

func request() RunIdentity {
	return RunIdentity{
		DatasetID:  "d1",
		Freq:       "1h",
		Model:      "m",
		ParamsJSON: `{"k":1,"window":24}`,
	}
}

func TestMayReuse_ExactMatch(t *testing.T) {
	d := MayReuse(storedRun(), request(), 100, 100)

	if !d.Reuse {
		t.Fatalf("expected reuse, got reason %s", d.Reason)
	}
	if d.Reason != ReasonReusable {
		t.Errorf("expected reason reusable, got %s", d.Reason)
	}
}

func TestMayReuse_ParamKeyOrderIrrelevant(t *testing.T) {
	req := request()
	req.ParamsJSON = `{"window":24,"k":1}`

	d := MayReuse(storedRun(), req, 100, 100)

	if !d.Reuse {
		t.Errorf("reordered equivalent params must reuse, got reason %s", d.Reason)
	}
}

func TestMayReuse_SingleFieldMismatches(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunIdentity)
		reason string
	}{
		{"dataset", func(r *RunIdentity) { r.DatasetID = "d2" }, ReasonDatasetMismatch},
		{"freq", func(r *RunIdentity) { r.Freq = "4h" }, ReasonFreqMismatch},
		{"model", func(r *RunIdentity) { r.Model = "m2" }, ReasonModelMismatch},
		{"params", func(r *RunIdentity) { r.ParamsJSON = `{"k":2,"window":24}` }, ReasonParamsMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request()
			tt.mutate(&req)

			d := MayReuse(storedRun(), req, 100, 100)
			if d.Reuse {
				t.Fatalf("mismatched %s must not reuse", tt.name)
			}
			if d.Reason != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, d.Reason)
			}
		})
	}
}

func TestMayReuse_NoStoredRun(t *testing.T) {
	d := MayReuse(nil, request(), 0, 100)

	if d.Reuse {
		t.Fatal("missing run must not reuse")
	}
	if d.Reason != ReasonRunNotFound {
		t.Errorf("expected reason run_not_found, got %s", d.Reason)
	}
}

func TestMayReuse_RowCountMismatch(t *testing.T) {
	// Identity matches but a prior write was interrupted.
	d := MayReuse(storedRun(), request(), 99, 100)

	if d.Reuse {
		t.Fatal("partial run must not reuse")
	}
	if d.Reason != ReasonRowCountMismatch {
		t.Errorf("expected reason row_count_mismatch, got %s", d.Reason)
	}
}

func TestMayReuse_UndecodableParamsFailClosed(t *testing.T) {
	stored := storedRun()
	stored.ParamsJSON = `{"k":` // truncated

	d := MayReuse(stored, request(), 100, 100)
	if d.Reuse {
		t.Fatal("undecodable stored params must not reuse")
	}
	if d.Reason != ReasonParamsUndecodable {
		t.Errorf("expected reason params_undecodable, got %s", d.Reason)
	}

	req := request()
	req.ParamsJSON = `not json`
	d = MayReuse(storedRun(), req, 100, 100)
	if d.Reuse {
		t.Fatal("undecodable requested params must not reuse")
	}
}

func TestMayReuse_EmptyParamsBothSides(t *testing.T) {
	stored := storedRun()
	stored.ParamsJSON = ""
	req := request()
	req.ParamsJSON = ""

	d := MayReuse(stored, req, 100, 100)
	if !d.Reuse {
		t.Errorf("empty params on both sides must reuse, got reason %s", d.Reason)
	}
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRegimeRunStore()
	states := memory.NewRegimeStateStore()
	guard := NewGuard(runs, states)

	// No run stored: normal cache miss, not an error.
	d, err := guard.Check(ctx, "run-1", request(), 2)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if d.Reuse || d.Reason != ReasonRunNotFound {
		t.Errorf("expected run_not_found, got %+v", d)
	}

	if err := runs.Insert(ctx, storedRun()); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	err = states.InsertBulk(ctx, []*domain.RegimeState{
		{RegimeRunID: "run-1", PeriodTsUTC: 1000, StateLabel: "trending", Confidence: 0.9},
		{RegimeRunID: "run-1", PeriodTsUTC: 2000, StateLabel: "choppy", Confidence: 0.7},
	})
	if err != nil {
		t.Fatalf("insert states: %v", err)
	}

	// Full match.
	d, err = guard.Check(ctx, "run-1", request(), 2)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !d.Reuse {
		t.Errorf("expected reuse, got reason %s", d.Reason)
	}

	// Expected count differs from persisted child rows.
	d, err = guard.Check(ctx, "run-1", request(), 3)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if d.Reuse || d.Reason != ReasonRowCountMismatch {
		t.Errorf("expected row_count_mismatch, got %+v", d)
	}
}
