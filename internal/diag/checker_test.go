package diag

import (
	"context"
	"testing"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage/memory"
)

func seedSnapshot(t *testing.T, store *memory.AllowlistStore, tsUTC int64, eligible, held []string) {
	t.Helper()
	var entries []*domain.AllowlistEntry
	for _, pair := range eligible {
		entries = append(entries, &domain.AllowlistEntry{
			TsUTC:  tsUTC,
			Key:    domain.InstrumentKey{ChainID: "solana", PairAddress: pair},
			Source: domain.SourceEligible,
		})
	}
	for _, pair := range held {
		entries = append(entries, &domain.AllowlistEntry{
			TsUTC:  tsUTC,
			Key:    domain.InstrumentKey{ChainID: "solana", PairAddress: pair},
			Source: domain.SourceHeld,
		})
	}
	if err := store.InsertSnapshot(context.Background(), entries); err != nil {
		t.Fatalf("InsertSnapshot(%d) error = %v", tsUTC, err)
	}
}

func seedChurn(t *testing.T, store *memory.ChurnLogStore, tsUTC int64, action, reason string, pairs ...string) {
	t.Helper()
	var entries []*domain.ChurnLogEntry
	for _, pair := range pairs {
		entries = append(entries, &domain.ChurnLogEntry{
			TsUTC:  tsUTC,
			Action: action,
			Reason: reason,
			Key:    domain.InstrumentKey{ChainID: "solana", PairAddress: pair},
		})
	}
	if err := store.InsertBatch(context.Background(), entries); err != nil {
		t.Fatalf("InsertBatch(%d) error = %v", tsUTC, err)
	}
}

func findCheck(t *testing.T, result *Result, name string) Check {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in %+v", name, result.Checks)
	return Check{}
}

func TestRunEmptyStore(t *testing.T) {
	checker := NewChecker(memory.NewAllowlistStore(), memory.NewChurnLogStore(), Thresholds{})
	result, err := checker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.AllPass {
		t.Error("empty store should fail health checks")
	}
}

func TestRunHealthyUniverse(t *testing.T) {
	allowlist := memory.NewAllowlistStore()
	churn := memory.NewChurnLogStore()

	seedSnapshot(t, allowlist, 1000, []string{"PairA", "PairB", "PairC"}, nil)
	seedChurn(t, churn, 1000, domain.ChurnActionAdd, domain.ChurnReasonNewListing, "PairA", "PairB", "PairC")
	seedSnapshot(t, allowlist, 2000, []string{"PairA", "PairB", "PairC"}, nil)

	checker := NewChecker(allowlist, churn, Thresholds{MaxChurnPct: 0.25})
	result, err := checker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.AllPass {
		t.Errorf("healthy universe should pass, got %+v", result.Checks)
	}
	if result.TsUTC != 2000 {
		t.Errorf("TsUTC = %d, want 2000", result.TsUTC)
	}
}

func TestRunChurnRateExceeded(t *testing.T) {
	allowlist := memory.NewAllowlistStore()
	churn := memory.NewChurnLogStore()

	seedSnapshot(t, allowlist, 1000, []string{"PairA", "PairB", "PairC", "PairD"}, nil)
	seedSnapshot(t, allowlist, 2000, []string{"PairA", "PairB", "PairE", "PairF"}, nil)
	seedChurn(t, churn, 2000, domain.ChurnActionRemove, domain.ChurnReasonDelisted, "PairC", "PairD")
	seedChurn(t, churn, 2000, domain.ChurnActionAdd, "", "PairE", "PairF")

	checker := NewChecker(allowlist, churn, Thresholds{MaxChurnPct: 0.25})
	result, err := checker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	check := findCheck(t, result, "Churn rate")
	if check.Pass {
		t.Errorf("4 changes on a 4-member universe should exceed 25%%: %+v", check)
	}
	if result.AllPass {
		t.Error("AllPass should be false")
	}
}

func TestRunSuppressedEntriesExcludedFromRate(t *testing.T) {
	allowlist := memory.NewAllowlistStore()
	churn := memory.NewChurnLogStore()

	seedSnapshot(t, allowlist, 1000, []string{"PairA", "PairB", "PairC", "PairD"}, nil)
	seedSnapshot(t, allowlist, 2000, []string{"PairA", "PairB", "PairC", "PairD"}, nil)
	seedChurn(t, churn, 2000, domain.ChurnActionRemove, domain.ChurnReasonPersistenceFail, "PairA", "PairB", "PairC")

	checker := NewChecker(allowlist, churn, Thresholds{MaxChurnPct: 0.25})
	result, err := checker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if check := findCheck(t, result, "Churn rate"); !check.Pass {
		t.Errorf("suppressed entries must not count toward the rate: %+v", check)
	}
	if check := findCheck(t, result, "Suppressed changes"); check.Pass {
		t.Errorf("suppression should be flagged: %+v", check)
	}
}

func TestRunHeldShare(t *testing.T) {
	allowlist := memory.NewAllowlistStore()
	churn := memory.NewChurnLogStore()

	seedSnapshot(t, allowlist, 1000, []string{"PairA"}, []string{"PairB", "PairC", "PairD"})

	checker := NewChecker(allowlist, churn, Thresholds{MaxHeldPct: 0.5})
	result, err := checker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if check := findCheck(t, result, "Held share"); check.Pass {
		t.Errorf("75%% held should fail a 50%% bound: %+v", check)
	}
}
