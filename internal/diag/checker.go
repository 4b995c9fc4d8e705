// Package diag inspects persisted universe history for thrash and
// allowlist health before operators trust a refresh.
package diag

import (
	"context"
	"errors"
	"fmt"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// Check represents one universe health criterion.
type Check struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Result contains all health checks for the latest refresh.
type Result struct {
	TsUTC   int64
	Checks  []Check
	AllPass bool
	Errors  []string
}

// Thresholds holds pass/fail bounds for the checker.
type Thresholds struct {
	// MaxChurnPct bounds churn-logged changes as a fraction of the prior
	// universe size, mirroring the controller budget.
	MaxChurnPct float64

	// MaxHeldPct bounds the share of hysteresis-held rows in the latest
	// snapshot. A high share means the universe is coasting on stale
	// eligibility.
	MaxHeldPct float64

	// HistoryGroups is how many recent refreshes the continuity check
	// inspects.
	HistoryGroups int
}

// Checker validates universe history against thresholds.
type Checker struct {
	allowlist  storage.AllowlistStore
	churn      storage.ChurnLogStore
	history    storage.ChurnHistoryStore
	thresholds Thresholds
}

// NewChecker creates a new universe health checker.
func NewChecker(allowlist storage.AllowlistStore, churn storage.ChurnLogStore, thresholds Thresholds) *Checker {
	if thresholds.HistoryGroups < 2 {
		thresholds.HistoryGroups = 5
	}
	return &Checker{
		allowlist:  allowlist,
		churn:      churn,
		thresholds: thresholds,
	}
}

// WithHistory adds the optional churn archive for long-horizon checks.
func (c *Checker) WithHistory(history storage.ChurnHistoryStore) *Checker {
	c.history = history
	return c
}

// Run performs all health checks against the latest refresh.
func (c *Checker) Run(ctx context.Context) (*Result, error) {
	latestTs, err := c.allowlist.LatestTimestamp(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return &Result{
			Checks: []Check{{
				Name:      "Allowlist present",
				Threshold: ">= 1 snapshot",
				Actual:    "no snapshots",
				Pass:      false,
			}},
			AllPass: false,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest timestamp: %w", err)
	}

	result := &Result{
		TsUTC:   latestTs,
		AllPass: true,
		Errors:  []string{},
	}

	groups, err := c.allowlist.LatestGroups(ctx, c.thresholds.HistoryGroups)
	if err != nil {
		return nil, fmt.Errorf("load refresh groups: %w", err)
	}

	entries, err := c.allowlist.GetByTimestamp(ctx, latestTs)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	buckets, err := c.churn.CountByActionReason(ctx, latestTs)
	if err != nil {
		return nil, fmt.Errorf("load churn histogram: %w", err)
	}

	result.add(c.checkContinuity(groups))
	result.add(c.checkChurnRate(buckets, groups))
	result.add(c.checkHeldShare(entries))
	result.add(c.checkSuppression(buckets))

	if c.history != nil {
		check, histErrors := c.checkArchiveHotspots(ctx, groups)
		result.add(check)
		result.Errors = append(result.Errors, histErrors...)
	}

	return result, nil
}

func (r *Result) add(check Check) {
	r.Checks = append(r.Checks, check)
	if !check.Pass {
		r.AllPass = false
	}
}

// checkContinuity: every recent refresh snapshot is non-empty.
func (c *Checker) checkContinuity(groups []*domain.RefreshGroup) Check {
	empty := 0
	for _, g := range groups {
		if g.Rows == 0 {
			empty++
		}
	}
	return Check{
		Name:      "Snapshot continuity",
		Threshold: "0 empty snapshots",
		Actual:    fmt.Sprintf("%d empty of %d recent", empty, len(groups)),
		Pass:      empty == 0,
	}
}

// checkChurnRate: applied churn at the latest refresh within the budget.
// Suppressed (persistence_fail) entries describe changes that were NOT
// applied, so they are excluded from the rate.
func (c *Checker) checkChurnRate(buckets []*domain.ChurnBucket, groups []*domain.RefreshGroup) Check {
	if c.thresholds.MaxChurnPct <= 0 {
		return Check{
			Name:      "Churn rate",
			Threshold: "unbounded",
			Actual:    "not enforced",
			Pass:      true,
		}
	}

	var applied int64
	for _, b := range buckets {
		if b.Reason != domain.ChurnReasonPersistenceFail {
			applied += b.Count
		}
	}

	// Rate is relative to the previous universe size; the first refresh
	// has no baseline.
	if len(groups) < 2 {
		return Check{
			Name:      "Churn rate",
			Threshold: fmt.Sprintf("<= %.0f%% of prior universe", c.thresholds.MaxChurnPct*100),
			Actual:    fmt.Sprintf("%d changes (first refresh, no baseline)", applied),
			Pass:      true,
		}
	}
	prior := groups[1].Rows
	if prior == 0 {
		return Check{
			Name:      "Churn rate",
			Threshold: fmt.Sprintf("<= %.0f%% of prior universe", c.thresholds.MaxChurnPct*100),
			Actual:    "prior snapshot empty",
			Pass:      applied == 0,
		}
	}

	rate := float64(applied) / float64(prior)
	return Check{
		Name:      "Churn rate",
		Threshold: fmt.Sprintf("<= %.0f%% of prior universe", c.thresholds.MaxChurnPct*100),
		Actual:    fmt.Sprintf("%.1f%% (%d changes / %d members)", rate*100, applied, prior),
		Pass:      rate <= c.thresholds.MaxChurnPct,
	}
}

// checkHeldShare: hysteresis-held rows stay a minority of the snapshot.
func (c *Checker) checkHeldShare(entries []*domain.AllowlistEntry) Check {
	maxHeld := c.thresholds.MaxHeldPct
	if maxHeld <= 0 {
		maxHeld = 0.5
	}

	if len(entries) == 0 {
		return Check{
			Name:      "Held share",
			Threshold: fmt.Sprintf("<= %.0f%%", maxHeld*100),
			Actual:    "empty snapshot",
			Pass:      true,
		}
	}

	held := 0
	for _, e := range entries {
		if e.Source == domain.SourceHeld {
			held++
		}
	}
	share := float64(held) / float64(len(entries))
	return Check{
		Name:      "Held share",
		Threshold: fmt.Sprintf("<= %.0f%%", maxHeld*100),
		Actual:    fmt.Sprintf("%.1f%% (%d of %d)", share*100, held, len(entries)),
		Pass:      share <= maxHeld,
	}
}

// checkSuppression: the latest refresh was not suppressed by the churn
// budget. Suppression is legal but repeated suppression starves the
// universe of updates; operators should know.
func (c *Checker) checkSuppression(buckets []*domain.ChurnBucket) Check {
	var suppressed int64
	for _, b := range buckets {
		if b.Reason == domain.ChurnReasonPersistenceFail {
			suppressed += b.Count
		}
	}
	return Check{
		Name:      "Suppressed changes",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", suppressed),
		Pass:      suppressed == 0,
	}
}

// checkArchiveHotspots reports the most-churned instruments across the
// recent history window from the analytics archive.
func (c *Checker) checkArchiveHotspots(ctx context.Context, groups []*domain.RefreshGroup) (Check, []string) {
	if len(groups) == 0 {
		return Check{
			Name:      "Churn hotspots",
			Threshold: "informational",
			Actual:    "no history",
			Pass:      true,
		}, nil
	}
	fromTs := groups[len(groups)-1].TsUTC

	counts, err := c.history.CountByInstrument(ctx, fromTs)
	if err != nil {
		return Check{
			Name:      "Churn hotspots",
			Threshold: "informational",
			Actual:    "archive unavailable",
			Pass:      true,
		}, []string{fmt.Sprintf("churn archive query failed: %v", err)}
	}

	hot := 0
	var hottest string
	for _, cnt := range counts {
		if cnt.Events >= int64(len(groups)) {
			hot++
			if hottest == "" {
				hottest = fmt.Sprintf("%s/%s (%d events)", cnt.Key.ChainID, cnt.Key.PairAddress, cnt.Events)
			}
		}
	}
	actual := fmt.Sprintf("%d instruments churning every refresh", hot)
	if hottest != "" {
		actual += ", worst " + hottest
	}
	return Check{
		Name:      "Churn hotspots",
		Threshold: "informational",
		Actual:    actual,
		Pass:      true,
	}, nil
}
