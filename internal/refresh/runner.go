// Package refresh runs one universe refresh cycle end to end: score the
// snapshot, replay prior state, decide the next allowlist, and persist
// the result atomically.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/observability"
	"dex-universe-lab/internal/scoring"
	"dex-universe-lab/internal/snapshot"
	"dex-universe-lab/internal/storage"
	"dex-universe-lab/internal/universe"
)

// Options configures a Runner.
type Options struct {
	Allowlist storage.AllowlistStore
	Writer    storage.RefreshWriter

	// History is the optional analytics archive. Archive failures are
	// logged, not returned: the refresh itself already committed.
	History storage.ChurnHistoryStore

	ScoringPolicy  scoring.Policy
	UniversePolicy universe.Policy

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Result summarizes one completed refresh cycle.
type Result struct {
	TsUTC        int64
	UniverseSize int
	ChurnEntries int
	Tradable     int
	Suppressed   bool
}

// Runner executes refresh cycles against configured stores.
type Runner struct {
	opts Options
}

// NewRunner creates a Runner. Allowlist and Writer are required.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Allowlist == nil {
		return nil, fmt.Errorf("refresh: allowlist store is required")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("refresh: refresh writer is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	return &Runner{opts: opts}, nil
}

// Run executes one refresh cycle for the given snapshot.
func (r *Runner) Run(ctx context.Context, snap *snapshot.Snapshot) (*Result, error) {
	start := time.Now()
	logger := r.opts.Logger.With().Int64("ts_utc", snap.TsUTC).Logger()

	result, err := r.run(ctx, snap, logger)
	duration := time.Since(start).Seconds()
	r.opts.Metrics.RefreshDuration.Observe(duration)

	if err != nil {
		r.opts.Metrics.RefreshRunsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("refresh failed")
		return nil, err
	}

	outcome := "applied"
	if result.Suppressed {
		outcome = "suppressed"
		r.opts.Metrics.ChurnSuppressions.Inc()
	}
	r.opts.Metrics.RefreshRunsTotal.WithLabelValues(outcome).Inc()
	r.opts.Metrics.UniverseSize.Set(float64(result.UniverseSize))
	r.opts.Metrics.LastSuccessfulRefresh.SetToCurrentTime()

	logger.Info().
		Str("outcome", outcome).
		Int("universe_size", result.UniverseSize).
		Int("churn_entries", result.ChurnEntries).
		Int("tradable", result.Tradable).
		Dur("elapsed", time.Since(start)).
		Msg("refresh complete")
	return result, nil
}

func (r *Runner) run(ctx context.Context, snap *snapshot.Snapshot, logger zerolog.Logger) (*Result, error) {
	candidates := make([]domain.InstrumentCandidate, 0, len(snap.Candidates))
	for _, c := range snap.Candidates {
		candidates = append(candidates, *c)
	}

	scored, err := scoring.Score(candidates, r.opts.ScoringPolicy)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	tradable := 0
	for _, c := range scored {
		if c.Tradable {
			tradable++
		}
	}
	r.opts.Metrics.CandidatesEvaluated.Add(float64(len(scored)))
	r.opts.Metrics.TradableCandidates.Set(float64(tradable))

	state, err := r.loadState(ctx)
	if err != nil {
		return nil, err
	}

	decision := universe.Decide(state, scored, snap.TsUTC, r.opts.UniversePolicy)

	if err := r.opts.Writer.ApplyRefresh(ctx, decision.Allowlist, decision.Churn); err != nil {
		return nil, fmt.Errorf("persist refresh: %w", err)
	}
	for _, e := range decision.Churn {
		r.opts.Metrics.ChurnEventsTotal.WithLabelValues(e.Action, e.Reason).Inc()
	}

	if r.opts.History != nil && len(decision.Churn) > 0 {
		if err := r.opts.History.InsertBulk(ctx, decision.Churn); err != nil {
			logger.Warn().Err(err).Msg("churn archive write failed")
			r.opts.Metrics.DBQueryErrors.WithLabelValues("clickhouse", "churn_history_insert").Inc()
		}
	}

	return &Result{
		TsUTC:        snap.TsUTC,
		UniverseSize: len(decision.Allowlist),
		ChurnEntries: len(decision.Churn),
		Tradable:     tradable,
		Suppressed:   decision.Suppressed,
	}, nil
}

// loadState replays prior allowlist history into controller state. Reads
// enough refresh groups to cover the hysteresis window.
func (r *Runner) loadState(ctx context.Context) (*universe.PriorState, error) {
	groups := r.opts.UniversePolicy.MinPersistenceRefreshes + 1
	if groups < 2 {
		groups = 2
	}

	history, err := r.opts.Allowlist.LatestEntries(ctx, groups)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load allowlist history: %w", err)
	}

	known, err := r.opts.Allowlist.DistinctKeys(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load known keys: %w", err)
	}

	return universe.ReplayState(history, known), nil
}
