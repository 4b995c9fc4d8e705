// Package main runs the universe service: scheduled refresh cycles
// plus an HTTP surface for health, status, diagnostics, and metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dex-universe-lab/internal/diag"
	"dex-universe-lab/internal/observability"
	"dex-universe-lab/internal/refresh"
	"dex-universe-lab/internal/scoring"
	"dex-universe-lab/internal/snapshot"
	"dex-universe-lab/internal/storage"
	chstore "dex-universe-lab/internal/storage/clickhouse"
	"dex-universe-lab/internal/storage/memory"
	"dex-universe-lab/internal/storage/migrations"
	pgstore "dex-universe-lab/internal/storage/postgres"
	"dex-universe-lab/internal/universe"
)

// Server schedules refresh cycles and serves diagnostics over HTTP.
type Server struct {
	runner       *refresh.Runner
	checker      *diag.Checker
	allowlist    storage.AllowlistStore
	churn        storage.ChurnLogStore
	snapshotPath string
	useFixtures  bool
	logger       zerolog.Logger

	mu          sync.Mutex
	running     bool
	started     time.Time
	lastRun     time.Time
	lastResult  *refresh.Result
	refreshRuns int
	lastError   string
}

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":8080", "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional churn archive)")
	snapshotPath := flag.String("snapshot", "", "Market snapshot JSON file, re-read every cycle")
	useFixtures := flag.Bool("use-fixtures", false, "Use built-in demo snapshots instead of --snapshot")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", false, "Apply database migrations on startup")
	schedule := flag.String("refresh-schedule", "@every 15m", "Cron schedule for refresh cycles")

	minLiquidity := flag.Float64("min-liquidity-usd", 100_000, "Eligibility floor on pool liquidity")
	maxUniverse := flag.Int("max-universe-size", 0, "Cap on universe size, 0 for unbounded")
	minPersistence := flag.Int("min-persistence", 3, "Consecutive misses required before eviction")
	maxChurnPct := flag.Float64("max-churn-pct", 0.25, "Churn budget per refresh as a fraction of universe size, 0 disables")
	maxPositionPct := flag.Float64("max-position-pct", 0.01, "Max position size as a fraction of pool liquidity")
	maxSlippageBps := flag.Float64("max-slippage-bps", 50, "Estimated-slippage threshold for tradability")

	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if !*useFixtures && *snapshotPath == "" {
		logger.Fatal().Msg("--snapshot is required (or --use-fixtures for demo data)")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal().Msg("--postgres-dsn is required (or --use-memory for in-memory storage)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allowlist, churnStore, writer, history, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, *migrate)
	if err != nil {
		logger.Fatal().Err(err).Msg("create stores")
	}
	defer cleanup()

	runner, err := refresh.NewRunner(refresh.Options{
		Allowlist: allowlist,
		Writer:    writer,
		History:   history,
		ScoringPolicy: scoring.Policy{
			MaxPositionLiquidityPct: *maxPositionPct,
			MaxSlippageBpsTradable:  *maxSlippageBps,
		},
		UniversePolicy: universe.Policy{
			MinLiquidityUSD:         *minLiquidity,
			MaxUniverseSize:         *maxUniverse,
			MinPersistenceRefreshes: *minPersistence,
			MaxChurnPct:             *maxChurnPct,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create runner")
	}

	checker := diag.NewChecker(allowlist, churnStore, diag.Thresholds{MaxChurnPct: *maxChurnPct})
	if history != nil {
		checker = checker.WithHistory(history)
	}

	server := &Server{
		runner:       runner,
		checker:      checker,
		allowlist:    allowlist,
		churn:        churnStore,
		snapshotPath: *snapshotPath,
		useFixtures:  *useFixtures,
		logger:       logger,
		started:      time.Now(),
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*schedule, func() { server.runRefresh(ctx) }); err != nil {
		logger.Fatal().Err(err).Str("schedule", *schedule).Msg("invalid refresh schedule")
	}

	// First cycle immediately; the scheduler handles the rest.
	server.runRefresh(ctx)
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{Addr: *addr, Handler: server.routes()}
	go func() {
		logger.Info().Str("addr", *addr).Str("schedule", *schedule).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}

// createStores wires the storage layer for the service.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory, migrate bool) (
	storage.AllowlistStore,
	storage.ChurnLogStore,
	storage.RefreshWriter,
	storage.ChurnHistoryStore,
	func(),
	error,
) {
	if useMemory {
		allowlist := memory.NewAllowlistStore()
		churn := memory.NewChurnLogStore()
		return allowlist, churn, memory.NewRefreshWriter(allowlist, churn), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	cleanup := func() { pool.Close() }

	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, nil, nil, err
		}
		if clickhouseDSN != "" {
			if err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN); err != nil {
				pool.Close()
				return nil, nil, nil, nil, nil, err
			}
		}
	}

	var history storage.ChurnHistoryStore
	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, nil, err
		}
		history = chstore.NewChurnHistoryStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return pgstore.NewAllowlistStore(pool), pgstore.NewChurnLogStore(pool), pgstore.NewRefreshWriter(pool), history, cleanup, nil
}

// runRefresh executes one refresh cycle, skipping if one is running.
func (s *Server) runRefresh(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("refresh already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.lastRun = time.Now()
		s.refreshRuns++
		s.mu.Unlock()
	}()

	snap, err := s.loadSnapshot()
	if err != nil {
		s.logger.Error().Err(err).Msg("load snapshot")
		s.setError(err)
		return
	}

	result, err := s.runner.Run(ctx, snap)
	if err != nil {
		s.setError(err)
		return
	}

	s.mu.Lock()
	s.lastResult = result
	s.lastError = ""
	s.mu.Unlock()
}

func (s *Server) loadSnapshot() (*snapshot.Snapshot, error) {
	if s.useFixtures {
		return snapshot.Fixtures(time.Now().UnixMilli()), nil
	}
	return snapshot.LoadFile(s.snapshotPath)
}

func (s *Server) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)
	r.Get("/diagnostics", s.handleDiagnostics)
	r.Get("/diagnostics/allowlist", s.handleAllowlist)
	r.Get("/diagnostics/churn", s.handleChurn)

	return r
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status      string          `json:"status"`
	Uptime      string          `json:"uptime"`
	RefreshRuns int             `json:"refresh_runs"`
	Running     bool            `json:"refresh_running"`
	LastRun     time.Time       `json:"last_run,omitempty"`
	LastResult  *refresh.Result `json:"last_result,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		RefreshRuns: s.refreshRuns,
		Running:     s.running,
		LastRun:     s.lastRun,
		LastResult:  s.lastResult,
		LastError:   s.lastError,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	result, err := s.checker.Run(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ts, err := s.allowlist.LatestTimestamp(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no snapshots", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries, err := s.allowlist.GetByTimestamp(ctx, ts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ts_utc": ts, "entries": entries})
}

func (s *Server) handleChurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ts, err := s.allowlist.LatestTimestamp(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no snapshots", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries, err := s.churn.GetByTimestamp(ctx, ts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	buckets, err := s.churn.CountByActionReason(ctx, ts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ts_utc": ts, "entries": entries, "histogram": buckets})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
