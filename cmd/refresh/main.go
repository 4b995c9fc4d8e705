// Package main runs one universe refresh cycle: load a market
// snapshot, score it, decide the next allowlist, and persist the
// result.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

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

func main() {
	// Load .env if present; system env vars win.
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional churn archive)")
	snapshotPath := flag.String("snapshot", "", "Path to market snapshot JSON file")
	useFixtures := flag.Bool("use-fixtures", false, "Use built-in demo snapshot instead of --snapshot")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", false, "Apply database migrations before running")

	minLiquidity := flag.Float64("min-liquidity-usd", 100_000, "Eligibility floor on pool liquidity")
	maxUniverse := flag.Int("max-universe-size", 0, "Cap on universe size, 0 for unbounded")
	minPersistence := flag.Int("min-persistence", 3, "Consecutive misses required before eviction")
	maxChurnPct := flag.Float64("max-churn-pct", 0.25, "Churn budget per refresh as a fraction of universe size, 0 disables")
	maxPositionPct := flag.Float64("max-position-pct", 0.01, "Max position size as a fraction of pool liquidity")
	maxSlippageBps := flag.Float64("max-slippage-bps", 50, "Estimated-slippage threshold for tradability")

	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := context.Background()

	if !*useFixtures && *snapshotPath == "" {
		logger.Fatal().Msg("--snapshot is required (or --use-fixtures for demo data)")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal().Msg("--postgres-dsn is required (or --use-memory for in-memory storage)")
	}

	var snap *snapshot.Snapshot
	if *useFixtures {
		snap = snapshot.Fixtures(time.Now().UnixMilli())
	} else {
		var err error
		snap, err = snapshot.LoadFile(*snapshotPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *snapshotPath).Msg("load snapshot")
		}
	}

	allowlist, writer, history, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, *migrate)
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

	result, err := runner.Run(ctx, snap)
	if err != nil {
		logger.Fatal().Err(err).Msg("refresh failed")
	}
	if result.Suppressed {
		logger.Warn().Int("proposed", result.ChurnEntries).Msg("churn budget exceeded, allowlist held")
	}
}

// createStores wires the storage layer for one refresh run.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory, migrate bool) (
	storage.AllowlistStore,
	storage.RefreshWriter,
	storage.ChurnHistoryStore,
	func(),
	error,
) {
	if useMemory {
		allowlist := memory.NewAllowlistStore()
		churn := memory.NewChurnLogStore()
		return allowlist, memory.NewRefreshWriter(allowlist, churn), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	cleanup := func() { pool.Close() }

	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		if clickhouseDSN != "" {
			if err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN); err != nil {
				pool.Close()
				return nil, nil, nil, nil, err
			}
		}
	}

	var history storage.ChurnHistoryStore
	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		history = chstore.NewChurnHistoryStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return pgstore.NewAllowlistStore(pool), pgstore.NewRefreshWriter(pool), history, cleanup, nil
}
