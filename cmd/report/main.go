// Package main prints universe health diagnostics: snapshot
// continuity, churn rate, hysteresis held share, and suppression
// status for the latest refresh.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"dex-universe-lab/internal/diag"
	chstore "dex-universe-lab/internal/storage/clickhouse"
	pgstore "dex-universe-lab/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	maxChurnPct := flag.Float64("max-churn-pct", 0.25, "Churn rate bound as a fraction of universe size")
	maxHeldPct := flag.Float64("max-held-pct", 0.5, "Bound on hysteresis-held share of the snapshot")
	historyGroups := flag.Int("history-groups", 5, "Recent refreshes inspected by the continuity check")
	flag.Parse()

	ctx := context.Background()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	checker := diag.NewChecker(
		pgstore.NewAllowlistStore(pool),
		pgstore.NewChurnLogStore(pool),
		diag.Thresholds{
			MaxChurnPct:   *maxChurnPct,
			MaxHeldPct:    *maxHeldPct,
			HistoryGroups: *historyGroups,
		},
	)

	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		checker = checker.WithHistory(chstore.NewChurnHistoryStore(conn))
	}

	result, err := checker.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running diagnostics: %v\n", err)
		os.Exit(1)
	}

	printResult(result)
	if !result.AllPass {
		os.Exit(1)
	}
}

func printResult(result *diag.Result) {
	fmt.Printf("Universe diagnostics (latest refresh ts_utc=%d)\n\n", result.TsUTC)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tTHRESHOLD\tACTUAL\tRESULT")
	for _, c := range result.Checks {
		status := "PASS"
		if !c.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Threshold, c.Actual, status)
	}
	w.Flush()

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}
