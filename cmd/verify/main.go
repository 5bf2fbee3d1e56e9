// Package main audits stored ledger state. It runs the structural
// invariant checks against the live stores and, unless skipped, a full
// replay of the audit event log cross-checked field by field against
// what the stores actually hold. Exits non-zero when any pass finds a
// divergence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	chstore "weight-ledger/internal/storage/clickhouse"
	pgstore "weight-ledger/internal/storage/postgres"
	"weight-ledger/internal/verification"
)

// passSummary is the outcome of one verification pass.
type passSummary struct {
	Name   string               `json:"name"`
	OK     bool                 `json:"ok"`
	Report *verification.Report `json:"report"`
}

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (event log)")
	currencies := flag.String("currencies", "", "Comma-separated currencies for payout sequence checks")
	claimants := flag.String("claimants", "", "Comma-separated claimants for per-claimant claim checks (needs --currencies)")
	skipReplay := flag.Bool("skip-replay", false, "Skip the event log replay cross-check")
	outputJSON := flag.Bool("json", false, "Output results as JSON")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if !*skipReplay && *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required unless --skip-replay is set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("interrupted, stopping verification")
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatal("connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	checkpoints := pgstore.NewCheckpointStore(pool)
	positions := pgstore.NewPositionStore(pool)
	payouts := pgstore.NewPayoutStore(pool)
	claims := pgstore.NewClaimStore(pool)

	checker := verification.NewChecker(verification.CheckerOptions{
		Checkpoints: checkpoints,
		Positions:   positions,
		Payouts:     payouts,
		Claims:      claims,
	})

	var passes []passSummary
	run := func(name string, report *verification.Report, err error) {
		if err != nil {
			logger.Fatal("verification pass failed", zap.String("pass", name), zap.Error(err))
		}
		passes = append(passes, passSummary{Name: name, OK: report.OK(), Report: report})
	}

	report, err := checker.Verify(ctx)
	run("structural", report, err)

	currencyList := splitList(*currencies)
	claimantList := splitList(*claimants)
	for _, currency := range currencyList {
		report, err := checker.VerifyPayouts(ctx, currency)
		run("payouts:"+currency, report, err)

		for _, claimant := range claimantList {
			report, err := checker.VerifyClaims(ctx, currency, claimant)
			run("claims:"+currency+":"+claimant, report, err)
		}
	}

	if !*skipReplay {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatal("connect to clickhouse", zap.Error(err))
		}
		defer conn.Close()

		verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
			Events:      chstore.NewEventStore(conn),
			Checkpoints: checkpoints,
			Positions:   positions,
			Payouts:     payouts,
			Claims:      claims,
			Logger:      logger,
		})
		report, err := verifier.VerifyAll(ctx)
		run("replay", report, err)
	}

	allOK := printSummary(passes, *outputJSON)
	if !allOK {
		os.Exit(1)
	}
}

// printSummary writes all pass results to stdout and reports whether
// every pass was clean.
func printSummary(passes []passSummary, asJSON bool) bool {
	allOK := true
	for _, p := range passes {
		if !p.OK {
			allOK = false
		}
	}

	if asJSON {
		output, _ := json.MarshalIndent(passes, "", "  ")
		fmt.Println(string(output))
		return allOK
	}

	fmt.Printf("\n=== Verification Summary ===\n")
	for _, p := range passes {
		r := p.Report
		status := "OK"
		if !p.OK {
			status = fmt.Sprintf("FAILED (%d divergences)", len(r.Divergences))
		}
		fmt.Printf("%-12s %s  series=%d positions=%d payouts=%d claims=%d\n",
			p.Name, status, r.SeriesChecked, r.PositionsChecked, r.PayoutsChecked, r.ClaimsChecked)
		for _, d := range r.Divergences {
			fmt.Printf("  %s %s: expected %v, actual %v\n", d.Subject, d.Field, d.Expected, d.Actual)
		}
	}
	return allOK
}

// splitList splits a comma-separated flag value, dropping empty parts.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
