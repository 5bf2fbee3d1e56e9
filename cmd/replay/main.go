// Package main rebuilds ledger state from the audit event log. Events
// are replayed in sequence order into fresh in-memory stores and a
// summary of the rebuilt state is printed. Replays always start from
// the beginning of the log; claims can only be recomputed on top of the
// full history that preceded them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/replay"
	"weight-ledger/internal/storage"
	chstore "weight-ledger/internal/storage/clickhouse"
	"weight-ledger/internal/storage/memory"
)

// ReplayStats holds the rebuilt-state summary.
type ReplayStats struct {
	EventsApplied   int    `json:"events_applied"`
	SeriesRebuilt   int    `json:"series_rebuilt"`
	Positions       int    `json:"positions"`
	ActivePositions int    `json:"active_positions"`
	GlobalWeight    uint64 `json:"global_weight"`
}

func main() {
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (event log source)")
	toTime := flag.Int64("to", 0, "Replay events up to this Unix time inclusive (0 = entire log)")
	outputJSON := flag.Bool("json", false, "Output summary as JSON")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("interrupted, stopping replay")
		cancel()
	}()

	conn, err := chstore.NewConn(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatal("connect to clickhouse", zap.Error(err))
	}
	defer conn.Close()
	events := chstore.NewEventStore(conn)

	checkpoints := memory.NewCheckpointStore()
	positions := memory.NewPositionStore()

	rb := replay.New(replay.Options{
		Checkpoints: checkpoints,
		Positions:   positions,
		Payouts:     memory.NewPayoutStore(),
		Claims:      memory.NewClaimStore(),
		Logger:      logger,
	})
	runner := replay.NewRunner(events, logger)

	var applied int
	if *toTime > 0 {
		logger.Info("replaying log prefix", zap.Int64("to", *toTime))
		applied, err = runner.Run(ctx, 0, *toTime, rb)
	} else {
		logger.Info("replaying entire log")
		applied, err = runner.RunAll(ctx, rb)
	}
	if err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}

	stats, err := collectStats(ctx, applied, checkpoints, positions)
	if err != nil {
		logger.Fatal("summarize rebuilt state", zap.Error(err))
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("\n=== Replay Summary ===\n")
		fmt.Printf("Events Applied:  %d\n", stats.EventsApplied)
		fmt.Printf("Series Rebuilt:  %d\n", stats.SeriesRebuilt)
		fmt.Printf("Positions:       %d (%d active)\n", stats.Positions, stats.ActivePositions)
		fmt.Printf("Global Weight:   %d\n", stats.GlobalWeight)
	}
}

// collectStats summarizes the rebuilt stores.
func collectStats(ctx context.Context, applied int, checkpoints storage.CheckpointStore, positions storage.PositionStore) (*ReplayStats, error) {
	keys, err := checkpoints.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}

	list, err := positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	active := 0
	for _, p := range list {
		if p.Active() {
			active++
		}
	}

	global, err := checkpoints.Latest(ctx, domain.GlobalSeries())
	if err != nil {
		return nil, fmt.Errorf("read global weight: %w", err)
	}

	return &ReplayStats{
		EventsApplied:   applied,
		SeriesRebuilt:   len(keys),
		Positions:       len(list),
		ActivePositions: active,
		GlobalWeight:    global,
	}, nil
}
