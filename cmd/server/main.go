// Package main runs the weight ledger service: the HTTP API, the
// websocket event feed and the periodic epoch checkpoint loop, over
// PostgreSQL and ClickHouse or fully in memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"weight-ledger/internal/audit"
	"weight-ledger/internal/chain"
	"weight-ledger/internal/config"
	"weight-ledger/internal/dividend"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/epoch"
	"weight-ledger/internal/httpapi"
	"weight-ledger/internal/ledger"
	"weight-ledger/internal/replay"
	"weight-ledger/internal/storage"
	chstore "weight-ledger/internal/storage/clickhouse"
	"weight-ledger/internal/storage/journal"
	"weight-ledger/internal/storage/memory"
	pgstore "weight-ledger/internal/storage/postgres"
	"weight-ledger/internal/wsfeed"
)

// Server holds the wired components of the ledger process.
type Server struct {
	cfg     *config.Config
	epochs  *epoch.Checkpointer
	hub     *wsfeed.Hub
	handler http.Handler
	logger  *zap.Logger
}

// allStores holds all storage implementations.
type allStores struct {
	checkpointStore storage.CheckpointStore
	positionStore   storage.PositionStore
	payoutStore     storage.PayoutStore
	claimStore      storage.ClaimStore
	epochStore      storage.EpochStore
	eventStore      storage.EventStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "Path to YAML config file (optional, env vars cover the rest)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	jnl, err := journal.New(cfg.JournalDir)
	if err != nil {
		logger.Fatal("open journal", zap.Error(err))
	}
	defer jnl.Close()

	if cfg.UseMemory {
		if err := recoverFromJournal(ctx, jnl, stores, logger); err != nil {
			logger.Fatal("recover state from journal", zap.Error(err))
		}
	}

	var hub *wsfeed.Hub
	var sinks []audit.Sink
	if cfg.Feed.Enabled {
		hub = wsfeed.New(wsfeed.Options{SendBuffer: cfg.Feed.SendBuffer, Logger: logger})
		sinks = append(sinks, hub)
	}

	emitter, err := audit.NewEmitter(ctx, stores.eventStore, jnl, logger, sinks...)
	if err != nil {
		logger.Fatal("create emitter", zap.Error(err))
	}

	chainClient := chain.NewClient(cfg.Chain.Endpoint,
		chain.WithTimeout(cfg.Chain.Timeout()),
		chain.WithMaxRetries(cfg.Chain.MaxRetries))

	lgr := ledger.New(ledger.Options{
		Checkpoints: stores.checkpointStore,
		Positions:   stores.positionStore,
		Registry:    chainClient,
		Balances:    chainClient,
		Emitter:     emitter,
		Logger:      logger,
	})

	engine := dividend.New(dividend.Options{
		Checkpoints:    stores.checkpointStore,
		Positions:      stores.positionStore,
		Payouts:        stores.payoutStore,
		Claims:         stores.claimStore,
		Fees:           chainClient,
		Payer:          chainClient,
		Interval:       cfg.Epoch.IntervalSec,
		Gate:           lgr.Gate(),
		NativeCurrency: cfg.Dividend.NativeCurrency,
		Emitter:        emitter,
		Logger:         logger,
	})

	epochs := epoch.New(epoch.Options{
		Epochs:     stores.epochStore,
		Registry:   chainClient,
		Emission:   chainClient,
		Dividends:  engine,
		SelfID:     cfg.Epoch.SelfID,
		Controller: cfg.Epoch.Controller,
		Interval:   cfg.Epoch.IntervalSec,
		MaxSteps:   cfg.Epoch.MaxSteps,
		Emitter:    emitter,
		Logger:     logger,
	})

	// A registry interval that differs from the configured one would put
	// checkpoints and payouts on the wrong boundaries.
	if onchain, err := chainClient.Interval(ctx); err != nil {
		logger.Warn("registry interval check failed", zap.Error(err))
	} else if onchain != cfg.Epoch.IntervalSec {
		logger.Warn("configured interval differs from registry",
			zap.Int64("configured", cfg.Epoch.IntervalSec),
			zap.Int64("registry", onchain))
	}

	apiOpts := httpapi.Options{
		Ledger:    lgr,
		Dividends: engine,
		Epochs:    epochs,
		Logger:    logger,
	}
	if hub != nil {
		apiOpts.Feed = hub
	}
	api := httpapi.New(apiOpts)

	server := &Server{
		cfg:     cfg,
		epochs:  epochs,
		hub:     hub,
		handler: api.Router(),
		logger:  logger,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = server.Run(ctx)
	done <- err

	if err != nil && err != context.Canceled {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// Run serves the HTTP API and drives the checkpoint loop until the
// context is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go s.checkpointLoop(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	if s.hub != nil {
		s.hub.Close()
	}
	return runErr
}

// checkpointLoop advances distribution periods in the background so
// settlements and weight reads see fresh epoch state without an
// explicit checkpoint call.
func (s *Server) checkpointLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Epoch.CheckpointEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.epochs.Checkpoint(ctx)
			if err != nil {
				s.logger.Error("periodic checkpoint failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("distribution periods advanced", zap.Int("periods", n))
			}
		}
	}
}

// recoverFromJournal rebuilds in-memory state by replaying the journaled
// event stream. Durable deployments skip this; their stores survive
// restarts. Epoch machine state is not rebuilt, the checkpointer
// re-initializes from the registry on its first run.
func recoverFromJournal(ctx context.Context, jnl *journal.Journal, stores *allStores, logger *zap.Logger) error {
	rb := replay.New(replay.Options{
		Checkpoints: stores.checkpointStore,
		Positions:   stores.positionStore,
		Payouts:     stores.payoutStore,
		Claims:      stores.claimStore,
		Logger:      logger,
	})

	err := jnl.Replay(func(e *domain.Event) error {
		if err := stores.eventStore.Insert(ctx, e); err != nil {
			return fmt.Errorf("restore event %d: %w", e.Seq, err)
		}
		return rb.Apply(ctx, e)
	})
	if err != nil {
		return err
	}

	if n := rb.Applied(); n > 0 {
		logger.Info("recovered in-memory state from journal", zap.Int("events", n))
	}
	return nil
}

// createStores creates all required stores.
func createStores(ctx context.Context, cfg *config.Config) (*allStores, func(), error) {
	if cfg.UseMemory {
		stores := &allStores{
			checkpointStore: memory.NewCheckpointStore(),
			positionStore:   memory.NewPositionStore(),
			payoutStore:     memory.NewPayoutStore(),
			claimStore:      memory.NewClaimStore(),
			epochStore:      memory.NewEpochStore(),
			eventStore:      memory.NewEventStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// ClickHouse
	chConn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		// PostgreSQL stores (ledger state)
		checkpointStore: pgstore.NewCheckpointStore(pool),
		positionStore:   pgstore.NewPositionStore(pool),
		payoutStore:     pgstore.NewPayoutStore(pool),
		claimStore:      pgstore.NewClaimStore(pool),
		epochStore:      pgstore.NewEpochStore(pool),

		// ClickHouse store (audit log)
		eventStore: chstore.NewEventStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
