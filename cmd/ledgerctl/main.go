// Command ledgerctl is the operator tool for the settlement core. It settles
// payments, compensates ledger transactions, verifies receivable event chains
// and lists pending outbox rows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/application/idempotency"
	ledgerapp "github.com/anticipa/backend/internal/application/ledger"
	receivableapp "github.com/anticipa/backend/internal/application/receivable"
	"github.com/anticipa/backend/internal/application/settlement"
	"github.com/anticipa/backend/internal/infrastructure/cache"
	"github.com/anticipa/backend/internal/infrastructure/config"
	"github.com/anticipa/backend/internal/infrastructure/logger"
	"github.com/anticipa/backend/internal/infrastructure/persistence"
	"github.com/anticipa/backend/internal/infrastructure/storage"
	"github.com/anticipa/backend/internal/infrastructure/telemetry"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}
	if _, ok := commands[command]; !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries command output, so logs go to stderr unless configured to a file
	logCfg := cfg.Log
	if logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	log, err := logger.NewFromConfig(logCfg, cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := wire(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", zap.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	if err := commands[command](ctx, app, args, os.Stdout); err != nil {
		log.Error("Command failed", zap.String("command", command), zap.Error(err))
		cleanup()
		os.Exit(1)
	}
}

// application holds the services the commands drive
type application struct {
	settlements *settlement.Service
	ledger      *ledgerapp.Service
	receivables *receivableapp.Service
	db          *gorm.DB
}

func wire(ctx context.Context, cfg *config.Config, log *zap.Logger) (*application, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry), log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("tracer provider: %w", err)
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfigFrom(cfg.Telemetry), log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("meter provider: %w", err)
	}
	closers = append(closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Meter provider shutdown failed", zap.Error(err))
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Tracer provider shutdown failed", zap.Error(err))
		}
	})

	metrics, err := telemetry.NewSettlementMetrics(mp.Meter("anticipa/settlement"), log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("settlement metrics: %w", err)
	}

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithZapLogger(log, logger.MapGormLogLevel(cfg.Log.Level)),
		persistence.WithTracing(telemetry.DBTracingConfigFrom(cfg.Telemetry)),
	)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() {
		if err := db.Close(); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
	})

	protocolOpts := []idempotency.Option{
		idempotency.WithFailureLog(persistence.NewSessionTenantAuditRepository(db.DB)),
		idempotency.WithDuplicateDetector(persistence.IsUniqueViolation),
		idempotency.WithMetrics(metrics),
		idempotency.WithLogger(log),
	}
	hints, err := cache.NewHintStoreFactory(cfg.Idempotency, cfg.Redis, cache.WithLogger(log)).CreateStore()
	if err != nil {
		return nil, cleanup, err
	}
	if hints != nil {
		closers = append(closers, func() { _ = hints.Close() })
		protocolOpts = append(protocolOpts, idempotency.WithHintStore(hints, cfg.Idempotency.HintTTL))
	}

	scope := db.TransactionScope()
	protocol := idempotency.NewProtocol(scope, protocolOpts...)

	receivableOpts := []receivableapp.Option{receivableapp.WithLogger(log)}
	if cfg.Storage.Enabled {
		store, err := storage.NewS3DocumentStore(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return nil, cleanup, err
		}
		receivableOpts = append(receivableOpts, receivableapp.WithDocumentStore(store))
	}

	return &application{
		settlements: settlement.NewService(protocol, settlement.WithMetrics(metrics), settlement.WithLogger(log)),
		ledger: ledgerapp.NewService(scope,
			ledgerapp.WithDuplicateDetector(persistence.IsUniqueViolation),
			ledgerapp.WithMetrics(metrics),
			ledgerapp.WithLogger(log),
		),
		receivables: receivableapp.NewService(protocol, scope, receivableOpts...),
		db:          db.DB,
	}, cleanup, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `ledgerctl - settlement core operator tool

Usage:
  ledgerctl <command> [flags]

Commands:
  settle          Apply a payment to a receivable
  compensate      Post the reversal of a ledger transaction
  verify-chain    Recompute a receivable's event hash chain
  outbox-pending  List outbox rows waiting for dispatch
  show-txn        Print a ledger transaction with its entries

Run 'ledgerctl <command> -h' for the flags of a command.

Configuration is read from config.toml and ANTICIPA_* environment variables.`)
}
