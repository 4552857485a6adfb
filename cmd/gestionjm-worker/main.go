package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gestionjm/internal/amqp"
	"gestionjm/internal/cli"
	"gestionjm/internal/config"
	"gestionjm/internal/log"
	"gestionjm/internal/sheets/google"
	"gestionjm/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting gestionjm-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration invalid", log.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	mirror, err := google.New(context.Background(), sheetsConfig(cfg),
		google.WithLogger(logger.WithComponent(log.ComponentSheets).Slog()))
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		_ = repo.Close()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		_ = repo.Close()
		os.Exit(1)
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
		if err := repo.Close(); err != nil {
			logger.Error("SQLite close error", log.FieldError, err)
		}
	}
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, cleanup)

	syncWorker := worker.NewSyncWorker(repo, mirror, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeRecordSync(gctx, syncWorker.HandleRecordSync)
	})
	g.Go(func() error {
		return resyncLoop(gctx, syncWorker, cfg.SyncInterval, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

func sheetsConfig(cfg *config.Config) google.Config {
	return google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		ExpensesSheet:   cfg.GoogleExpensesSheetName,
		TransfersSheet:  cfg.GoogleTransfersSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}
}

// resyncLoop rebuilds the mirror at startup and then every interval, which
// repairs anything a lost message left behind. Failures are logged and
// retried on the next tick.
func resyncLoop(ctx context.Context, w *worker.SyncWorker, interval time.Duration, logger *log.Logger) error {
	run := func() {
		if err := w.FullResync(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Full resync failed", log.FieldOperation, log.OpResync, log.FieldError, err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
