package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cli"
	"kakeibo/internal/export"
	gsheet "kakeibo/internal/export/google"
	mem "kakeibo/internal/export/memory"
	"kakeibo/internal/log"
	"kakeibo/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting kakeibo-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := cli.OpenStorage(ctx, logger, cfg)
	defer repo.Close()

	// Rows land in Google Sheets when configured, otherwise in an
	// in-memory store so AMQP-less deployments still drain the queue.
	var appender export.RowAppender
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets export initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		appender = mem.New()
		logger.Info("Google Sheets disabled, exporting to memory store")
	}

	syncWorker := worker.NewSyncWorker(repo, appender, cfg.SyncBatchSize)

	// Drain whatever was left pending before this process started.
	if err := syncWorker.ProcessPendingTransactions(ctx); err != nil {
		logger.Error("Startup sync sweep failed", "error", err)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			if err := amqpClient.ConsumeTransactionSync(ctx, syncWorker.HandleSyncMessage); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", "error", err)
				}
				stop()
			}
		}()
	} else {
		logger.Info("AMQP disabled, relying on periodic sweeps only")
	}

	// Periodic sweep catches transactions whose messages were lost.
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker shutdown complete")
			return
		case <-ticker.C:
			if err := syncWorker.ProcessPendingTransactions(ctx); err != nil {
				logger.Error("Periodic sync sweep failed", "error", err)
			}
		}
	}
}
