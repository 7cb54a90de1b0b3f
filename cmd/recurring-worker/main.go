package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cli"
	"kakeibo/internal/log"
	"kakeibo/internal/notify"
	"kakeibo/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := cli.OpenStorage(ctx, logger, cfg)
	defer repo.Close()

	var publisher services.SyncPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without sync messages", "error", err)
		} else {
			publisher = client
		}
	}

	ledger := services.NewLedgerService(repo, publisher)
	defer ledger.Close()

	var notifier services.TransactionNotifier
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, repo)
		if err != nil {
			logger.Warn("Failed to initialize Telegram notifier", "error", err)
		} else {
			notifier = tg
			logger.Info("Telegram notifications enabled")
		}
	}

	processor := services.NewRecurringProcessor(repo, ledger, notifier)

	logger.Info("Recurring transaction processor configured",
		"interval", cfg.RecurringInterval, "backend", cfg.StorageBackend)

	runOnce := func(now time.Time) {
		count, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", "error", err)
			return
		}
		if count > 0 {
			logger.Info("Recurring processing complete", "transactions_created", count)
		}
	}

	runOnce(time.Now())

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring-worker shutdown complete")
			return
		case now := <-ticker.C:
			runOnce(now)
		}
	}
}
