package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/ai"
	"kakeibo/internal/amqp"
	"kakeibo/internal/auth"
	"kakeibo/internal/cli"
	apphttp "kakeibo/internal/http"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := cli.OpenStorage(ctx, logger, cfg)
	defer repo.Close()

	// The AMQP publisher is optional. Without it transactions are still
	// persisted and the worker picks them up by polling sync status.
	var publisher services.SyncPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without sync messages", "error", err)
		} else {
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled, transactions sync by polling only")
	}

	ledger := services.NewLedgerService(repo, publisher)
	defer ledger.Close()

	authSvc := auth.NewService(repo, cfg.SessionTTL)

	opts := apphttp.Options{}
	if cfg.OpenAIAPIKey != "" {
		opts.Suggester = ai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		logger.Info("Category suggestion enabled", "model", cfg.OpenAIModel)
	}

	srv := apphttp.NewServer(":"+cfg.Port, repo, ledger, authSvc, opts)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Starting kakeibo server", "port", cfg.Port, "backend", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if err := authSvc.CleanupExpiredSessions(groupCtx); err != nil {
					logger.Error("Session cleanup failed", "error", err)
				}
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
