package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cofrinho/internal/amqp"
	"cofrinho/internal/cache"
	"cofrinho/internal/cli"
	"cofrinho/internal/config"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
	"cofrinho/internal/sheets"
	gsheet "cofrinho/internal/sheets/google"
	memsheet "cofrinho/internal/sheets/memory"
	"cofrinho/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)
	logger = cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	logger.Info("Starting cofrinho-worker", applog.FieldOperation, applog.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker", applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cli.AMQPConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeNetwork)
		os.Exit(1)
	}

	var ledger sheets.LedgerWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			Location:        cfg.Location(),
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
			amqpClient.Close()
			os.Exit(1)
		}
		ledger = client
		logger.Info("Google Sheets ledger enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		ledger = memsheet.New(cfg.Location())
		logger.Info("Google Sheets disabled, keeping the ledger in memory")
	}

	syncWorker := worker.NewSyncWorker(ledger, diag.NewLogReporter(logger), logger)
	caches := cache.NewManager(logger)
	caches.Register(syncWorker.Cache())

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		caches.Stop()
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", applog.FieldError, err.Error())
		}
	})
	caches.StartCleanup(ctx, 10*time.Minute)

	err = amqpClient.ConsumeMessages(ctx, syncWorker.HandleLedgerSync, syncWorker.HandleDiagnostic)
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		logger.Error("Message consumption failed", applog.FieldError, err.Error(),
			applog.FieldOperation, applog.OpConsume)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
