package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cofrinho/internal/cache"
	"cofrinho/internal/cli"
	"cofrinho/internal/config"
	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	apphttp "cofrinho/internal/http"
	applog "cofrinho/internal/log"
	"cofrinho/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)
	logger = cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	backend := cli.OpenStore(context.Background(), logger, cfg)
	loc := cfg.Location()

	recorder := diag.NewRecorder(cfg.DiagnosticsHistory)
	reporters := diag.Multi{diag.NewLogReporter(logger), recorder}

	var publisher services.LedgerPublisher
	amqpClient := cli.ConnectAMQP(logger, cfg)
	if amqpClient != nil {
		publisher = amqpClient
		reporters = append(reporters, amqpClient)
	}

	opts := services.Options{Location: loc, Reporter: reporters, Logger: logger}
	months := cache.NewLRUCache[[]core.Transaction](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(months)

	profiles := services.NewProfileService(backend.Store, cfg.SavingsGoal, opts)
	savings := services.NewSavingsRecorder(backend.Store, cfg.SavingsGoal, opts)
	txs := services.NewTransactionService(backend.Store, savings, publisher, months, opts)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Auth:               apphttp.AuthConfig{Secret: []byte(cfg.AuthJWTSecret), Issuer: cfg.AuthJWTIssuer},
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Location:           loc,
	}, apphttp.Services{
		Profiles:    profiles,
		Auditor:     services.NewStreakAuditor(backend.Store, opts),
		Txs:         txs,
		Dashboard:   services.NewDashboardService(profiles, txs, opts),
		Diagnostics: recorder,
		Ready:       backend.Store,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", applog.FieldError, err.Error())
			}
		}
		if err := backend.Cleanup(); err != nil {
			logger.Warn("Failed to close data backend", applog.FieldError, err.Error())
		}
	})
	caches.StartCleanup(ctx, 10*time.Minute)

	logger.Info("Starting cofrinho server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String(),
		applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
