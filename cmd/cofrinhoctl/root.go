package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cofrinho/internal/amqp"
	"cofrinho/internal/backend"
	"cofrinho/internal/cli"
	"cofrinho/internal/config"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
	"cofrinho/internal/services"
)

var (
	flagLogLevel string
	flagBackend  string
)

// app holds what the subcommands share once the root pre-run has opened it.
type app struct {
	cfg       *config.Config
	backend   *backend.BackendResult
	amqp      *amqp.Client
	profiles  *services.ProfileService
	savings   *services.SavingsRecorder
	auditor   *services.StreakAuditor
	txs       *services.TransactionService
	dashboard *services.DashboardService
	denied    *diag.Recorder
}

var env *app

var rootCmd = &cobra.Command{
	Use:   "cofrinhoctl",
	Short: "Administer cofrinho profiles and savings",
	Long:  "Inspect level tables, profiles and monthly summaries, run streak audits and record deposits.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Annotations["offline"] == "true" || cmd.Name() == "help" {
			return nil
		}
		return openApp(cmd.Context())
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		closeApp()
	},
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level written to stderr")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Override DATA_BACKEND (memory, sqlite, mongo)")
}

func openApp(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cli.LoadEnvFile()

	logCfg := applog.DefaultConfig()
	logCfg.Level = applog.ParseLevel(flagLogLevel)
	logCfg.Output = os.Stderr
	logger := applog.New(logCfg)
	applog.SetDefault(logger)

	if flagBackend != "" {
		os.Setenv("DATA_BACKEND", flagBackend)
	}
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)
	res := cli.OpenStore(ctx, logger, cfg)

	a := &app{cfg: cfg, backend: res, amqp: cli.ConnectAMQP(logger, cfg), denied: diag.NewRecorder(50)}
	opts := services.Options{
		Location: cfg.Location(),
		Reporter: diag.Multi{diag.NewLogReporter(logger), a.denied},
		Logger:   logger,
	}
	var publisher services.LedgerPublisher
	if a.amqp != nil {
		publisher = a.amqp
	}
	a.profiles = services.NewProfileService(res.Store, cfg.SavingsGoal, opts)
	a.savings = services.NewSavingsRecorder(res.Store, cfg.SavingsGoal, opts)
	a.auditor = services.NewStreakAuditor(res.Store, opts)
	a.txs = services.NewTransactionService(res.Store, a.savings, publisher, nil, opts)
	a.dashboard = services.NewDashboardService(a.profiles, a.txs, opts)
	env = a
	return nil
}

func closeApp() {
	if env == nil {
		return
	}
	if denied := env.denied.All(); len(denied) > 0 {
		_ = renderDenied(os.Stderr, denied)
	}
	if env.amqp != nil {
		env.amqp.Close()
	}
	if err := env.backend.Cleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "close backend: %v\n", err)
	}
	env = nil
}
