package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cofrinho/internal/config"
	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	"cofrinho/internal/storage"
)

type status struct {
	Backend     string
	StoreErr    error
	Latency     time.Duration
	AMQP        bool
	Schema      string
	SavingsGoal float64
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the configured backend and broker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st := checkStatus(cmd.Context(), env.cfg, env.backend.Store, env.amqp != nil)
		if err := renderStatus(cmd.OutOrStdout(), st); err != nil {
			return err
		}
		if st.StoreErr != nil {
			return fmt.Errorf("store unreachable: %w", st.StoreErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func checkStatus(ctx context.Context, cfg *config.Config, p pinger, broker bool) status {
	if ctx == nil {
		ctx = context.Background()
	}
	st := status{Backend: cfg.DataBackend, AMQP: broker, SavingsGoal: cfg.SavingsGoal, Schema: "-"}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	st.StoreErr = p.Ping(pingCtx)
	st.Latency = time.Since(start)

	if cfg.DataBackend == "sqlite" {
		version, dirty, ok, err := storage.SchemaVersion(cfg.SQLiteDBPath)
		switch {
		case err != nil:
			st.Schema = "error: " + err.Error()
		case !ok:
			st.Schema = "not migrated"
		case dirty:
			st.Schema = fmt.Sprintf("v%d (dirty)", version)
		default:
			st.Schema = fmt.Sprintf("v%d", version)
		}
	}
	return st
}

func renderStatus(w io.Writer, st status) error {
	store := "ok (" + st.Latency.Round(time.Millisecond).String() + ")"
	if st.StoreErr != nil {
		store = "unreachable: " + st.StoreErr.Error()
	}
	broker := "not configured"
	if st.AMQP {
		broker = "connected"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Backend:\t%s\n", st.Backend)
	fmt.Fprintf(tw, "Store:\t%s\n", store)
	fmt.Fprintf(tw, "Schema:\t%s\n", st.Schema)
	fmt.Fprintf(tw, "Broker:\t%s\n", broker)
	fmt.Fprintf(tw, "Savings goal:\t%s\n", core.FormatBRL(st.SavingsGoal))
	return tw.Flush()
}

// renderDenied lists the store requests refused while a command ran.
func renderDenied(w io.Writer, denied []diag.PermissionError) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DENIED\tOPERATION\tUSER\tWHEN")
	for _, e := range denied {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Path, e.Operation, e.UserID, humanize.Time(e.At))
	}
	return tw.Flush()
}
