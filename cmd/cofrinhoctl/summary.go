package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cofrinho/internal/core"
	"cofrinho/internal/services"
)

var (
	flagYear  int
	flagMonth int
)

var summaryCmd = &cobra.Command{
	Use:   "summary <uid>",
	Short: "Print the month dashboard of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().In(env.cfg.Location())
		year, month := flagYear, time.Month(flagMonth)
		if year == 0 {
			year = now.Year()
		}
		if month == 0 {
			month = now.Month()
		}

		view, err := env.dashboard.Month(cmd.Context(), args[0], year, month)
		if err != nil {
			return err
		}
		breakdown, err := env.dashboard.Breakdown(cmd.Context(), args[0], year, month)
		if err != nil {
			return err
		}
		return renderSummary(cmd.OutOrStdout(), view, breakdown)
	},
}

func init() {
	summaryCmd.Flags().IntVar(&flagYear, "year", 0, "Year, defaults to the current one")
	summaryCmd.Flags().IntVar(&flagMonth, "month", 0, "Month 1-12, defaults to the current one")
	rootCmd.AddCommand(summaryCmd)
}

func renderSummary(w io.Writer, view services.MonthView, breakdown []core.CategoryAmount) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Month\t%04d-%02d\n", view.Year, view.Month)
	fmt.Fprintf(tw, "Transactions\t%d\n", len(view.Transactions))
	fmt.Fprintf(tw, "Payable\t%s\n", core.FormatBRL(view.Summary.TotalPayable))
	fmt.Fprintf(tw, "Paid\t%s\n", core.FormatBRL(view.Summary.TotalPaid))
	fmt.Fprintf(tw, "Remaining\t%s\n", core.FormatBRL(view.Summary.RemainingBalance))
	fmt.Fprintf(tw, "Saved\t%s\n", core.FormatBRL(view.Summary.TotalSaved))
	if view.AllSettled {
		fmt.Fprintln(tw, "Status\tall settled")
	}
	if len(breakdown) > 0 {
		fmt.Fprintln(tw, "\nCATEGORY\tAMOUNT")
		for _, row := range breakdown {
			fmt.Fprintf(tw, "%s\t%s\n", row.Name, core.FormatBRL(row.Amount))
		}
	}
	return tw.Flush()
}
