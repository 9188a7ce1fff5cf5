package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cofrinho/internal/core"
)

var profileCmd = &cobra.Command{
	Use:   "profile <uid>",
	Short: "Show the gamification state of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := env.profiles.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("profile %s: %w", args[0], core.ErrNotFound)
		}
		return renderProfile(cmd.OutOrStdout(), *p, time.Now())
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <uid>",
	Short: "Apply the missed-month streak penalty as a login would",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if env.auditor.AuditOnLogin(cmd.Context(), args[0]) {
			fmt.Fprintf(cmd.OutOrStdout(), "streak of %s reset after a missed month\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "no penalty for %s\n", args[0])
		}
		return nil
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit <uid> <amount>",
	Short: "Record a piggy-bank deposit dated today",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := core.ParseAmount(args[1])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		now := time.Now().In(env.cfg.Location())
		batch, err := env.txs.Add(cmd.Context(), args[0], core.TransactionInput{
			Description: "Cofrinho",
			Value:       value,
			Category:    core.CategorySavings,
			DueDate:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s as %s\n", core.FormatBRL(value), batch[0].ID)

		p, err := env.profiles.Get(cmd.Context(), args[0])
		if err != nil || p == nil {
			return err
		}
		return renderProfile(cmd.OutOrStdout(), *p, now)
	},
}

func init() {
	rootCmd.AddCommand(profileCmd, auditCmd, depositCmd)
}

func renderProfile(w io.Writer, p core.UserProfile, now time.Time) error {
	level := core.LevelInfo(p.Level)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "User\t%s (%s)\n", p.UID, p.Email)
	fmt.Fprintf(tw, "Level\t%d %s\n", level.Level, level.Name)
	if next, ok := core.NextLevel(p.Level); ok {
		fmt.Fprintf(tw, "XP\t%s / %s\n", humanize.Commaf(p.XP), humanize.Commaf(next.XPRequired))
	} else {
		fmt.Fprintf(tw, "XP\t%s\n", humanize.Commaf(p.XP))
	}
	fmt.Fprintf(tw, "Streak\t%d months\n", p.Streak)
	fmt.Fprintf(tw, "Piggy bank\t%s of %s (%s cycle)\n",
		core.FormatBRL(p.TotalSavings), core.FormatBRL(p.Goal()), humanize.Ordinal(p.SavingsCycle))
	last := "never"
	if p.LastSavingsDate.After(core.Epoch()) {
		last = humanize.RelTime(p.LastSavingsDate, now, "ago", "from now")
	}
	fmt.Fprintf(tw, "Last deposit\t%s\n", last)
	return tw.Flush()
}
