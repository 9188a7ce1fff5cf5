package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cofrinho/internal/core"
)

var flagAllLevels bool

var levelsCmd = &cobra.Command{
	Use:         "levels",
	Short:       "Print the level table",
	Annotations: map[string]string{"offline": "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		levels := core.Levels
		if !flagAllLevels {
			levels = levels[:10]
		}
		return renderLevels(cmd.OutOrStdout(), levels)
	},
}

func init() {
	levelsCmd.Flags().BoolVar(&flagAllLevels, "all", false, "Print all levels instead of the named ones")
	rootCmd.AddCommand(levelsCmd)
}

func renderLevels(w io.Writer, levels []core.Level) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tNAME\tXP")
	for _, l := range levels {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", l.Level, l.Name, humanize.Commaf(l.XPRequired))
	}
	return tw.Flush()
}
