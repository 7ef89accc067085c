package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"goalconnect/config"
	"goalconnect/core"
)

type rootOptions struct {
	xpTable string
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "goalconnect",
		Short: "GoalConnect scoring tools",
		Long: `goalconnect evaluates the XP and cup rules used by the GoalConnect server.

All commands run locally against the built-in XP table or the file given
with --xp-table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.xpTable, "xp-table", "", "XP table file (.json, .yaml or .yml)")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON output")

	cmd.AddCommand(
		newScoreCmd(opts),
		newCupsCmd(opts),
		newXPCmd(opts),
		newStrengthCmd(opts),
	)
	return cmd
}

func (o *rootOptions) table() (*core.XPTable, error) {
	return config.LoadXPTable(o.xpTable)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
