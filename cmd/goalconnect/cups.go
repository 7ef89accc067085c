package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"goalconnect/core"
)

func newCupsCmd(root *rootOptions) *cobra.Command {
	var levels []int
	cmd := &cobra.Command{
		Use:   "cups <index>...",
		Short: "Score how much the given cups need attention",
		Long: `Cups are numbered 0=body 1=adventure 2=novelty 3=soul 4=people 5=mastery.
Indices outside that range are ignored. A score of -1 means no valid cup.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]any, 0, len(args))
			for _, a := range args {
				if n, err := strconv.ParseFloat(a, 64); err == nil {
					raw = append(raw, n)
					continue
				}
				raw = append(raw, a)
			}
			cups := core.SanitizeCups(raw)
			lv := core.CupLevels(levels)
			if len(levels) > 0 {
				if err := core.ValidateCupLevels(lv); err != nil {
					return err
				}
			}
			score := core.CupScore(cups, lv)

			out := cmd.OutOrStdout()
			if root.json {
				return writeJSON(out, map[string]any{"cups": cups, "score": score})
			}
			for _, c := range cups {
				fmt.Fprintf(out, "%-10s level %d\n", core.Cup(c), lv.Level(c))
			}
			fmt.Fprintf(out, "score: %d\n", score)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&levels, "levels", nil, "current level of each of the six cups (default 3 each)")
	return cmd
}
