package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"goalconnect/core"
)

const dateLayout = "2006-01-02"

func newStrengthCmd(root *rootOptions) *cobra.Command {
	var (
		frequency float64
		from, to  string
		done      []string
	)
	cmd := &cobra.Command{
		Use:   "strength",
		Short: "Replay a habit's strength over a date range",
		Example: `  goalconnect strength --from 2024-03-01 --to 2024-03-07 --done 2024-03-01,2024-03-02
  goalconnect strength --frequency 0.142857 --from 2024-01-01 --to 2024-01-31 --done 2024-01-07`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := time.Parse(dateLayout, from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end := start
			if to != "" {
				if end, err = time.Parse(dateLayout, to); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}
			completions := make(map[string]bool, len(done))
			for _, d := range done {
				if _, err := time.Parse(dateLayout, d); err != nil {
					return fmt.Errorf("invalid --done date %q: %w", d, err)
				}
				completions[d] = true
			}
			history, err := core.HabitStrengthHistory(frequency, completions, start, end)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if root.json {
				return writeJSON(out, history)
			}
			for _, p := range history {
				mark := " "
				if p.Completed {
					mark = "x"
				}
				fmt.Fprintf(out, "%s [%s] %3d%%\n", p.Date, mark, core.StrengthPercent(p.Score))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&frequency, "frequency", 1, "expected completions per day (1 = daily)")
	f.StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&to, "to", "", "last day, YYYY-MM-DD (defaults to --from)")
	f.StringSliceVar(&done, "done", nil, "days the habit was completed")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
