package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"goalconnect/core"
)

func newScoreCmd(root *rootOptions) *cobra.Command {
	var (
		req    core.ScoringRequest
		cups   []int
		levels []int
	)
	cmd := &cobra.Command{
		Use:   "score <kind>",
		Short: "Preview the XP an action earns",
		Example: `  goalconnect score habit --difficulty hard
  goalconnect score streak --streak 30
  goalconnect score goal.milestone --priority high --milestones 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := root.table()
			if err != nil {
				return err
			}
			req.Kind = core.ActionKind(args[0])
			req.Cups = cups
			if len(levels) > 0 {
				req.CupLevels = core.CupLevels(levels)
			}
			res, err := core.NewScorer(table).Score(req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if root.json {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "delta: %d\n", res.Delta)
			if len(res.Celebrations) > 0 {
				reasons := make([]string, len(res.Celebrations))
				for i, r := range res.Celebrations {
					reasons[i] = string(r)
				}
				fmt.Fprintf(out, "celebrations: %s\n", strings.Join(reasons, ", "))
			}
			if res.CupNeed != core.NoCupScore {
				fmt.Fprintf(out, "cup need: %d\n", res.CupNeed)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Difficulty, "difficulty", "", "habit difficulty (easy, medium, hard)")
	f.StringVar(&req.Priority, "priority", "", "goal priority (low, medium, high)")
	f.IntVar(&req.StreakLength, "streak", 0, "current streak length in days")
	f.IntVar(&req.MilestonesCrossed, "milestones", 1, "goal milestones crossed")
	f.BoolVar(&req.AllHabitsToday, "all-habits", false, "all habits are done for today")
	f.BoolVar(&req.GoalCompleted, "goal-completed", false, "the goal is now complete")
	f.IntSliceVar(&cups, "cups", nil, "cup indices the action fills (0=body ... 5=mastery)")
	f.IntSliceVar(&levels, "levels", nil, "current level of each of the six cups")
	return cmd
}
