package core

// ActionKind names a user action the scoring engine understands. Kinds not
// listed here are scored as flat XP table entries of the same name.
type ActionKind string

const (
	ActionHabit            ActionKind = "habit"
	ActionTodo             ActionKind = "todo"
	ActionGoalMilestone    ActionKind = "goal.milestone"
	ActionGoalCompletion   ActionKind = "goal.completion"
	ActionAdventureLog     ActionKind = "adventure.log"
	ActionAdventureOutdoor ActionKind = "adventure.outdoor"
	ActionMedia            ActionKind = "media.complete"
	ActionStreak           ActionKind = "streak"
	ActionDailyBonus       ActionKind = "daily.bonus"
	ActionYearlyGoal       ActionKind = "yearly.goal"
)

// DefaultTier is used when a habit difficulty or goal priority is omitted.
const DefaultTier = "medium"

// ScoringRequest describes one user action. Streak length, cup levels and
// the completion flags are evaluated by the caller, who owns that state.
type ScoringRequest struct {
	Kind              ActionKind `json:"kind"`
	Difficulty        string     `json:"difficulty,omitempty"`
	Priority          string     `json:"priority,omitempty"`
	StreakLength      int        `json:"streak_length,omitempty"`
	MilestonesCrossed int        `json:"milestones_crossed,omitempty"`
	Cups              []int      `json:"cups,omitempty"`
	CupLevels         CupLevels  `json:"cup_levels,omitempty"`
	AllHabitsToday    bool       `json:"all_habits_today,omitempty"`
	GoalCompleted     bool       `json:"goal_completed,omitempty"`
}

// ScoringResult is the outcome of one action.
type ScoringResult struct {
	Delta        int64               `json:"delta"`
	Celebrations []CelebrationReason `json:"celebrations"`
	CupNeed      int                 `json:"cup_need"`
}

// Scorer turns actions into point deltas and celebration triggers. It holds
// only the read-only table, so one Scorer may be shared by any number of
// goroutines.
type Scorer struct {
	table *XPTable
}

// NewScorer returns a Scorer over table, or the default table when nil.
func NewScorer(table *XPTable) Scorer {
	if table == nil {
		table = DefaultXPTable()
	}
	return Scorer{table: table}
}

// Table exposes the scorer's XP table.
func (s Scorer) Table() *XPTable { return s.table }

// Score evaluates req. A *ConfigLookupError is returned for unknown kinds or
// sub-keys; there are no partial results.
func (s Scorer) Score(req ScoringRequest) (ScoringResult, error) {
	var (
		delta   int64
		reasons = []CelebrationReason{}
		add     = func(pts int64, reason CelebrationReason) {
			delta += pts
			if reason != "" {
				reasons = append(reasons, reason)
			}
		}
	)

	switch req.Kind {
	case ActionHabit:
		pts, err := s.table.PointsFor(KeyHabit, tier(req.Difficulty))
		if err != nil {
			return ScoringResult{}, err
		}
		add(pts, "")
		if req.AllHabitsToday {
			bonus, err := s.table.PointsFor(KeyDailyBonus, "")
			if err != nil {
				return ScoringResult{}, err
			}
			add(bonus, ReasonAllHabitsToday)
		}

	case ActionGoalMilestone:
		per, err := s.table.PointsFor(KeyGoalMilestone, "")
		if err != nil {
			return ScoringResult{}, err
		}
		crossed := int64(req.MilestonesCrossed)
		if crossed < 1 {
			crossed = 1
		}
		pts, err := s.table.Scale(KeyGoalPriorityMultiplier, tier(req.Priority), per*crossed)
		if err != nil {
			return ScoringResult{}, err
		}
		add(pts, "")
		if req.GoalCompleted {
			bonus, err := s.table.PointsFor(KeyGoalCompletionBonus, "")
			if err != nil {
				return ScoringResult{}, err
			}
			add(bonus, ReasonGoalCompleted)
		}

	case ActionGoalCompletion:
		// Completion is a flat reward; priority only scales milestone progress.
		bonus, err := s.table.PointsFor(KeyGoalCompletionBonus, "")
		if err != nil {
			return ScoringResult{}, err
		}
		add(bonus, ReasonGoalCompleted)

	case ActionStreak:
		bonus, hit, err := s.table.MilestoneBonus(KeyStreakMilestones, req.StreakLength)
		if err != nil {
			return ScoringResult{}, err
		}
		if hit {
			add(bonus, ReasonStreakMilestone)
		}

	case ActionDailyBonus:
		bonus, err := s.table.PointsFor(KeyDailyBonus, "")
		if err != nil {
			return ScoringResult{}, err
		}
		add(bonus, ReasonAllHabitsToday)

	case ActionYearlyGoal:
		pts, err := s.table.PointsFor(KeyYearlyGoal, "")
		if err != nil {
			return ScoringResult{}, err
		}
		add(pts, ReasonGoalCompleted)

	default:
		if req.Kind == "" {
			return ScoringResult{}, &ConfigLookupError{Reason: "action kind is required"}
		}
		pts, err := s.table.PointsFor(string(req.Kind), "")
		if err != nil {
			return ScoringResult{}, err
		}
		add(pts, "")
	}

	return ScoringResult{
		Delta:        delta,
		Celebrations: reasons,
		CupNeed:      CupScore(req.Cups, req.CupLevels),
	}, nil
}

func tier(s string) string {
	if s == "" {
		return DefaultTier
	}
	return s
}
