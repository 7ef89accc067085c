package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain events.
type EventType string

const (
	EventPointsAdded   EventType = "points_added"
	EventRewardClaimed EventType = "reward_claimed"
	EventLevelUp       EventType = "level_up"
	EventCelebration   EventType = "celebration"
)

// CelebrationReason tags why a celebration fired.
type CelebrationReason string

const (
	ReasonStreakMilestone CelebrationReason = "streak_milestone"
	ReasonGoalCompleted   CelebrationReason = "goal_completed"
	ReasonAllHabitsToday  CelebrationReason = "all_habits_today"
	ReasonLevelUp         CelebrationReason = "level_up"
	ReasonRewardClaimed   CelebrationReason = "reward_claimed"
)

// Valid reports whether r is one of the known reasons. The empty reason is
// the legacy "no reason given" celebration and is also accepted.
func (r CelebrationReason) Valid() bool {
	switch r {
	case "", ReasonStreakMilestone, ReasonGoalCompleted, ReasonAllHabitsToday, ReasonLevelUp, ReasonRewardClaimed:
		return true
	}
	return false
}

// Event represents an immutable domain event.
type Event struct {
	ID       string            `json:"id"`
	Type     EventType         `json:"type"`
	Time     time.Time         `json:"time"`
	UserID   UserID            `json:"user_id"`
	Metric   Metric            `json:"metric,omitempty"`
	Action   ActionKind        `json:"action,omitempty"`
	Delta    int64             `json:"delta,omitempty"`
	Total    int64             `json:"total,omitempty"`
	Badge    Badge             `json:"badge,omitempty"`
	Level    int64             `json:"level,omitempty"`
	Reason   CelebrationReason `json:"reason,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

func newEvent(typ EventType, user UserID) Event {
	return Event{ID: uuid.NewString(), Type: typ, Time: time.Now().UTC(), UserID: user}
}

func NewPointsAdded(user UserID, metric Metric, action ActionKind, delta int64, total int64) Event {
	ev := newEvent(EventPointsAdded, user)
	ev.Metric, ev.Action, ev.Delta, ev.Total = metric, action, delta, total
	return ev
}

func NewRewardClaimed(user UserID, badge Badge) Event {
	ev := newEvent(EventRewardClaimed, user)
	ev.Badge = badge
	return ev
}

func NewLevelUp(user UserID, metric Metric, level int64) Event {
	ev := newEvent(EventLevelUp, user)
	ev.Metric, ev.Level = metric, level
	return ev
}

// NewCelebration builds a celebration trigger for the dispatcher.
func NewCelebration(user UserID, reason CelebrationReason) Event {
	ev := newEvent(EventCelebration, user)
	ev.Reason = reason
	return ev
}
