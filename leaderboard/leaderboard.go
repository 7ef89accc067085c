package leaderboard

import (
	"context"

	"goalconnect/core"
)

// Entry represents a score entry.
type Entry struct {
	User  core.UserID `json:"user_id"`
	Score int64       `json:"score"`
	Level int64       `json:"level"`
	// Rank is 1-based and only set on entries returned by a Board.
	Rank int `json:"rank,omitempty"`
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(user core.UserID, score int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Page(offset, limit int) []Entry
	Len() int
	Get(user core.UserID) (Entry, bool)
	// Rank is 1-based; false when the user is not on the board.
	Rank(user core.UserID) (int, bool)
}

// Tracker keeps a Board in sync with points_added events for one metric.
type Tracker struct {
	board  Board
	metric core.Metric
}

func NewTracker(board Board, metric core.Metric) *Tracker {
	return &Tracker{board: board, metric: metric}
}

// Board returns the tracked board.
func (t *Tracker) Board() Board { return t.board }

// HandleEvent updates the board from an event carrying a new total.
func (t *Tracker) HandleEvent(_ context.Context, ev core.Event) {
	if ev.Type != core.EventPointsAdded || ev.Metric != t.metric {
		return
	}
	t.board.Update(ev.UserID, ev.Total)
}

// Attach subscribes the tracker and returns the unsubscribe function.
func (t *Tracker) Attach(s interface {
	Subscribe(core.EventType, func(context.Context, core.Event)) func()
}) func() {
	return s.Subscribe(core.EventPointsAdded, t.HandleEvent)
}
