package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"goalconnect/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func weekKey(t time.Time) string {
	y, w := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := dayKey(e.Time)
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// Metrics aggregates engagement counters from engine events.
type Metrics struct {
	mu  sync.RWMutex
	now func() time.Time

	daily        *DAU
	weeklyActive map[string]map[core.UserID]struct{}

	pointsByDay    map[string]int64
	pointsByAction map[core.ActionKind]int64

	rewardsClaimed     map[core.Badge]int64
	levelDistribution  map[int64]int
	celebrationsByKind map[core.CelebrationReason]int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		now:                time.Now,
		daily:              NewDAU(),
		weeklyActive:       map[string]map[core.UserID]struct{}{},
		pointsByDay:        map[string]int64{},
		pointsByAction:     map[core.ActionKind]int64{},
		rewardsClaimed:     map[core.Badge]int64{},
		levelDistribution:  map[int64]int{},
		celebrationsByKind: map[core.CelebrationReason]int64{},
	}
}

func (m *Metrics) OnEvent(e core.Event) {
	m.daily.OnEvent(e)
	m.mu.Lock()
	defer m.mu.Unlock()

	week := weekKey(e.Time)
	if m.weeklyActive[week] == nil {
		m.weeklyActive[week] = map[core.UserID]struct{}{}
	}
	m.weeklyActive[week][e.UserID] = struct{}{}

	switch e.Type {
	case core.EventPointsAdded:
		if e.Delta > 0 {
			m.pointsByDay[dayKey(e.Time)] += e.Delta
			action := e.Action
			if action == "" {
				action = "manual"
			}
			m.pointsByAction[action] += e.Delta
		}
	case core.EventLevelUp:
		m.levelDistribution[e.Level]++
	case core.EventRewardClaimed:
		m.rewardsClaimed[e.Badge]++
	case core.EventCelebration:
		m.celebrationsByKind[e.Reason]++
	}
}

// DailyActiveUsers counts users with any event on day (YYYY-MM-DD, UTC).
func (m *Metrics) DailyActiveUsers(day string) int { return m.daily.Count(day) }

func (m *Metrics) WeeklyActiveUsers(t time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActive[weekKey(t)])
}

func (m *Metrics) PointsOnDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByDay[day]
}

func (m *Metrics) PointsByAction(kind core.ActionKind) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByAction[kind]
}

// ActionTotal is one row of the points-by-action breakdown.
type ActionTotal struct {
	Kind   core.ActionKind `json:"kind"`
	Points int64           `json:"points"`
}

// Snapshot is a JSON-friendly copy of the counters.
type Snapshot struct {
	ActiveToday        int                              `json:"active_today"`
	ActiveThisWeek     int                              `json:"active_this_week"`
	PointsByAction     []ActionTotal                    `json:"points_by_action"`
	RewardsClaimed     map[core.Badge]int64             `json:"rewards_claimed"`
	LevelDistribution  map[int64]int                    `json:"level_distribution"`
	CelebrationsByKind map[core.CelebrationReason]int64 `json:"celebrations"`
}

// Snapshot returns the counters with actions sorted by points descending.
func (m *Metrics) Snapshot() Snapshot {
	now := m.now()
	today := m.daily.Count(dayKey(now))
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		ActiveToday:        today,
		ActiveThisWeek:     len(m.weeklyActive[weekKey(now)]),
		PointsByAction:     make([]ActionTotal, 0, len(m.pointsByAction)),
		RewardsClaimed:     make(map[core.Badge]int64, len(m.rewardsClaimed)),
		LevelDistribution:  make(map[int64]int, len(m.levelDistribution)),
		CelebrationsByKind: make(map[core.CelebrationReason]int64, len(m.celebrationsByKind)),
	}
	for k, v := range m.pointsByAction {
		s.PointsByAction = append(s.PointsByAction, ActionTotal{Kind: k, Points: v})
	}
	sort.Slice(s.PointsByAction, func(i, j int) bool {
		a, b := s.PointsByAction[i], s.PointsByAction[j]
		if a.Points == b.Points {
			return a.Kind < b.Kind
		}
		return a.Points > b.Points
	})
	for k, v := range m.rewardsClaimed {
		s.RewardsClaimed[k] = v
	}
	for k, v := range m.levelDistribution {
		s.LevelDistribution[k] = v
	}
	for k, v := range m.celebrationsByKind {
		s.CelebrationsByKind[k] = v
	}
	return s
}
