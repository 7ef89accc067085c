package core

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// XP table keys.
const (
	KeyHabit                  = "habit"
	KeyTodo                   = "todo"
	KeyGoalMilestone          = "goal.milestone"
	KeyGoalPriorityMultiplier = "goal.priorityMultiplier"
	KeyGoalCompletionBonus    = "goal.completionBonus"
	KeyAdventureLog           = "adventure.log"
	KeyAdventureOutdoor       = "adventure.outdoor"
	KeyMediaComplete          = "media.complete"
	KeyStreakMilestones       = "streak.milestones"
	KeyDailyBonus             = "daily.bonus"
	KeyYearlyGoal             = "yearly.goal"
)

// XPEntry is a single XP table value. It is one of Flat, Tiered, Rate or Milestones.
type XPEntry interface{ xpEntry() }

// Flat is a fixed point value with no sub-key.
type Flat int64

// Tiered maps a sub-key such as a difficulty to points.
type Tiered map[string]int64

// Rate maps a sub-key such as a priority to a multiplier applied to a base amount.
type Rate map[string]float64

// Milestones maps exact thresholds (streak days) to a bonus.
type Milestones map[int]int64

func (Flat) xpEntry()       {}
func (Tiered) xpEntry()     {}
func (Rate) xpEntry()       {}
func (Milestones) xpEntry() {}

// XPTable is the read-only point configuration. Built once at startup and
// safe for concurrent reads without synchronization.
type XPTable struct {
	entries map[string]XPEntry
}

// NewXPTable validates and copies entries into a table.
func NewXPTable(entries map[string]XPEntry) (*XPTable, error) {
	t := &XPTable{entries: make(map[string]XPEntry, len(entries))}
	for kind, e := range entries {
		if kind == "" {
			return nil, errors.New("xp config: empty kind")
		}
		switch v := e.(type) {
		case Flat:
			if v < 0 {
				return nil, fmt.Errorf("xp config: %s is negative", kind)
			}
			t.entries[kind] = v
		case Tiered:
			cp := make(Tiered, len(v))
			for k, pts := range v {
				if pts < 0 {
					return nil, fmt.Errorf("xp config: %s/%s is negative", kind, k)
				}
				cp[k] = pts
			}
			t.entries[kind] = cp
		case Rate:
			cp := make(Rate, len(v))
			for k, f := range v {
				if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
					return nil, fmt.Errorf("xp config: %s/%s must be a finite non-negative rate", kind, k)
				}
				cp[k] = f
			}
			t.entries[kind] = cp
		case Milestones:
			cp := make(Milestones, len(v))
			for day, pts := range v {
				if day <= 0 || pts < 0 {
					return nil, fmt.Errorf("xp config: %s/%d must have a positive threshold and non-negative bonus", kind, day)
				}
				cp[day] = pts
			}
			t.entries[kind] = cp
		default:
			return nil, fmt.Errorf("xp config: %s has unsupported entry type %T", kind, e)
		}
	}
	return t, nil
}

// DefaultXPTable returns the built-in point values.
func DefaultXPTable() *XPTable {
	t, err := NewXPTable(map[string]XPEntry{
		KeyHabit:                  Tiered{"easy": 5, "medium": 10, "hard": 15},
		KeyTodo:                   Flat(10),
		KeyGoalMilestone:          Flat(5),
		KeyGoalPriorityMultiplier: Rate{"high": 1.5, "medium": 1.0, "low": 0.75},
		KeyGoalCompletionBonus:    Flat(50),
		KeyAdventureLog:           Flat(10),
		KeyAdventureOutdoor:       Flat(25),
		KeyMediaComplete:          Flat(10),
		KeyStreakMilestones:       Milestones{7: 50, 30: 150, 100: 500},
		KeyDailyBonus:             Flat(20),
		KeyYearlyGoal:             Flat(100),
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Entry returns the raw entry for kind.
func (t *XPTable) Entry(kind string) (XPEntry, bool) {
	e, ok := t.entries[kind]
	return e, ok
}

// Kinds lists configured kinds in sorted order.
func (t *XPTable) Kinds() []string {
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PointsFor returns the configured integer for kind and optional subKey.
// Flat entries take no sub-key, Tiered entries require one, and Milestones
// entries take the threshold as a decimal sub-key.
func (t *XPTable) PointsFor(kind, subKey string) (int64, error) {
	e, ok := t.entries[kind]
	if !ok {
		return 0, &ConfigLookupError{Kind: kind, SubKey: subKey}
	}
	switch v := e.(type) {
	case Flat:
		if subKey != "" {
			return 0, &ConfigLookupError{Kind: kind, SubKey: subKey, Reason: "flat entry takes no sub-key"}
		}
		return int64(v), nil
	case Tiered:
		pts, ok := v[subKey]
		if !ok {
			return 0, &ConfigLookupError{Kind: kind, SubKey: subKey}
		}
		return pts, nil
	case Milestones:
		day, err := strconv.Atoi(subKey)
		if err != nil {
			return 0, &ConfigLookupError{Kind: kind, SubKey: subKey, Reason: "milestone sub-key must be an integer"}
		}
		pts, ok := v[day]
		if !ok {
			return 0, &ConfigLookupError{Kind: kind, SubKey: subKey}
		}
		return pts, nil
	default:
		return 0, &ConfigLookupError{Kind: kind, SubKey: subKey, Reason: "rate entry requires a base amount"}
	}
}

// Scale applies the rate stored at kind/subKey to base, rounding half up.
func (t *XPTable) Scale(kind, subKey string, base int64) (int64, error) {
	e, ok := t.entries[kind]
	if !ok {
		return 0, &ConfigLookupError{Kind: kind, SubKey: subKey}
	}
	r, ok := e.(Rate)
	if !ok {
		return 0, &ConfigLookupError{Kind: kind, SubKey: subKey, Reason: "not a rate entry"}
	}
	f, ok := r[subKey]
	if !ok {
		return 0, &ConfigLookupError{Kind: kind, SubKey: subKey}
	}
	return roundHalfUp(float64(base) * f), nil
}

// MilestoneBonus reports the bonus for an exact threshold. Non-members
// return (0, false, nil); a kind that is missing or not a milestone table
// is a lookup error.
func (t *XPTable) MilestoneBonus(kind string, length int) (int64, bool, error) {
	e, ok := t.entries[kind]
	if !ok {
		return 0, false, &ConfigLookupError{Kind: kind}
	}
	m, ok := e.(Milestones)
	if !ok {
		return 0, false, &ConfigLookupError{Kind: kind, Reason: "not a milestone entry"}
	}
	pts, ok := m[length]
	return pts, ok, nil
}

func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// XPSpec is the file/wire shape of an XP table, one section per entry variant.
type XPSpec struct {
	Flat       map[string]int64              `json:"flat,omitempty" yaml:"flat,omitempty"`
	Tiered     map[string]map[string]int64   `json:"tiered,omitempty" yaml:"tiered,omitempty"`
	Rates      map[string]map[string]float64 `json:"rates,omitempty" yaml:"rates,omitempty"`
	Milestones map[string]map[int]int64      `json:"milestones,omitempty" yaml:"milestones,omitempty"`
}

// Table builds an XPTable. A kind may appear in only one section.
func (s XPSpec) Table() (*XPTable, error) {
	entries := map[string]XPEntry{}
	add := func(kind string, e XPEntry) error {
		if _, dup := entries[kind]; dup {
			return fmt.Errorf("xp config: %s declared more than once", kind)
		}
		entries[kind] = e
		return nil
	}
	for k, v := range s.Flat {
		if err := add(k, Flat(v)); err != nil {
			return nil, err
		}
	}
	for k, v := range s.Tiered {
		if err := add(k, Tiered(v)); err != nil {
			return nil, err
		}
	}
	for k, v := range s.Rates {
		if err := add(k, Rate(v)); err != nil {
			return nil, err
		}
	}
	for k, v := range s.Milestones {
		if err := add(k, Milestones(v)); err != nil {
			return nil, err
		}
	}
	return NewXPTable(entries)
}

// Spec exports the table in its file shape.
func (t *XPTable) Spec() XPSpec {
	s := XPSpec{
		Flat:       map[string]int64{},
		Tiered:     map[string]map[string]int64{},
		Rates:      map[string]map[string]float64{},
		Milestones: map[string]map[int]int64{},
	}
	for kind, e := range t.entries {
		switch v := e.(type) {
		case Flat:
			s.Flat[kind] = int64(v)
		case Tiered:
			m := make(map[string]int64, len(v))
			for k, p := range v {
				m[k] = p
			}
			s.Tiered[kind] = m
		case Rate:
			m := make(map[string]float64, len(v))
			for k, f := range v {
				m[k] = f
			}
			s.Rates[kind] = m
		case Milestones:
			m := make(map[int]int64, len(v))
			for k, p := range v {
				m[k] = p
			}
			s.Milestones[kind] = m
		}
	}
	return s
}
