package core

import (
	"encoding/json"
	"math"
)

// Cup is a wellness category.
type Cup int

const (
	CupBody Cup = iota
	CupAdventure
	CupNovelty
	CupSoul
	CupPeople
	CupMastery
)

const (
	// CupCount is the number of wellness cups.
	CupCount = 6
	// DefaultCupLevel is used for cups without a reported level.
	DefaultCupLevel = 3
	// MaxCupLevel is a completely full cup.
	MaxCupLevel = 5
	// NoCupScore is returned when no valid cup was supplied.
	NoCupScore = -1
)

var cupNames = [CupCount]string{"Body", "Adventure", "Novelty", "Soul", "People", "Mastery"}

func (c Cup) String() string {
	if c < 0 || int(c) >= CupCount {
		return "Unknown"
	}
	return cupNames[c]
}

// CupLevels holds self-reported fullness per cup, indexed by Cup.
// Slots beyond the slice length count as DefaultCupLevel.
type CupLevels []int

// DefaultCupLevels returns six cups at DefaultCupLevel.
func DefaultCupLevels() CupLevels {
	return CupLevels{DefaultCupLevel, DefaultCupLevel, DefaultCupLevel, DefaultCupLevel, DefaultCupLevel, DefaultCupLevel}
}

// Level returns the clamped level of cup i.
func (l CupLevels) Level(i int) int {
	if i < 0 || i >= len(l) {
		return DefaultCupLevel
	}
	v := l[i]
	if v < 0 {
		return 0
	}
	if v > MaxCupLevel {
		return MaxCupLevel
	}
	return v
}

// CupScore sums (MaxCupLevel - level) over the affected cups. Indices outside
// [0, CupCount) are dropped; if nothing remains the result is NoCupScore so
// callers can tell "nothing to score" from "no need".
func CupScore(cups []int, levels CupLevels) int {
	score, n := 0, 0
	for _, c := range cups {
		if c < 0 || c >= CupCount {
			continue
		}
		score += MaxCupLevel - levels.Level(c)
		n++
	}
	if n == 0 {
		return NoCupScore
	}
	return score
}

// SanitizeCups keeps the integral, in-range indices from loosely typed input
// such as decoded JSON. Anything else is dropped silently.
func SanitizeCups(raw []any) []int {
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		idx, ok := cupIndex(v)
		if !ok {
			continue
		}
		out = append(out, idx)
	}
	return out
}

func cupIndex(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || f != math.Trunc(f) || f < 0 || f >= CupCount {
		return 0, false
	}
	return int(f), true
}
