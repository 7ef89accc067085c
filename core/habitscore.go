package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// habitDecay controls how fast strength decays; daily habits lose ~5% per miss.
const habitDecay = 13.0

// HabitStrength advances an exponentially decaying habit strength by one day.
// frequency is expected completions per day (1 = daily, 1/7 = weekly).
// The result stays in [0, 1) and approaches 1 with consistent completions.
func HabitStrength(frequency, previous float64, completed bool) (float64, error) {
	if frequency <= 0 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return 0, fmt.Errorf("invalid frequency %v: must be a positive finite number", frequency)
	}
	if math.IsNaN(previous) || math.IsInf(previous, 0) {
		return 0, fmt.Errorf("invalid previous score %v", previous)
	}
	previous = math.Max(0, math.Min(1, previous))

	multiplier := math.Pow(0.5, math.Sqrt(frequency)/habitDecay)
	score := previous * multiplier
	if completed {
		score += 1 - multiplier
	}
	return score, nil
}

// StrengthPoint is one day of habit strength history.
type StrengthPoint struct {
	Date      string  `json:"date"`
	Score     float64 `json:"score"`
	Completed bool    `json:"completed"`
}

// HabitStrengthHistory replays completions (keyed YYYY-MM-DD) from start to
// end inclusive, starting from zero strength.
func HabitStrengthHistory(frequency float64, completions map[string]bool, start, end time.Time) ([]StrengthPoint, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return nil, errors.New("start must not be after end")
	}
	var (
		out   []StrengthPoint
		score float64
		err   error
	)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		done := completions[key]
		score, err = HabitStrength(frequency, score, done)
		if err != nil {
			return nil, err
		}
		out = append(out, StrengthPoint{Date: key, Score: score, Completed: done})
	}
	return out, nil
}

// StrengthPercent converts a strength score to a rounded percentage.
func StrengthPercent(score float64) int {
	return int(roundHalfUp(score * 100))
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
