package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a user.
type UserID string

// Metric represents a points counter namespace such as XP or spendable POINTS.
type Metric string

const (
	MetricXP     Metric = "xp"
	MetricPoints Metric = "points"
)

// Badge identifies an unlocked reward such as a background or costume.
type Badge string

// UserState is an immutable snapshot of a user's gamification state.
// Implementations should return deep copies to maintain immutability guarantees.
type UserState struct {
	UserID  UserID             `json:"user_id"`
	Points  map[Metric]int64   `json:"points"`
	Badges  map[Badge]struct{} `json:"badges"`
	Levels  map[Metric]int64   `json:"levels"`
	Cups    CupLevels          `json:"cups"`
	Updated time.Time          `json:"updated"`
}

// NewUserState returns an empty state for user.
func NewUserState(user UserID) UserState {
	return UserState{
		UserID:  user,
		Points:  map[Metric]int64{},
		Badges:  map[Badge]struct{}{},
		Levels:  map[Metric]int64{},
		Cups:    DefaultCupLevels(),
		Updated: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the state to uphold immutability.
func (s UserState) Clone() UserState {
	cp := UserState{
		UserID:  s.UserID,
		Points:  make(map[Metric]int64, len(s.Points)),
		Badges:  make(map[Badge]struct{}, len(s.Badges)),
		Levels:  make(map[Metric]int64, len(s.Levels)),
		Cups:    append(CupLevels(nil), s.Cups...),
		Updated: s.Updated,
	}
	for k, v := range s.Points {
		cp.Points[k] = v
	}
	for k := range s.Badges {
		cp.Badges[k] = struct{}{}
	}
	for k, v := range s.Levels {
		cp.Levels[k] = v
	}
	return cp
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// MaxUserIDLength bounds a normalized user id.
const MaxUserIDLength = 128

// ErrInvalidUserID reports a user id outside [a-z0-9._@-].
var ErrInvalidUserID = errors.New("invalid user id")

// NormalizeUserID trims and lowercases user identifiers and restricts them to
// letters, digits and . _ @ -. Storage keys are built from the result.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.ToLower(strings.TrimSpace(string(id)))
	if s == "" {
		return "", errors.New("empty user id")
	}
	if len(s) > MaxUserIDLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidUserID, MaxUserIDLength)
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '@' || r == '-' {
			continue
		}
		return "", fmt.Errorf("%w: unexpected %q", ErrInvalidUserID, r)
	}
	return UserID(s), nil
}

// ValidateBadgeID ensures non-empty badge id with simple charset check.
func ValidateBadgeID(b Badge) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return errors.New("empty badge id")
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid badge id")
	}
	return nil
}

// DefaultLevel computes a level from total XP using a sublinear curve.
// level = floor(sqrt(xp)/10) + 1, ensuring at least 1.
func DefaultLevel(totalXP int64) int64 {
	if totalXP <= 0 {
		return 1
	}
	lvl := int64(math.Floor(math.Sqrt(float64(totalXP))/10.0)) + 1
	if lvl < 1 {
		return 1
	}
	return lvl
}

// LevelThreshold is the total XP at which level starts.
func LevelThreshold(level int64) int64 {
	if level <= 1 {
		return 0
	}
	n := level - 1
	return 100 * n * n
}

// LevelProgress describes how far a user is into their current level.
type LevelProgress struct {
	Level                int64 `json:"level"`
	TotalXP              int64 `json:"total_xp"`
	XPInCurrentLevel     int64 `json:"xp_in_current_level"`
	XPNeededForNextLevel int64 `json:"xp_needed_for_next_level"`
}

// Progress reports the level and in-level progress for a total.
func Progress(totalXP int64) LevelProgress {
	lvl := DefaultLevel(totalXP)
	start := LevelThreshold(lvl)
	in := totalXP - start
	if in < 0 {
		in = 0
	}
	return LevelProgress{
		Level:                lvl,
		TotalXP:              totalXP,
		XPInCurrentLevel:     in,
		XPNeededForNextLevel: LevelThreshold(lvl+1) - start,
	}
}
