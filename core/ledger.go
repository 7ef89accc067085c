package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one point transaction, kept for the points breakdown.
type LedgerEntry struct {
	ID          string     `json:"id" db:"id"`
	UserID      UserID     `json:"user_id" db:"user_id"`
	Kind        ActionKind `json:"kind" db:"kind"`
	Amount      int64      `json:"amount" db:"amount"`
	Description string     `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// NewLedgerEntry builds an entry for a scored action.
func NewLedgerEntry(user UserID, kind ActionKind, amount int64, reasons []CelebrationReason) LedgerEntry {
	desc := string(kind)
	if len(reasons) > 0 {
		desc = fmt.Sprintf("%s %v", kind, reasons)
	}
	return LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      user,
		Kind:        kind,
		Amount:      amount,
		Description: desc,
		CreatedAt:   time.Now().UTC(),
	}
}

// ValidateCupLevels requires exactly CupCount levels within [0, MaxCupLevel].
func ValidateCupLevels(levels CupLevels) error {
	if len(levels) != CupCount {
		return fmt.Errorf("expected %d cup levels, got %d", CupCount, len(levels))
	}
	for i, v := range levels {
		if v < 0 || v > MaxCupLevel {
			return fmt.Errorf("cup %s level %d out of range", Cup(i), v)
		}
	}
	return nil
}

// SumByKind totals ledger amounts per action kind.
func SumByKind(entries []LedgerEntry) map[ActionKind]int64 {
	out := map[ActionKind]int64{}
	for _, e := range entries {
		out[e.Kind] += e.Amount
	}
	return out
}

// ErrEmptyLedgerEntry is returned when an entry lacks a user or id.
var ErrEmptyLedgerEntry = errors.New("ledger entry requires id and user")

// Validate checks the fields every store relies on.
func (e LedgerEntry) Validate() error {
	if e.ID == "" || e.UserID == "" {
		return ErrEmptyLedgerEntry
	}
	return nil
}
