package engine

import (
	"context"

	"goalconnect/core"
)

// Storage abstracts persistence for gamification state. It owns every
// mutation; the scoring core never touches it.
type Storage interface {
	AddPoints(ctx context.Context, user core.UserID, metric core.Metric, delta int64) (newTotal int64, err error)
	AwardBadge(ctx context.Context, user core.UserID, badge core.Badge) error
	GetState(ctx context.Context, user core.UserID) (core.UserState, error)
	SetLevel(ctx context.Context, user core.UserID, metric core.Metric, level int64) error
	SetCupLevels(ctx context.Context, user core.UserID, levels core.CupLevels) error
	// Credit adds entry.Amount to metric and records entry in the ledger as
	// one operation: on error neither change is visible.
	Credit(ctx context.Context, metric core.Metric, entry core.LedgerEntry) (newTotal int64, err error)
	// Ledger returns the newest entries first; limit <= 0 returns all.
	Ledger(ctx context.Context, user core.UserID, limit int) ([]core.LedgerEntry, error)
}

// RuleEngine evaluates rules and emits derived events.
type RuleEngine interface {
	Evaluate(ctx context.Context, state core.UserState, trigger core.Event) []core.Event
}
