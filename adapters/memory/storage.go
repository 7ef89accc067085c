package memory

import (
	"context"
	"sync"
	"time"

	"goalconnect/core"
)

// DefaultLedgerSize caps each user's in-memory ledger.
const DefaultLedgerSize = 1000

// Store is a concurrent in-memory Storage implementation.
type Store struct {
	users     sync.Map // map[core.UserID]*userRecord
	ledgerCap int
}

type userRecord struct {
	mu     sync.Mutex
	state  core.UserState
	ledger []core.LedgerEntry // oldest first
}

func New() *Store { return &Store{ledgerCap: DefaultLedgerSize} }

func (s *Store) record(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	actual, _ := s.users.LoadOrStore(user, &userRecord{state: core.NewUserState(user)})
	return actual.(*userRecord)
}

// update runs fn under the user's lock and stamps the state when fn succeeds.
func (s *Store) update(user core.UserID, fn func(*core.UserState) error) error {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := fn(&rec.state); err != nil {
		return err
	}
	rec.state.Updated = time.Now().UTC()
	return nil
}

func (s *Store) AddPoints(_ context.Context, user core.UserID, metric core.Metric, delta int64) (int64, error) {
	var total int64
	err := s.update(user, func(st *core.UserState) error {
		next, err := core.AddSafe(st.Points[metric], delta)
		if err != nil {
			return err
		}
		st.Points[metric] = next
		total = next
		return nil
	})
	return total, err
}

func (s *Store) AwardBadge(_ context.Context, user core.UserID, badge core.Badge) error {
	return s.update(user, func(st *core.UserState) error {
		st.Badges[badge] = struct{}{}
		return nil
	})
}

func (s *Store) SetLevel(_ context.Context, user core.UserID, metric core.Metric, level int64) error {
	return s.update(user, func(st *core.UserState) error {
		st.Levels[metric] = level
		return nil
	})
}

func (s *Store) SetCupLevels(_ context.Context, user core.UserID, levels core.CupLevels) error {
	return s.update(user, func(st *core.UserState) error {
		st.Cups = append(core.CupLevels(nil), levels...)
		return nil
	})
}

func (s *Store) GetState(_ context.Context, user core.UserID) (core.UserState, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

// Credit adds entry.Amount to metric and records entry under one lock,
// dropping the oldest ledger entries beyond the cap.
func (s *Store) Credit(_ context.Context, metric core.Metric, entry core.LedgerEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	rec := s.record(entry.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next, err := core.AddSafe(rec.state.Points[metric], entry.Amount)
	if err != nil {
		return 0, err
	}
	rec.state.Points[metric] = next
	rec.state.Updated = time.Now().UTC()
	rec.ledger = append(rec.ledger, entry)
	if s.ledgerCap > 0 && len(rec.ledger) > s.ledgerCap {
		rec.ledger = append(rec.ledger[:0:0], rec.ledger[len(rec.ledger)-s.ledgerCap:]...)
	}
	return next, nil
}

func (s *Store) Ledger(_ context.Context, user core.UserID, limit int) ([]core.LedgerEntry, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := len(rec.ledger)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.LedgerEntry, 0, n)
	for i := len(rec.ledger) - 1; len(out) < n; i-- {
		out = append(out, rec.ledger[i])
	}
	return out, nil
}

var _ interface {
	AddPoints(context.Context, core.UserID, core.Metric, int64) (int64, error)
	AwardBadge(context.Context, core.UserID, core.Badge) error
	GetState(context.Context, core.UserID) (core.UserState, error)
	SetLevel(context.Context, core.UserID, core.Metric, int64) error
	SetCupLevels(context.Context, core.UserID, core.CupLevels) error
	Credit(context.Context, core.Metric, core.LedgerEntry) (int64, error)
	Ledger(context.Context, core.UserID, int) ([]core.LedgerEntry, error)
} = (*Store)(nil)
