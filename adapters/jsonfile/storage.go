package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"goalconnect/core"
)

// MaxLedgerEntries caps the per-user ledger kept in the file.
const MaxLedgerEntries = 500

// Store persists users and their point ledgers to a single JSON file.
// Suitable for a personal deployment.
type Store struct {
	path string
	mu   sync.Mutex
	data fileData
}

type fileData struct {
	Users  map[core.UserID]core.UserState     `json:"users"`
	Ledger map[core.UserID][]core.LedgerEntry `json:"ledger"` // oldest first
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: fileData{
		Users:  map[core.UserID]core.UserState{},
		Ledger: map[core.UserID][]core.LedgerEntry{},
	}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw fileData
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw.Users {
		s.data.Users[k] = v
	}
	for k, v := range raw.Ledger {
		s.data.Ledger[k] = v
	}
	return nil
}

// persist writes through a temp file so a crash never leaves a torn file.
func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) get(user core.UserID) core.UserState {
	if st, ok := s.data.Users[user]; ok {
		return st
	}
	return core.NewUserState(user)
}

// change applies fn to copies of the user's state and ledger. The copies
// replace the originals only once the file write succeeds.
func (s *Store) change(user core.UserID, fn func(st *core.UserState, ledger *[]core.LedgerEntry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevState, hadState := s.data.Users[user]
	prevLedger, hadLedger := s.data.Ledger[user]

	st := s.get(user).Clone()
	ledger := prevLedger[:len(prevLedger):len(prevLedger)]
	if err := fn(&st, &ledger); err != nil {
		return err
	}
	st.Updated = time.Now().UTC()
	s.data.Users[user] = st
	if len(ledger) > 0 {
		s.data.Ledger[user] = ledger
	}

	if err := s.persist(); err != nil {
		if hadState {
			s.data.Users[user] = prevState
		} else {
			delete(s.data.Users, user)
		}
		if hadLedger {
			s.data.Ledger[user] = prevLedger
		} else {
			delete(s.data.Ledger, user)
		}
		return err
	}
	return nil
}

func (s *Store) update(user core.UserID, fn func(*core.UserState) error) error {
	return s.change(user, func(st *core.UserState, _ *[]core.LedgerEntry) error { return fn(st) })
}

func (s *Store) AddPoints(_ context.Context, user core.UserID, metric core.Metric, delta int64) (int64, error) {
	var next int64
	err := s.update(user, func(st *core.UserState) error {
		v, err := core.AddSafe(st.Points[metric], delta)
		if err != nil {
			return err
		}
		st.Points[metric] = v
		next = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Credit adds entry.Amount to metric and appends entry in one file write.
func (s *Store) Credit(_ context.Context, metric core.Metric, entry core.LedgerEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	var next int64
	err := s.change(entry.UserID, func(st *core.UserState, ledger *[]core.LedgerEntry) error {
		v, err := core.AddSafe(st.Points[metric], entry.Amount)
		if err != nil {
			return err
		}
		st.Points[metric] = v
		next = v
		entries := append(*ledger, entry)
		if len(entries) > MaxLedgerEntries {
			entries = entries[len(entries)-MaxLedgerEntries:]
		}
		*ledger = entries
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
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
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(user)
	return st.Clone(), nil
}

func (s *Store) Ledger(_ context.Context, user core.UserID, limit int) ([]core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.data.Ledger[user]
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.LedgerEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}
