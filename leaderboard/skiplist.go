package leaderboard

import (
	"math/rand/v2"
	"sync"

	"goalconnect/core"
)

// SkipList is an indexable skip list ordered by score descending, then user
// ascending. Each forward link records how many entries it skips, which makes
// Rank and Page O(log n) as well as Update.
type SkipList struct {
	mu     sync.RWMutex
	head   *node
	lvl    int
	length int
	byUser map[core.UserID]*node
}

const (
	maxLevel = 16
	pFactor  = 0.25
)

type node struct {
	e    Entry
	next [maxLevel]*node
	// span[i] is the number of level-0 steps covered by next[i].
	span [maxLevel]int
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:   &node{},
		lvl:    1,
		byUser: map[core.UserID]*node{},
	}
}

func randomLevel() int {
	lvl := 1
	for lvl < maxLevel && rand.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func less(a, b Entry) bool {
	if a.Score == b.Score {
		return a.User < b.User
	}
	return a.Score > b.Score // higher score first
}

// Update inserts or moves user to a new score.
func (s *SkipList) Update(user core.UserID, score int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[user]; ok {
		if old.e.Score == score {
			return
		}
		s.deleteLocked(old)
	}
	s.insertLocked(Entry{User: user, Score: score, Level: core.DefaultLevel(score)})
}

func (s *SkipList) insertLocked(e Entry) {
	var (
		update [maxLevel]*node
		rank   [maxLevel]int
	)
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		if i < s.lvl-1 {
			rank[i] = rank[i+1]
		}
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			rank[i] += cur.span[i]
			cur = cur.next[i]
		}
		update[i] = cur
	}

	lvl := randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
			s.head.span[i] = s.length
		}
		s.lvl = lvl
	}

	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
		n.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = rank[0] - rank[i] + 1
	}
	for i := lvl; i < s.lvl; i++ {
		update[i].span[i]++
	}
	s.length++
	s.byUser[e.User] = n
}

func (s *SkipList) deleteLocked(target *node) {
	var update [maxLevel]*node
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, target.e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	if update[0].next[0] != target {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].span[i] += target.span[i] - 1
			update[i].next[i] = target.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
	s.length--
	delete(s.byUser, target.e.User)
}

func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byUser[user]; ok {
		s.deleteLocked(n)
	}
}

func (s *SkipList) TopN(n int) []Entry {
	return s.Page(0, n)
}

// Page returns up to limit entries starting after the first offset.
func (s *SkipList) Page(offset, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || offset < 0 || offset >= s.length {
		return nil
	}
	if rest := s.length - offset; limit > rest {
		limit = rest
	}
	out := make([]Entry, 0, limit)
	cur := s.nodeAtLocked(offset + 1)
	for rank := offset + 1; cur != nil && len(out) < limit; rank++ {
		e := cur.e
		e.Rank = rank
		out = append(out, e)
		cur = cur.next[0]
	}
	return out
}

// nodeAtLocked returns the node at 1-based rank r.
func (s *SkipList) nodeAtLocked(r int) *node {
	traversed := 0
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && traversed+cur.span[i] <= r {
			traversed += cur.span[i]
			cur = cur.next[i]
		}
		if traversed == r {
			return cur
		}
	}
	return nil
}

func (s *SkipList) Get(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byUser[user]
	if !ok {
		return Entry{}, false
	}
	e := n.e
	e.Rank = s.rankLocked(n)
	return e, true
}

func (s *SkipList) Rank(user core.UserID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byUser[user]
	if !ok {
		return 0, false
	}
	return s.rankLocked(n), true
}

func (s *SkipList) rankLocked(target *node) int {
	rank := 0
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && !less(target.e, cur.next[i].e) {
			rank += cur.span[i]
			cur = cur.next[i]
		}
		if cur == target {
			return rank
		}
	}
	return 0
}

// Len returns the number of users on the board.
func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length
}

var _ Board = (*SkipList)(nil)
