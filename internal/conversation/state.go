package conversation

import (
	"sort"
	"sync"
	"time"

	"habitbot/internal/clock"
)

// state is one step of an owner's dialog.
type state interface{ step() string }

type idle struct{}

type awaitHabitTitle struct{}

type awaitDeadlineTitle struct{}

type awaitDeadlineDate struct{ title string }

type awaitDeadlineTime struct {
	title string
	date  time.Time
}

type awaitMarkDone struct{}

type awaitDelete struct{}

type awaitIntervalItem struct{}

type awaitInterval struct {
	itemID int64
	title  string
}

func (idle) step() string               { return "idle" }
func (awaitHabitTitle) step() string    { return "await_habit_title" }
func (awaitDeadlineTitle) step() string { return "await_deadline_title" }
func (awaitDeadlineDate) step() string  { return "await_deadline_date" }
func (awaitDeadlineTime) step() string  { return "await_deadline_time" }
func (awaitMarkDone) step() string      { return "await_mark_done" }
func (awaitDelete) step() string        { return "await_delete" }
func (awaitIntervalItem) step() string  { return "await_interval_item" }
func (awaitInterval) step() string      { return "await_interval" }

type session struct {
	st      state
	expires time.Time
}

// sessions keeps each owner's dialog state until it is reset or expires.
type sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	clk clock.Clock
	m   map[int64]session
}

func newSessions(ttl time.Duration, clk clock.Clock) *sessions {
	return &sessions{ttl: ttl, clk: clk, m: map[int64]session{}}
}

func (s *sessions) get(owner int64) state {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.m[owner]
	if !ok {
		return idle{}
	}
	if !s.clk.Now().Before(se.expires) {
		delete(s.m, owner)
		return idle{}
	}
	return se.st
}

// set stores st for owner and restarts its TTL. idle clears the entry.
func (s *sessions) set(owner int64, st state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := st.(idle); ok || st == nil {
		delete(s.m, owner)
		return
	}
	s.m[owner] = session{st: st, expires: s.clk.Now().Add(s.ttl)}
}

func (s *sessions) reset(owner int64) { s.set(owner, idle{}) }

// sweep drops expired sessions and returns how many were removed.
func (s *sessions) sweep() int {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for owner, se := range s.m {
		if !now.Before(se.expires) {
			delete(s.m, owner)
			n++
		}
	}
	return n
}

// snapshot lists open dialogs, for diagnostics.
func (s *sessions) snapshot() []OpenDialog {
	s.mu.Lock()
	out := make([]OpenDialog, 0, len(s.m))
	for owner, se := range s.m {
		out = append(out, OpenDialog{OwnerID: owner, Step: se.st.step(), Expires: se.expires})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out
}

type OpenDialog struct {
	OwnerID int64
	Step    string
	Expires time.Time
}
