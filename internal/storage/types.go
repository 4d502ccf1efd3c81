package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("item not found")
	ErrClosed   = errors.New("storage closed")
)

// DefaultReminderInterval is used when a recurring item is created without one.
const DefaultReminderInterval = time.Hour

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file at Path
//   - "memory": in-process map, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type Kind string

const (
	KindRecurring Kind = "recurring"
	KindDeadline  Kind = "deadline"
)

func (k Kind) Valid() bool { return k == KindRecurring || k == KindDeadline }

// Item is one tracked habit or deadline.
//
// ReminderInterval is meaningful only for KindRecurring and reads as zero on
// deadlines. DeadlineAt is set only for KindDeadline. All timestamps are UTC.
type Item struct {
	ID               int64
	OwnerID          int64
	Title            string
	Done             bool
	CreatedAt        time.Time
	Kind             Kind
	ReminderInterval time.Duration
	DeadlineAt       time.Time
}

// NewItem is the input for Store.Create.
type NewItem struct {
	OwnerID          int64
	Title            string
	Kind             Kind
	ReminderInterval time.Duration
	DeadlineAt       time.Time
}
