package timers

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrBusy is wrapped by dispatcher errors meaning "a firing with this
	// name is still queued or running". Those skips are expected and logged
	// at debug level only.
	ErrBusy = errors.New("job busy")

	ErrUnknownJob = errors.New("unknown job")
)

// Purpose selects the engine that handles a firing.
type Purpose string

const (
	PurposeReminder Purpose = "reminder"
	PurposeDeadline Purpose = "deadline"
)

// JobName derives the registry name for an item timer.
func JobName(p Purpose, itemID int64) string {
	return string(p) + "_" + strconv.FormatInt(itemID, 10)
}

// Event is what a tick carries. Handlers re-read item state from the store;
// nothing else is captured at registration time.
type Event struct {
	Name    string
	ItemID  int64
	Purpose Purpose
	FiredAt time.Time
}

// Dispatcher receives ticks. Dispatch must not block.
type Dispatcher interface {
	Dispatch(ev Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ev Event) error

func (f DispatcherFunc) Dispatch(ev Event) error { return f(ev) }

// Config controls the registry.
type Config struct {
	// MaxStartupSpread caps Interval.Spread. 0 means 30s.
	MaxStartupSpread time.Duration
}

// Info describes one registered timer.
type Info struct {
	Name       string
	Event      Event
	Spec       string
	Schedule   Schedule
	Registered time.Time

	// FirstAt is the computed first fire time of an Interval (zero for Daily).
	FirstAt time.Time
	// Jitter is the random part of FirstAt.
	Jitter time.Duration

	// Next and Prev come from cron and are zero while the registry is stopped.
	Next time.Time
	Prev time.Time
}
