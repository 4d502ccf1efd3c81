package dispatch

import (
	"context"
	"sync"
	"time"

	"habitbot/internal/timers"
)

// Config controls the worker pool.
type Config struct {
	Workers   int
	QueueSize int

	// TaskTimeout bounds one handler run. 0 means 30s.
	TaskTimeout time.Duration

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Handler processes one firing.
type Handler func(ctx context.Context, ev timers.Event) error

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is emitted on the event bus for firing lifecycle events.
type TaskEvent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Purpose    timers.Purpose `json:"purpose"`
	ItemID     int64          `json:"item_id"`
	Started    time.Time      `json:"started"`
	QueueDelay time.Duration  `json:"queue_delay"`
	Duration   time.Duration  `json:"duration"`
	Error      string         `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Dispatched uint64
	Dropped    uint64
	Skipped    uint64
	Failed     uint64

	History []HistoryItem
}

type queued struct {
	id         string
	ev         timers.Event
	enqueuedAt time.Time
}

// inflight tracks job names that are queued or running.
type inflight struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func (f *inflight) tryAcquire(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.names == nil {
		f.names = map[string]struct{}{}
	}
	if _, busy := f.names[name]; busy {
		return false
	}
	f.names[name] = struct{}{}
	return true
}

func (f *inflight) release(name string) {
	f.mu.Lock()
	delete(f.names, name)
	f.mu.Unlock()
}
