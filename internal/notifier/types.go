package notifier

import (
	"errors"
	"time"
)

var (
	ErrNoAdapter = errors.New("notifier has no transport")
	ErrEmptyText = errors.New("notification text is empty")
)

// Config controls rate limiting and retries.
type Config struct {
	// RatePerSec is the sustained send rate. Burst defaults to the rate rounded up.
	RatePerSec    float64
	Burst         int
	SendTimeout   time.Duration
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	HistorySize   int
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RatePerSec)
		if float64(c.Burst) < c.RatePerSec {
			c.Burst++
		}
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 300
	}
	return c
}

type HistoryItem struct {
	At       time.Time
	OwnerID  int64
	Text     string
	Attempts int
	Error    string
}

// NotificationEvent is emitted on the event bus for notify.* events.
type NotificationEvent struct {
	OwnerID  int64     `json:"owner_id"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}
