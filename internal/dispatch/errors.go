package dispatch

import (
	"errors"
	"fmt"

	"habitbot/internal/timers"
)

var (
	ErrStopped   = errors.New("dispatcher stopped")
	ErrStopping  = errors.New("dispatcher stopping")
	ErrQueueFull = errors.New("dispatcher queue full")
	ErrNoHandler = errors.New("no handler for purpose")

	// ErrOverlapSkip wraps timers.ErrBusy so the registry treats it as routine.
	ErrOverlapSkip = fmt.Errorf("firing skipped, previous one in flight: %w", timers.ErrBusy)
)
