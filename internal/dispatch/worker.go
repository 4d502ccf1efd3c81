package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"habitbot/internal/eventbus"
	logx "habitbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queued) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queued) {
	defer s.busy.release(qt.ev.Name)

	start := time.Now()
	queueDelay := start.Sub(qt.enqueuedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}

	s.mu.Lock()
	h := s.handlers[qt.ev.Purpose]
	timeout := s.cfg.TaskTimeout
	s.mu.Unlock()

	ev := TaskEvent{ID: qt.id, Name: qt.ev.Name, Purpose: qt.ev.Purpose, ItemID: qt.ev.ItemID, Started: start, QueueDelay: queueDelay}
	eventbus.Publish(s.bus, eventbus.TypeTaskStarted, ev)
	s.log.Debug("firing started", logx.String("job", qt.ev.Name), logx.String("id", qt.id), logx.Duration("queue_delay", queueDelay))

	var err error
	if h == nil {
		err = fmt.Errorf("%w: %q", ErrNoHandler, qt.ev.Purpose)
	} else {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		// Guard against handler panics so one bad firing can't kill a worker.
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					s.log.Error("firing panicked", logx.String("job", qt.ev.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			err = h(runCtx, qt.ev)
		}()
		cancel()
	}

	dur := time.Since(start)
	ev.Duration = dur
	item := HistoryItem{ID: qt.id, Name: qt.ev.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		s.failed.Add(1)
		item.Error = err.Error()
		ev.Error = item.Error
		s.log.Warn("firing failed", logx.String("job", qt.ev.Name), logx.String("id", qt.id), logx.Err(err), logx.Duration("dur", dur))
		eventbus.Publish(s.bus, eventbus.TypeTaskFailed, ev)
	} else {
		s.log.Debug("firing completed", logx.String("job", qt.ev.Name), logx.String("id", qt.id), logx.Duration("dur", dur))
		eventbus.Publish(s.bus, eventbus.TypeTaskFinished, ev)
	}
	s.record(item)
}
