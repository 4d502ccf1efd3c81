package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"habitbot/internal/eventbus"
	"habitbot/internal/timers"
	logx "habitbot/pkg/logx"
)

func reminderEvent(id int64) timers.Event {
	return timers.Event{Name: timers.JobName(timers.PurposeReminder, id), ItemID: id, Purpose: timers.PurposeReminder}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDispatchRoutesByPurpose(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 2}, logx.Nop(), nil)
	got := make(chan timers.Event, 2)
	s.Handle(timers.PurposeReminder, func(ctx context.Context, ev timers.Event) error {
		got <- ev
		return nil
	})
	s.Handle(timers.PurposeDeadline, func(ctx context.Context, ev timers.Event) error {
		got <- ev
		return nil
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Dispatch(reminderEvent(1)); err != nil {
		t.Fatalf("Dispatch(reminder): %v", err)
	}
	// Name is derived when missing.
	if err := s.Dispatch(timers.Event{ItemID: 2, Purpose: timers.PurposeDeadline}); err != nil {
		t.Fatalf("Dispatch(deadline): %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-got:
			seen[ev.Name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("handler not called")
		}
	}
	if !seen["reminder_1"] || !seen["deadline_2"] {
		t.Fatalf("seen = %v", seen)
	}
}

func TestDispatchErrors(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	if err := s.Dispatch(reminderEvent(1)); !errors.Is(err, ErrStopped) {
		t.Fatalf("Dispatch before Start err = %v, want ErrStopped", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	if err := s.Dispatch(reminderEvent(1)); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("Dispatch without handler err = %v, want ErrNoHandler", err)
	}
}

func TestDispatchSkipsOverlappingName(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan string, 4)
	s := New(Config{Workers: 2}, logx.Nop(), nil)
	s.Handle(timers.PurposeReminder, func(ctx context.Context, ev timers.Event) error {
		started <- ev.Name
		<-release
		return nil
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Dispatch(reminderEvent(1)); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	<-started

	err := s.Dispatch(reminderEvent(1))
	if !errors.Is(err, ErrOverlapSkip) || !errors.Is(err, timers.ErrBusy) {
		t.Fatalf("second Dispatch err = %v, want overlap skip", err)
	}
	if err := s.Dispatch(reminderEvent(2)); err != nil {
		t.Fatalf("Dispatch other name: %v", err)
	}
	<-started
	close(release)

	waitFor(t, "gate release", func() bool { return s.Snapshot().InFlight == 0 })
	if err := s.Dispatch(reminderEvent(1)); err != nil {
		t.Fatalf("Dispatch after completion: %v", err)
	}
	if snap := s.Snapshot(); snap.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1", snap.Skipped)
	}
}

func TestDispatchQueueFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	s := New(Config{Workers: 1, QueueSize: 1}, logx.Nop(), nil)
	s.Handle(timers.PurposeReminder, func(ctx context.Context, ev timers.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())
	defer close(release)

	_ = s.Dispatch(reminderEvent(1))
	<-started
	if err := s.Dispatch(reminderEvent(2)); err != nil {
		t.Fatalf("Dispatch into free slot: %v", err)
	}
	if err := s.Dispatch(reminderEvent(3)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Dispatch err = %v, want ErrQueueFull", err)
	}
	// The dropped firing must not hold its gate.
	if !s.busy.tryAcquire("reminder_3") {
		t.Fatal("reminder_3 gate still held after queue-full drop")
	}
	s.busy.release("reminder_3")
}

func TestHandlerPanicRecovered(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(Config{Workers: 1}, logx.Nop(), bus)
	calls := make(chan struct{}, 2)
	s.Handle(timers.PurposeReminder, func(ctx context.Context, ev timers.Event) error {
		calls <- struct{}{}
		if ev.ItemID == 1 {
			panic("bad item")
		}
		return nil
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Dispatch(reminderEvent(1))
	<-calls
	waitFor(t, "panic recorded", func() bool { return s.Snapshot().Failed == 1 })

	_ = s.Dispatch(reminderEvent(2))
	<-calls
	waitFor(t, "second firing", func() bool { return len(s.Snapshot().History) == 2 })

	h := s.Snapshot().History
	if h[0].Error == "" || h[1].Error != "" {
		t.Fatalf("history = %+v", h)
	}
	if h[0].ID == "" || h[0].ID == h[1].ID {
		t.Fatalf("firing ids not unique: %q %q", h[0].ID, h[1].ID)
	}

	counts := map[string]int{}
	for len(events) > 0 {
		counts[(<-events).Type]++
	}
	if counts[eventbus.TypeTaskStarted] != 2 || counts[eventbus.TypeTaskFailed] != 1 || counts[eventbus.TypeTaskFinished] != 1 {
		t.Fatalf("bus events = %v", counts)
	}
}

func TestStopLetsInFlightFinish(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop(), nil)
	entered := make(chan struct{})
	result := make(chan error, 1)
	s.Handle(timers.PurposeReminder, func(ctx context.Context, ev timers.Event) error {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		result <- ctx.Err()
		return nil
	})
	s.Start(context.Background())
	_ = s.Dispatch(reminderEvent(1))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("handler ctx err = %v, want nil (not cancelled by Stop)", err)
		}
	default:
		t.Fatal("Stop returned before in-flight handler finished")
	}
	if err := s.Dispatch(reminderEvent(1)); !errors.Is(err, ErrStopped) {
		t.Fatalf("Dispatch after Stop err = %v, want ErrStopped", err)
	}
}
