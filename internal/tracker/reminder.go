package tracker

import (
	"context"
	"errors"

	"habitbot/internal/storage"
	"habitbot/internal/timers"
	logx "habitbot/pkg/logx"
)

// HandleReminder runs one habit firing. Done habits are skipped without
// touching the timer. Send failures are logged and never reach the caller.
func (s *Service) HandleReminder(ctx context.Context, ev timers.Event) error {
	it, ok, err := s.load(ctx, ev)
	if err != nil || !ok {
		return err
	}
	if it.Kind != storage.KindRecurring {
		s.log.Warn("reminder timer on non-recurring item, cancelling", logx.Int64("item_id", it.ID))
		s.reg.Cancel(ev.Name)
		return nil
	}
	if it.Done {
		s.log.Debug("reminder suppressed, item done", logx.Int64("item_id", it.ID))
		return nil
	}
	s.send(ctx, it, reminderText(it))
	return nil
}

// load re-reads the item behind a firing. A missing item means it was
// deleted after the tick was queued: its timer is dropped and ok is false.
func (s *Service) load(ctx context.Context, ev timers.Event) (storage.Item, bool, error) {
	name := ev.Name
	if name == "" {
		name = timers.JobName(ev.Purpose, ev.ItemID)
	}
	it, err := s.store.Get(ctx, ev.ItemID)
	if errors.Is(err, storage.ErrNotFound) {
		if s.reg.Cancel(name) {
			s.log.Info("orphan timer cancelled", logx.String("job", name))
		}
		return storage.Item{}, false, nil
	}
	if err != nil {
		return storage.Item{}, false, storeErr("load item for "+name, err)
	}
	return it, true, nil
}
