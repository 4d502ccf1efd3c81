package tracker

import (
	"context"
	"time"

	"habitbot/internal/eventbus"
	"habitbot/internal/storage"
	"habitbot/internal/timers"
	logx "habitbot/pkg/logx"
)

const day = 24 * time.Hour

// HandleDeadline runs one daily deadline firing. Once the deadline has
// passed the item is marked done and its timer cancelled before the overdue
// notice goes out, so a repeated firing finds it done and stays quiet.
func (s *Service) HandleDeadline(ctx context.Context, ev timers.Event) error {
	it, ok, err := s.load(ctx, ev)
	if err != nil || !ok {
		return err
	}
	if it.Kind != storage.KindDeadline {
		s.log.Warn("deadline timer on non-deadline item, cancelling", logx.Int64("item_id", it.ID))
		s.reg.Cancel(ev.Name)
		return nil
	}
	if it.Done {
		return nil
	}

	left := daysLeft(it.DeadlineAt, s.clock.Now())
	var text string
	switch {
	case left > 0:
		text = deadlineUpcomingText(it, left)
	case left == 0:
		text = deadlineLastDayText(it)
	default:
		if err := s.store.SetDone(ctx, it.ID, true); err != nil {
			// Timer stays armed; the next firing tries again.
			return storeErr("expire deadline", err)
		}
		s.reg.Cancel(timers.JobName(timers.PurposeDeadline, it.ID))
		eventbus.Publish(s.bus, eventbus.TypeItemExpired, ItemEvent{ItemID: it.ID, OwnerID: it.OwnerID, Kind: it.Kind})
		s.log.Info("deadline expired", logx.Int64("item_id", it.ID), logx.Int64("days_left", left))
		text = deadlineOverdueText(it, -left)
	}
	s.send(ctx, it, text)
	return nil
}

// daysLeft is the number of whole days until deadline, rounded toward
// negative infinity: one second past the deadline is already -1.
func daysLeft(deadline, now time.Time) int64 {
	d := deadline.Sub(now)
	n := int64(d / day)
	if d < 0 && d%day != 0 {
		n--
	}
	return n
}
