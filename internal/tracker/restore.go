package tracker

import (
	"context"
	"errors"
	"fmt"

	logx "habitbot/pkg/logx"
)

// Restore re-arms timers for every item that is not done. Timers live only
// in memory, so this must run once at startup before firings are expected.
// Habits get the warm-up plus a random spread so a restart does not send
// every reminder at once.
//
// It returns how many timers were armed. Per-item failures are joined into
// the error and do not stop the others.
func (s *Service) Restore(ctx context.Context) (int, error) {
	items, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, storeErr("list active items", err)
	}
	var errs []error
	n := 0
	for _, it := range items {
		if err := s.arm(it, true); err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", it.ID, err))
			continue
		}
		n++
	}
	s.log.Info("timers restored", logx.Int("armed", n), logx.Int("active", len(items)), logx.Int("failed", len(errs)))
	return n, errors.Join(errs...)
}
