package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "habitbot/pkg/logx"
)

// Store is the persistence API used by the tracker.
//
// SetDone, SetInterval and Get return ErrNotFound for unknown ids.
// Delete is idempotent.
type Store interface {
	Create(ctx context.Context, in NewItem) (int64, error)
	Get(ctx context.Context, id int64) (Item, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Item, error)
	ListActive(ctx context.Context) ([]Item, error)
	SetDone(ctx context.Context, id int64, done bool) error
	SetInterval(ctx context.Context, id int64, every time.Duration) error
	Delete(ctx context.Context, id int64) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func normalizeNew(in NewItem) NewItem {
	in.Title = strings.TrimSpace(in.Title)
	switch in.Kind {
	case KindRecurring:
		if in.ReminderInterval <= 0 {
			in.ReminderInterval = DefaultReminderInterval
		}
		in.DeadlineAt = time.Time{}
	case KindDeadline:
		in.DeadlineAt = in.DeadlineAt.UTC()
		// Column default; never used for deadlines.
		in.ReminderInterval = DefaultReminderInterval
	}
	return in
}

// presented hides the interval column default on deadline rows.
func presented(it Item) Item {
	if it.Kind == KindDeadline {
		it.ReminderInterval = 0
	}
	return it
}
