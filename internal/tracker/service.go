package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"habitbot/internal/clock"
	"habitbot/internal/eventbus"
	"habitbot/internal/storage"
	"habitbot/internal/timers"
	kit "habitbot/internal/transport"
	logx "habitbot/pkg/logx"
)

// Registry is the subset of *timers.Registry the tracker needs.
type Registry interface {
	Register(name string, ev timers.Event, sched timers.Schedule) error
	Cancel(name string) bool
}

// Notifier delivers text to an owner.
type Notifier interface {
	Notify(ctx context.Context, ownerID int64, text string, opts *kit.SendOptions) error
}

type Config struct {
	// ReminderWarmup delays the first reminder after create, interval change
	// and restore. Default 10s.
	ReminderWarmup time.Duration
	// DefaultInterval applies when a habit is created without one. Default 1h.
	DefaultInterval time.Duration
	// MaxStartupSpread bounds the random offset added on Restore. Default 30s.
	MaxStartupSpread time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReminderWarmup <= 0 {
		c.ReminderWarmup = 10 * time.Second
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = storage.DefaultReminderInterval
	}
	if c.MaxStartupSpread <= 0 {
		c.MaxStartupSpread = 30 * time.Second
	}
	return c
}

// ItemEvent is published on item.completed and item.expired.
type ItemEvent struct {
	ItemID  int64        `json:"item_id"`
	OwnerID int64        `json:"owner_id"`
	Kind    storage.Kind `json:"kind"`
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }

func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

// WithNotifyOptions sets the send options (usually the main menu keyboard)
// attached to every timer notification.
func WithNotifyOptions(o *kit.SendOptions) Option { return func(s *Service) { s.notifyOpts = o } }

// Service combines store mutations with timer registry updates.
type Service struct {
	cfg   Config
	store storage.Store
	reg   Registry
	notif Notifier

	clock      clock.Clock
	log        logx.Logger
	bus        eventbus.Bus
	notifyOpts *kit.SendOptions
}

func New(cfg Config, store storage.Store, reg Registry, n Notifier, opts ...Option) *Service {
	s := &Service{cfg: cfg.withDefaults(), store: store, reg: reg, notif: n}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// CreateHabit stores a recurring item and arms its reminder. A zero interval
// means the default.
func (s *Service) CreateHabit(ctx context.Context, owner int64, title string, interval time.Duration) (storage.Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return storage.Item{}, invalid("title is empty")
	}
	if interval == 0 {
		interval = s.cfg.DefaultInterval
	}
	if err := validInterval(interval); err != nil {
		return storage.Item{}, err
	}
	return s.create(ctx, storage.NewItem{OwnerID: owner, Title: title, Kind: storage.KindRecurring, ReminderInterval: interval})
}

// CreateDeadline stores a deadline item and arms its daily reminder at the
// deadline's UTC time of day.
func (s *Service) CreateDeadline(ctx context.Context, owner int64, title string, deadlineAt time.Time) (storage.Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return storage.Item{}, invalid("title is empty")
	}
	if deadlineAt.IsZero() {
		return storage.Item{}, invalid("deadline is not set")
	}
	deadlineAt = deadlineAt.UTC()
	if now := s.clock.Now(); deadlineAt.Before(now) {
		return storage.Item{}, invalid("deadline %s is in the past", deadlineAt.Format(time.RFC3339))
	}
	return s.create(ctx, storage.NewItem{OwnerID: owner, Title: title, Kind: storage.KindDeadline, DeadlineAt: deadlineAt})
}

func (s *Service) create(ctx context.Context, in storage.NewItem) (storage.Item, error) {
	id, err := s.store.Create(ctx, in)
	if err != nil {
		return storage.Item{}, storeErr("create item", err)
	}
	it, err := s.store.Get(ctx, id)
	if err != nil {
		s.rollback(id)
		return storage.Item{}, storeErr("reload item", err)
	}
	if err := s.arm(it, false); err != nil {
		s.rollback(id)
		return storage.Item{}, fmt.Errorf("arm timer for item %d: %w", id, err)
	}
	s.log.Info("item created", logx.Int64("item_id", id), logx.Int64("owner_id", it.OwnerID), logx.String("kind", string(it.Kind)))
	return it, nil
}

// rollback removes a row whose timer could not be armed. It runs detached
// from the request context so a cancelled request still cleans up.
func (s *Service) rollback(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, id); err != nil {
		s.log.Error("rollback of item failed", logx.Int64("item_id", id), logx.Err(err))
	}
}

// SetInterval changes a habit's reminder period. The old timer is cancelled
// and a new one starts after the warm-up; the old phase is not kept.
func (s *Service) SetInterval(ctx context.Context, owner, id int64, every time.Duration) error {
	if err := validInterval(every); err != nil {
		return err
	}
	it, err := s.owned(ctx, owner, id)
	if err != nil {
		return err
	}
	if it.Kind != storage.KindRecurring {
		return invalid("item %d is a deadline and has no interval", id)
	}
	if err := s.store.SetInterval(ctx, id, every); err != nil {
		return storeErr("set interval", err)
	}
	it.ReminderInterval = every

	name := timers.JobName(timers.PurposeReminder, id)
	s.reg.Cancel(name)
	if err := s.arm(it, false); err != nil {
		return fmt.Errorf("arm timer for item %d: %w", id, err)
	}
	s.log.Info("reminder interval changed", logx.Int64("item_id", id), logx.Duration("every", every))
	return nil
}

// MarkDone completes an item. Deadline timers are cancelled; a habit's timer
// stays armed and its firings are suppressed.
func (s *Service) MarkDone(ctx context.Context, owner, id int64) (storage.Item, error) {
	it, err := s.owned(ctx, owner, id)
	if err != nil {
		return storage.Item{}, err
	}
	if err := s.store.SetDone(ctx, id, true); err != nil {
		return storage.Item{}, storeErr("mark done", err)
	}
	it.Done = true
	if it.Kind == storage.KindDeadline {
		s.reg.Cancel(timers.JobName(timers.PurposeDeadline, id))
	}
	eventbus.Publish(s.bus, eventbus.TypeItemCompleted, ItemEvent{ItemID: id, OwnerID: owner, Kind: it.Kind})
	s.log.Info("item completed", logx.Int64("item_id", id))
	return it, nil
}

// Delete removes the row and cancels both of its possible timers. The row
// goes first: a storage failure leaves item and timers untouched.
func (s *Service) Delete(ctx context.Context, owner, id int64) (storage.Item, error) {
	it, err := s.owned(ctx, owner, id)
	if err != nil {
		return storage.Item{}, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return storage.Item{}, storeErr("delete item", err)
	}
	s.cancelAll(id)
	s.log.Info("item deleted", logx.Int64("item_id", id))
	return it, nil
}

func (s *Service) Get(ctx context.Context, owner, id int64) (storage.Item, error) {
	return s.owned(ctx, owner, id)
}

func (s *Service) List(ctx context.Context, owner int64) ([]storage.Item, error) {
	items, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, storeErr("list items", err)
	}
	return items, nil
}

func (s *Service) owned(ctx context.Context, owner, id int64) (storage.Item, error) {
	it, err := s.store.Get(ctx, id)
	if err != nil {
		return storage.Item{}, storeErr(fmt.Sprintf("get item %d", id), err)
	}
	// Other owners' items are indistinguishable from missing ones.
	if it.OwnerID != owner {
		return storage.Item{}, fmt.Errorf("get item %d: %w", id, ErrNotFound)
	}
	return it, nil
}

// arm registers the timer matching the item's kind. spread adds the random
// startup offset used on Restore.
func (s *Service) arm(it storage.Item, spread bool) error {
	switch it.Kind {
	case storage.KindRecurring:
		every := it.ReminderInterval
		if every <= 0 {
			every = s.cfg.DefaultInterval
		}
		iv := timers.Interval{Every: every, FirstDelay: s.cfg.ReminderWarmup}
		if spread {
			iv.Spread = min(every, s.cfg.MaxStartupSpread)
		}
		name := timers.JobName(timers.PurposeReminder, it.ID)
		return s.reg.Register(name, timers.Event{ItemID: it.ID, Purpose: timers.PurposeReminder}, iv)
	case storage.KindDeadline:
		name := timers.JobName(timers.PurposeDeadline, it.ID)
		return s.reg.Register(name, timers.Event{ItemID: it.ID, Purpose: timers.PurposeDeadline}, timers.DailyAt(it.DeadlineAt))
	default:
		return fmt.Errorf("unknown item kind %q", it.Kind)
	}
}

func (s *Service) cancelAll(id int64) {
	s.reg.Cancel(timers.JobName(timers.PurposeReminder, id))
	s.reg.Cancel(timers.JobName(timers.PurposeDeadline, id))
}

func (s *Service) send(ctx context.Context, it storage.Item, text string) {
	if s.notif == nil {
		return
	}
	if err := s.notif.Notify(ctx, it.OwnerID, text, s.notifyOpts); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		s.log.Warn("notification not delivered", logx.Int64("item_id", it.ID), logx.Int64("owner_id", it.OwnerID), logx.Err(err))
	}
}

func validInterval(d time.Duration) error {
	if d <= 0 {
		return invalid("interval must be greater than zero, got %s", d)
	}
	if d < time.Second {
		return invalid("interval must be at least 1s, got %s", d)
	}
	if d%time.Second != 0 {
		return invalid("interval must be whole seconds, got %s", d)
	}
	return nil
}
