package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"habitbot/internal/clock"
	"habitbot/internal/storage"
	"habitbot/internal/tracker"
	kit "habitbot/internal/transport"
	logx "habitbot/pkg/logx"
)

// Tracker is the lifecycle API the dialogs drive.
type Tracker interface {
	CreateHabit(ctx context.Context, owner int64, title string, interval time.Duration) (storage.Item, error)
	CreateDeadline(ctx context.Context, owner int64, title string, deadlineAt time.Time) (storage.Item, error)
	SetInterval(ctx context.Context, owner, id int64, every time.Duration) error
	MarkDone(ctx context.Context, owner, id int64) (storage.Item, error)
	Delete(ctx context.Context, owner, id int64) (storage.Item, error)
	Get(ctx context.Context, owner, id int64) (storage.Item, error)
	List(ctx context.Context, owner int64) ([]storage.Item, error)
}

// Sender delivers replies. The notifier satisfies it.
type Sender interface {
	Notify(ctx context.Context, chatID int64, text string, opts *kit.SendOptions) error
}

type Config struct {
	// StateTTL is how long an unfinished dialog waits for the next reply. Default 15m.
	StateTTL time.Duration
	// Workers is the number of owner shards. Default 4.
	Workers int
	// QueueSize is the per-shard buffer. Default 64.
	QueueSize int
	// HandlerTimeout bounds one message, replies included. Default 30s.
	HandlerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.StateTTL <= 0 {
		c.StateTTL = 15 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	return c
}

type Option func(*Bot)

func WithClock(c clock.Clock) Option { return func(b *Bot) { b.clk = c } }

func WithLogger(log logx.Logger) Option { return func(b *Bot) { b.log = log } }

// Bot turns chat messages into tracker operations.
type Bot struct {
	cfg  Config
	tr   Tracker
	out  Sender
	clk  clock.Clock
	log  logx.Logger
	sess *sessions

	handle HandlerFunc
}

func New(cfg Config, tr Tracker, out Sender, opts ...Option) *Bot {
	b := &Bot{cfg: cfg.withDefaults(), tr: tr, out: out}
	for _, o := range opts {
		o(b)
	}
	if b.clk == nil {
		b.clk = clock.System()
	}
	if b.log.IsZero() {
		b.log = logx.Nop()
	}
	b.sess = newSessions(b.cfg.StateTTL, b.clk)
	b.handle = Chain(b.route,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(b.cfg.HandlerTimeout),
	)
	return b
}

// Handle processes one message synchronously.
func (b *Bot) Handle(ctx context.Context, msg *kit.Message) error {
	if msg == nil {
		return nil
	}
	req := &Request{
		Message: msg,
		OwnerID: msg.FromID,
		Text:    strings.TrimSpace(msg.Text),
		Logger:  b.log.With(logx.Int64("owner_id", msg.FromID)),
	}
	return b.handle(ctx, req)
}

// OpenDialogs lists owners with an unfinished dialog.
func (b *Bot) OpenDialogs() []OpenDialog { return b.sess.snapshot() }

func (b *Bot) route(ctx context.Context, req *Request) error {
	if !req.Message.IsPrivate {
		req.Step = "not_private"
		return b.reply(ctx, req, msgPrivateOnly, nil)
	}
	owner := req.OwnerID

	switch command(req.Text) {
	case "/start":
		req.Step = "start"
		b.sess.reset(owner)
		return b.reply(ctx, req, msgGreeting, MainMenu())
	case "/help":
		req.Step = "help"
		b.sess.reset(owner)
		return b.reply(ctx, req, helpText, MainMenu())
	case "/cancel":
		req.Step = "cancel"
		b.sess.reset(owner)
		return b.reply(ctx, req, msgCancelled, MainMenu())
	}
	switch req.Text {
	case BtnHelp:
		req.Step = "help"
		b.sess.reset(owner)
		return b.reply(ctx, req, helpText, MainMenu())
	case BtnCancel:
		req.Step = "cancel"
		b.sess.reset(owner)
		return b.reply(ctx, req, msgCancelled, MainMenu())
	}

	// A menu button always starts over, whatever dialog was open.
	if isMenuButton(req.Text) {
		b.sess.reset(owner)
		req.Step = "menu"
		return b.menu(ctx, req)
	}

	st := b.sess.get(owner)
	req.Step = st.step()
	switch st := st.(type) {
	case awaitHabitTitle:
		return b.onHabitTitle(ctx, req)
	case awaitDeadlineTitle:
		return b.onDeadlineTitle(ctx, req)
	case awaitDeadlineDate:
		return b.onDeadlineDate(ctx, req, st)
	case awaitDeadlineTime:
		return b.onDeadlineTime(ctx, req, st)
	case awaitMarkDone:
		return b.onMarkDone(ctx, req)
	case awaitDelete:
		return b.onDelete(ctx, req)
	case awaitIntervalItem:
		return b.onIntervalItem(ctx, req)
	case awaitInterval:
		return b.onInterval(ctx, req, st)
	default:
		return b.reply(ctx, req, msgUnknown, MainMenu())
	}
}

func (b *Bot) menu(ctx context.Context, req *Request) error {
	owner := req.OwnerID
	switch req.Text {
	case BtnAddHabit:
		b.sess.set(owner, awaitHabitTitle{})
		return b.reply(ctx, req, msgAskHabit, noKeyboard())
	case BtnAddDeadline:
		b.sess.set(owner, awaitDeadlineTitle{})
		return b.reply(ctx, req, msgAskDeadline, noKeyboard())
	}

	items, err := b.tr.List(ctx, owner)
	if err != nil {
		return b.internal(ctx, req, err)
	}
	switch req.Text {
	case BtnMyItems:
		if len(items) == 0 {
			return b.reply(ctx, req, msgNoItems, MainMenu())
		}
		return b.reply(ctx, req, listText(items), MainMenu())
	case BtnMarkDone:
		open := filter(items, func(it storage.Item) bool { return it.Kind == storage.KindDeadline && !it.Done })
		if len(open) == 0 {
			return b.reply(ctx, req, msgNoDeadlines, MainMenu())
		}
		b.sess.set(owner, awaitMarkDone{})
		return b.reply(ctx, req, msgPickDeadline, idPicker(open))
	case BtnDelete:
		if len(items) == 0 {
			return b.reply(ctx, req, msgNoDeletable, MainMenu())
		}
		b.sess.set(owner, awaitDelete{})
		return b.reply(ctx, req, msgPickDelete, idPicker(items))
	case BtnReminders:
		habits := filter(items, func(it storage.Item) bool { return it.Kind == storage.KindRecurring })
		if len(habits) == 0 {
			return b.reply(ctx, req, msgNoHabits, MainMenu())
		}
		b.sess.set(owner, awaitIntervalItem{})
		return b.reply(ctx, req, msgPickHabit, idPicker(habits))
	}
	return b.reply(ctx, req, msgUnknown, MainMenu())
}

func (b *Bot) onHabitTitle(ctx context.Context, req *Request) error {
	if req.Text == "" {
		return b.reply(ctx, req, msgEmptyTitle, nil)
	}
	it, err := b.tr.CreateHabit(ctx, req.OwnerID, req.Text, 0)
	if errors.Is(err, tracker.ErrInvalidInput) {
		return b.reply(ctx, req, msgEmptyTitle, nil)
	}
	b.sess.reset(req.OwnerID)
	if err != nil {
		return b.internal(ctx, req, err)
	}
	return b.reply(ctx, req, habitAddedText(it), MainMenu())
}

func (b *Bot) onDeadlineTitle(ctx context.Context, req *Request) error {
	if req.Text == "" {
		return b.reply(ctx, req, msgEmptyTitle, nil)
	}
	b.sess.set(req.OwnerID, awaitDeadlineDate{title: req.Text})
	return b.reply(ctx, req, msgAskDate, nil)
}

func (b *Bot) onDeadlineDate(ctx context.Context, req *Request, st awaitDeadlineDate) error {
	date, err := ParseDate(req.Text, b.clk.Now())
	switch {
	case errors.Is(err, ErrPastDate):
		b.sess.set(req.OwnerID, st)
		return b.reply(ctx, req, msgPastDate, nil)
	case err != nil:
		b.sess.set(req.OwnerID, st)
		return b.reply(ctx, req, msgBadDate, nil)
	}
	b.sess.set(req.OwnerID, awaitDeadlineTime{title: st.title, date: date})
	return b.reply(ctx, req, msgAskTime, noKeyboard())
}

func (b *Bot) onDeadlineTime(ctx context.Context, req *Request, st awaitDeadlineTime) error {
	hour, minute, err := ParseClock(req.Text)
	if err != nil {
		b.sess.set(req.OwnerID, st)
		return b.reply(ctx, req, msgBadTime, nil)
	}
	at := combine(st.date, hour, minute)
	if at.Before(b.clk.Now()) {
		b.sess.set(req.OwnerID, st)
		return b.reply(ctx, req, msgPastTime, nil)
	}
	it, err := b.tr.CreateDeadline(ctx, req.OwnerID, st.title, at)
	if errors.Is(err, tracker.ErrInvalidInput) {
		// The minute rolled over between the check above and the call.
		b.sess.set(req.OwnerID, st)
		return b.reply(ctx, req, msgPastTime, nil)
	}
	b.sess.reset(req.OwnerID)
	if err != nil {
		return b.internal(ctx, req, err)
	}
	return b.reply(ctx, req, deadlineAddedText(it), MainMenu())
}

func (b *Bot) onMarkDone(ctx context.Context, req *Request) error {
	id, ok := parseID(req.Text)
	if !ok {
		b.sess.set(req.OwnerID, awaitMarkDone{})
		return b.reply(ctx, req, msgBadID, nil)
	}
	b.sess.reset(req.OwnerID)
	it, err := b.tr.Get(ctx, req.OwnerID, id)
	if errors.Is(err, tracker.ErrNotFound) || (err == nil && it.Kind != storage.KindDeadline) {
		return b.reply(ctx, req, msgDeadlineGone, MainMenu())
	}
	if err != nil {
		return b.internal(ctx, req, err)
	}
	it, err = b.tr.MarkDone(ctx, req.OwnerID, id)
	if errors.Is(err, tracker.ErrNotFound) {
		return b.reply(ctx, req, msgDeadlineGone, MainMenu())
	}
	if err != nil {
		return b.internal(ctx, req, err)
	}
	return b.reply(ctx, req, markedDoneText(it), MainMenu())
}

func (b *Bot) onDelete(ctx context.Context, req *Request) error {
	id, ok := parseID(req.Text)
	if !ok {
		b.sess.set(req.OwnerID, awaitDelete{})
		return b.reply(ctx, req, msgBadID, nil)
	}
	b.sess.reset(req.OwnerID)
	it, err := b.tr.Delete(ctx, req.OwnerID, id)
	if errors.Is(err, tracker.ErrNotFound) {
		return b.reply(ctx, req, msgItemGone, MainMenu())
	}
	if err != nil {
		return b.internal(ctx, req, err)
	}
	return b.reply(ctx, req, deletedText(it), MainMenu())
}

func (b *Bot) onIntervalItem(ctx context.Context, req *Request) error {
	id, ok := parseID(req.Text)
	if !ok {
		b.sess.set(req.OwnerID, awaitIntervalItem{})
		return b.reply(ctx, req, msgBadID, nil)
	}
	b.sess.reset(req.OwnerID)
	it, err := b.tr.Get(ctx, req.OwnerID, id)
	if errors.Is(err, tracker.ErrNotFound) || (err == nil && it.Kind != storage.KindRecurring) {
		return b.reply(ctx, req, msgHabitGone, MainMenu())
	}
	if err != nil {
		return b.internal(ctx, req, err)
	}
	b.sess.set(req.OwnerID, awaitInterval{itemID: it.ID, title: it.Title})
	return b.reply(ctx, req, askIntervalText(it.Title), noKeyboard())
}

func (b *Bot) onInterval(ctx context.Context, req *Request, st awaitInterval) error {
	b.sess.reset(req.OwnerID)
	iv, err := ParseInterval(req.Text)
	switch {
	case errors.Is(err, ErrNotPositive):
		return b.reply(ctx, req, msgZeroInterval, MainMenu())
	case errors.Is(err, ErrTooLong):
		return b.reply(ctx, req, msgLongInterval, MainMenu())
	case err != nil:
		return b.reply(ctx, req, msgBadInterval, MainMenu())
	}
	err = b.tr.SetInterval(ctx, req.OwnerID, st.itemID, iv.Duration())
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		return b.reply(ctx, req, msgHabitGone, MainMenu())
	case errors.Is(err, tracker.ErrInvalidInput):
		return b.reply(ctx, req, msgZeroInterval, MainMenu())
	case err != nil:
		return b.internal(ctx, req, err)
	}
	return b.reply(ctx, req, intervalSetText(st.title, iv), MainMenu())
}

func (b *Bot) reply(ctx context.Context, req *Request, text string, opts *kit.SendOptions) error {
	if b.out == nil {
		return nil
	}
	if err := b.out.Notify(ctx, req.Message.ChatID, text, opts); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// internal tells the user something broke and returns err for the request log.
func (b *Bot) internal(ctx context.Context, req *Request, err error) error {
	return errors.Join(err, b.reply(ctx, req, msgInternal, MainMenu()))
}

// command returns the bare command of a "/cmd@botname args" message, or "".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

func filter(items []storage.Item, keep func(storage.Item) bool) []storage.Item {
	var out []storage.Item
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
