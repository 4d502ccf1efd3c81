package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"habitbot/internal/clock/clocktest"
	"habitbot/internal/storage"
	"habitbot/internal/timers"
	"habitbot/internal/tracker"
	kit "habitbot/internal/transport"
	logx "habitbot/pkg/logx"
)

type reply struct {
	chatID int64
	text   string
	opts   *kit.SendOptions
}

type recordingSender struct {
	mu      sync.Mutex
	replies []reply
}

func (s *recordingSender) Notify(ctx context.Context, chatID int64, text string, opts *kit.SendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{chatID: chatID, text: text, opts: opts})
	return nil
}

func (s *recordingSender) all() []reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reply(nil), s.replies...)
}

type harness struct {
	bot   *Bot
	tr    *tracker.Service
	store *storage.Memory
	reg   *timers.Registry
	clk   *clocktest.Clock
	out   *recordingSender
}

const owner = int64(42)

var (
	ctx = context.Background()
	t0  = time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC)
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clocktest.New(t0)
	store := storage.NewMemory()
	store.Now = clk.Now
	reg := timers.New(timers.Config{}, nil, logx.Nop(), nil)
	out := &recordingSender{}
	tr := tracker.New(tracker.Config{}, store, reg, out, tracker.WithClock(clk))
	bot := New(Config{}, tr, out, WithClock(clk))
	return &harness{bot: bot, tr: tr, store: store, reg: reg, clk: clk, out: out}
}

// say sends text as owner and returns the bot's last reply.
func (h *harness) say(t *testing.T, text string) reply {
	t.Helper()
	return h.sayAs(t, owner, text)
}

func (h *harness) sayAs(t *testing.T, from int64, text string) reply {
	t.Helper()
	before := len(h.out.all())
	msg := &kit.Message{ChatID: from, FromID: from, Text: text, IsPrivate: true}
	if err := h.bot.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
	got := h.out.all()
	if len(got) != before+1 {
		t.Fatalf("Handle(%q) sent %d replies, want 1", text, len(got)-before)
	}
	return got[len(got)-1]
}

func (h *harness) expect(t *testing.T, text, want string) reply {
	t.Helper()
	r := h.say(t, text)
	if r.text != want {
		t.Fatalf("reply to %q = %q, want %q", text, r.text, want)
	}
	return r
}

func hasKeyboard(o *kit.SendOptions, button string) bool {
	if o == nil {
		return false
	}
	for _, row := range o.Keyboard {
		for _, b := range row {
			if b == button {
				return true
			}
		}
	}
	return false
}

func TestStartShowsMainMenu(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, cmd := range []string{"/start", "/start@habit_bot", "/START"} {
		r := h.expect(t, cmd, msgGreeting)
		if !hasKeyboard(r.opts, BtnAddHabit) || !hasKeyboard(r.opts, BtnHelp) {
			t.Fatalf("%s keyboard = %+v, want main menu", cmd, r.opts)
		}
		if r.chatID != owner {
			t.Fatalf("reply chat = %d, want %d", r.chatID, owner)
		}
	}
	h.expect(t, "/help", helpText)
	h.expect(t, BtnHelp, helpText)
}

func TestAddHabitDialog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	r := h.expect(t, BtnAddHabit, msgAskHabit)
	if r.opts == nil || !r.opts.RemoveKeyboard {
		t.Fatalf("ask habit opts = %+v, want keyboard removed", r.opts)
	}
	h.expect(t, "   ", msgEmptyTitle)

	r = h.say(t, "Drink water")
	if !strings.Contains(r.text, "'Drink water' added") || !strings.Contains(r.text, "every hour") {
		t.Fatalf("added reply = %q", r.text)
	}
	if !hasKeyboard(r.opts, BtnMyItems) {
		t.Fatalf("added reply keyboard = %+v, want main menu", r.opts)
	}

	items, _ := h.store.ListByOwner(ctx, owner)
	if len(items) != 1 || items[0].Title != "Drink water" || items[0].ReminderInterval != time.Hour {
		t.Fatalf("items = %+v", items)
	}
	if _, ok := h.reg.Lookup("reminder_1"); !ok {
		t.Fatalf("reminder_1 not registered")
	}
	// The dialog is over.
	h.expect(t, "Drink water", msgUnknown)
}

func TestAddDeadlineDialog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.expect(t, BtnAddDeadline, msgAskDeadline)
	h.expect(t, "Report", msgAskDate)
	h.expect(t, "31/12/2024", msgBadDate)
	h.expect(t, "29.12.2024", msgPastDate)
	r := h.expect(t, "31.12.2024", msgAskTime)
	if r.opts == nil || !r.opts.RemoveKeyboard {
		t.Fatalf("ask time opts = %+v, want keyboard removed", r.opts)
	}
	h.expect(t, "25:00", msgBadTime)

	r = h.say(t, "18:45")
	if !strings.Contains(r.text, "'Report' added") || !strings.Contains(r.text, "31.12.2024") || !strings.Contains(r.text, "18:45 UTC") {
		t.Fatalf("added reply = %q", r.text)
	}

	it, err := h.store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := time.Date(2024, 12, 31, 18, 45, 0, 0, time.UTC)
	if it.Kind != storage.KindDeadline || !it.DeadlineAt.Equal(want) {
		t.Fatalf("item = %+v, want deadline at %v", it, want)
	}
	if _, ok := h.reg.Lookup("deadline_1"); !ok {
		t.Fatalf("deadline_1 not registered")
	}
}

func TestDeadlineTodayRejectsPassedTime(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.expect(t, BtnAddDeadline, msgAskDeadline)
	h.expect(t, "Call mom", msgAskDate)
	h.expect(t, "30.12.2024", msgAskTime)
	h.expect(t, "07:59", msgPastTime)
	r := h.say(t, "08:30")
	if !strings.Contains(r.text, "added") {
		t.Fatalf("reply = %q, want deadline added", r.text)
	}
}

func TestReminderSettingsDialog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	habit, err := h.tr.CreateHabit(ctx, owner, "Stretch", 0)
	if err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}
	dl, err := h.tr.CreateDeadline(ctx, owner, "Report", t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("CreateDeadline: %v", err)
	}

	r := h.expect(t, BtnReminders, msgPickHabit)
	if !hasKeyboard(r.opts, "1") || hasKeyboard(r.opts, "2") || !hasKeyboard(r.opts, BtnCancel) {
		t.Fatalf("picker = %+v, want only habit ids and Cancel", r.opts)
	}
	h.expect(t, "abc", msgBadID)
	h.expect(t, "1", askIntervalText(habit.Title))

	r = h.say(t, "0:0:30:0")
	if r.text != intervalSetText("Stretch", Interval{Minutes: 30}) || !strings.Contains(r.text, "0d 0h 30m 0s") {
		t.Fatalf("reply = %q", r.text)
	}
	info, ok := h.reg.Lookup("reminder_1")
	if !ok {
		t.Fatalf("reminder_1 not registered")
	}
	if iv, _ := info.Schedule.(timers.Interval); iv.Every != 30*time.Minute {
		t.Fatalf("schedule = %+v, want every 30m", info.Schedule)
	}

	// A deadline id is not a habit.
	h.expect(t, BtnReminders, msgPickHabit)
	h.expect(t, "2", msgHabitGone)
	if got, _ := h.store.Get(ctx, dl.ID); got.ReminderInterval != 0 {
		t.Fatalf("deadline interval = %v, want 0", got.ReminderInterval)
	}
}

func TestIntervalReplyErrorsEndDialog(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "1 hour", want: msgBadInterval},
		{in: "0:1:0", want: msgBadInterval},
		{in: "0:0:0:0", want: msgZeroInterval},
		{in: "99999999999:0:0:0", want: msgLongInterval},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			if _, err := h.tr.CreateHabit(ctx, owner, "Stretch", 0); err != nil {
				t.Fatalf("CreateHabit: %v", err)
			}
			h.expect(t, BtnReminders, msgPickHabit)
			h.expect(t, "1", askIntervalText("Stretch"))
			h.expect(t, tc.in, tc.want)
			h.expect(t, "0:0:30:0", msgUnknown)

			it, _ := h.store.Get(ctx, 1)
			if it.ReminderInterval != time.Hour {
				t.Fatalf("interval = %v, want unchanged 1h", it.ReminderInterval)
			}
		})
	}
}

func TestMarkDoneDialog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.expect(t, BtnMarkDone, msgNoDeadlines)
	if _, err := h.tr.CreateHabit(ctx, owner, "Stretch", 0); err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}
	h.expect(t, BtnMarkDone, msgNoDeadlines)

	dl, err := h.tr.CreateDeadline(ctx, owner, "Report", t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("CreateDeadline: %v", err)
	}
	r := h.expect(t, BtnMarkDone, msgPickDeadline)
	if !hasKeyboard(r.opts, "2") || hasKeyboard(r.opts, "1") {
		t.Fatalf("picker = %+v, want only the deadline", r.opts)
	}
	h.expect(t, "1", msgDeadlineGone)

	h.expect(t, BtnMarkDone, msgPickDeadline)
	r = h.say(t, "2")
	if r.text != markedDoneText(dl) {
		t.Fatalf("reply = %q", r.text)
	}
	if _, ok := h.reg.Lookup("deadline_2"); ok {
		t.Fatalf("deadline_2 still registered after mark done")
	}
	// Done deadlines drop out of the picker.
	h.expect(t, BtnMarkDone, msgNoDeadlines)
}

func TestDeleteDialog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.expect(t, BtnDelete, msgNoDeletable)
	it, err := h.tr.CreateHabit(ctx, owner, "Stretch", 0)
	if err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}

	h.expect(t, BtnDelete, msgPickDelete)
	h.expect(t, "-3", msgBadID)
	h.expect(t, "99", msgItemGone)

	h.expect(t, BtnDelete, msgPickDelete)
	h.expect(t, "1", deletedText(it))
	if _, err := h.store.Get(ctx, it.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
	if _, ok := h.reg.Lookup("reminder_1"); ok {
		t.Fatalf("reminder_1 still registered after delete")
	}
}

func TestOtherOwnersItemsAreHidden(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if _, err := h.tr.CreateHabit(ctx, owner, "Stretch", 0); err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}

	const stranger = int64(7)
	if r := h.sayAs(t, stranger, BtnMyItems); r.text != msgNoItems {
		t.Fatalf("stranger list = %q, want %q", r.text, msgNoItems)
	}
	h.sayAs(t, stranger, BtnDelete)
	// The picker was never shown, so no dialog is open.
	if r := h.sayAs(t, stranger, "1"); r.text != msgUnknown {
		t.Fatalf("stranger reply = %q, want %q", r.text, msgUnknown)
	}
	if _, err := h.store.Get(ctx, 1); err != nil {
		t.Fatalf("owner item gone: %v", err)
	}
}

func TestListShowsItems(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expect(t, BtnMyItems, msgNoItems)

	if _, err := h.tr.CreateHabit(ctx, owner, "Stretch", 90*time.Minute); err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}
	if _, err := h.tr.CreateDeadline(ctx, owner, "Report", time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("CreateDeadline: %v", err)
	}
	r := h.say(t, BtnMyItems)
	for _, want := range []string{"1. Stretch", "every 1h 30m", "2. Report", "Deadline: 02.01.2025", "Not done"} {
		if !strings.Contains(r.text, want) {
			t.Fatalf("list = %q, missing %q", r.text, want)
		}
	}
}

func TestCancelAndMenuResetDialog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.expect(t, BtnAddDeadline, msgAskDeadline)
	h.expect(t, "Report", msgAskDate)
	h.expect(t, BtnCancel, msgCancelled)
	h.expect(t, "31.12.2024", msgUnknown)

	h.expect(t, BtnAddHabit, msgAskHabit)
	h.expect(t, "/cancel", msgCancelled)

	// A menu button in the middle of a dialog starts that menu action.
	h.expect(t, BtnAddHabit, msgAskHabit)
	h.expect(t, BtnMyItems, msgNoItems)
	if items, _ := h.store.ListByOwner(ctx, owner); len(items) != 0 {
		t.Fatalf("items = %+v, want none", items)
	}
}

func TestDialogExpires(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.expect(t, BtnAddHabit, msgAskHabit)
	h.clk.Advance(15*time.Minute + time.Second)
	h.expect(t, "Drink water", msgUnknown)

	h.expect(t, BtnAddHabit, msgAskHabit)
	h.clk.Advance(14 * time.Minute)
	if r := h.say(t, "Drink water"); !strings.Contains(r.text, "added") {
		t.Fatalf("reply = %q, want habit added", r.text)
	}
}

func TestNonPrivateChatIsRefused(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	msg := &kit.Message{ChatID: -100, FromID: owner, Text: BtnAddHabit}
	if err := h.bot.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := h.out.all()
	if len(got) != 1 || got[0].text != msgPrivateOnly || got[0].chatID != -100 {
		t.Fatalf("replies = %+v", got)
	}
	if d := h.bot.OpenDialogs(); len(d) != 0 {
		t.Fatalf("OpenDialogs = %+v, want none", d)
	}
}

func TestStorageFailureReportsInternalError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.Fail = errors.New("disk full")

	h.expect(t, BtnAddHabit, msgAskHabit)
	msg := &kit.Message{ChatID: owner, FromID: owner, Text: "Drink water", IsPrivate: true}
	err := h.bot.Handle(ctx, msg)
	if !errors.Is(err, tracker.ErrStorage) {
		t.Fatalf("Handle err = %v, want ErrStorage", err)
	}
	got := h.out.all()
	if last := got[len(got)-1]; last.text != msgInternal {
		t.Fatalf("reply = %q, want %q", last.text, msgInternal)
	}
	if _, ok := h.reg.Lookup("reminder_1"); ok {
		t.Fatalf("timer registered despite storage failure")
	}
}

func TestCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/start":             "/start",
		"/start@habit_bot":   "/start",
		"/Help extra words":  "/help",
		"/cancel@bot please": "/cancel",
		"start":              "",
		"":                   "",
	}
	for in, want := range cases {
		if got := command(in); got != want {
			t.Fatalf("command(%q) = %q, want %q", in, got, want)
		}
	}
}
