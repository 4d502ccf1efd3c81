package timers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"habitbot/internal/eventbus"
	logx "habitbot/pkg/logx"
)

type def struct {
	name       string
	ev         Event
	sched      Schedule
	registered time.Time
	gen        uint64

	entryID cron.EntryID
	firstAt time.Time
	jitter  time.Duration
}

// Registry maps job names to armed timers. All schedules evaluate in UTC.
//
// Definitions survive Stop and are re-armed by Start, so timers can be
// registered before the registry runs.
type Registry struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	bus  eventbus.Bus
	disp Dispatcher
	now  func() time.Time

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*def
	gen    uint64

	warnMu   sync.Mutex
	lastWarn map[string]time.Time
}

func New(cfg Config, disp Dispatcher, log logx.Logger, bus eventbus.Bus) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxStartupSpread <= 0 {
		cfg.MaxStartupSpread = defaultMaxStartupSpread
	}
	return &Registry{
		log:      log,
		cfg:      cfg,
		bus:      bus,
		disp:     disp,
		now:      time.Now,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		defs:     map[string]*def{},
		lastWarn: map[string]time.Time{},
	}
}

// SetDispatcher swaps the tick sink. Used when the dispatcher is built after
// the registry.
func (r *Registry) SetDispatcher(d Dispatcher) {
	r.mu.Lock()
	r.disp = d
	r.mu.Unlock()
}

// Start arms every known definition.
func (r *Registry) Start(ctx context.Context) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return
	}
	cl := cronLogger{log: r.log}
	r.c = cron.New(
		cron.WithParser(r.parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	for _, d := range r.defs {
		if err := r.armLocked(d); err != nil {
			r.log.Error("timer arm failed", logx.String("job", d.name), logx.Err(err))
		}
	}
	r.c.Start()
	r.log.Info("timer registry started", logx.Int("timers", len(r.defs)))
}

// Stop disarms all timers. Definitions remain for the next Start.
func (r *Registry) Stop(ctx context.Context) {
	start := time.Now()

	r.mu.Lock()
	c := r.c
	r.c = nil
	for _, d := range r.defs {
		d.entryID = 0
	}
	r.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	r.log.Info("timer registry stopped", logx.Duration("took", time.Since(start)))
}

// Register arms a timer under name, replacing any timer already registered
// with that name.
func (r *Registry) Register(name string, ev Event, sched Schedule) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if sched == nil {
		return errors.New("schedule required")
	}
	if err := sched.validate(); err != nil {
		return fmt.Errorf("timer %s: %w", name, err)
	}
	ev.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	// Upsert by name: the previous timer must be gone before the new one is armed.
	replaced := r.removeLocked(name)
	r.gen++
	d := &def{name: name, ev: ev, sched: sched, registered: r.now(), gen: r.gen}
	r.defs[name] = d

	if r.c != nil {
		if err := r.armLocked(d); err != nil {
			delete(r.defs, name)
			r.log.Error("timer register failed", logx.String("job", name), logx.String("spec", sched.Spec()), logx.Err(err))
			return err
		}
	}

	fields := []logx.Field{logx.String("job", name), logx.String("spec", sched.Spec()), logx.Bool("replaced", replaced)}
	if !d.firstAt.IsZero() {
		fields = append(fields, logx.Time("first", d.firstAt))
	}
	r.log.Debug("timer registered", fields...)
	eventbus.Publish(r.bus, eventbus.TypeTimerRegistered, ev)
	return nil
}

// Cancel removes the timer with that name. It reports whether one existed.
func (r *Registry) Cancel(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	r.mu.Lock()
	removed := r.removeLocked(name)
	r.mu.Unlock()

	if removed {
		r.warnMu.Lock()
		delete(r.lastWarn, name)
		r.warnMu.Unlock()

		r.log.Debug("timer cancelled", logx.String("job", name))
		eventbus.Publish(r.bus, eventbus.TypeTimerCancelled, name)
	}
	return removed
}

// Names lists registered job names with the given prefix, sorted.
func (r *Registry) Names(prefix string) []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Lookup(name string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.defs[name]
	if !ok {
		return Info{}, false
	}
	return r.infoLocked(d), true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.defs)
}

// Snapshot returns every registered timer, sorted by name.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, r.infoLocked(d))
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trigger dispatches the named timer's event now, outside its schedule.
// The schedule itself is unaffected.
func (r *Registry) Trigger(name string) error {
	r.mu.Lock()
	d, ok := r.defs[name]
	var gen uint64
	if ok {
		gen = d.gen
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.fire(name, gen)
}

func (r *Registry) infoLocked(d *def) Info {
	in := Info{
		Name:       d.name,
		Event:      d.ev,
		Spec:       d.sched.Spec(),
		Schedule:   d.sched,
		Registered: d.registered,
		FirstAt:    d.firstAt,
		Jitter:     d.jitter,
	}
	if r.c != nil && d.entryID != 0 {
		e := r.c.Entry(d.entryID)
		in.Next = e.Next
		in.Prev = e.Prev
	}
	return in
}

// removeLocked drops the definition and its cron entry. Call with r.mu held.
func (r *Registry) removeLocked(name string) bool {
	d, ok := r.defs[name]
	if !ok {
		return false
	}
	if r.c != nil && d.entryID != 0 {
		r.c.Remove(d.entryID)
	}
	d.entryID = 0
	delete(r.defs, name)
	return true
}

// armLocked adds d to the running cron. Call with r.mu held and r.c != nil.
func (r *Registry) armLocked(d *def) error {
	name, gen := d.name, d.gen
	job := cron.FuncJob(func() {
		if err := r.fire(name, gen); err != nil {
			r.reportDispatchError(name, err)
		}
	})

	switch s := d.sched.(type) {
	case Interval:
		sched, first, jitter := intervalSchedule(s, r.now().UTC(), r.cfg.MaxStartupSpread, d.name)
		d.firstAt = first
		d.jitter = jitter
		d.entryID = r.c.Schedule(sched, job)
		return nil
	case Daily:
		cs, err := r.parser.Parse("CRON_TZ=UTC " + s.Spec())
		if err != nil {
			return err
		}
		d.entryID = r.c.Schedule(cs, job)
		return nil
	default:
		return fmt.Errorf("unsupported schedule %T", d.sched)
	}
}

// fire hands the event for name to the dispatcher, unless the definition was
// replaced or cancelled since the tick was scheduled.
func (r *Registry) fire(name string, gen uint64) error {
	r.mu.Lock()
	d, ok := r.defs[name]
	if !ok || d.gen != gen {
		r.mu.Unlock()
		return nil
	}
	ev := d.ev
	disp := r.disp
	r.mu.Unlock()

	if disp == nil {
		return errors.New("no dispatcher")
	}
	ev.FiredAt = r.now().UTC()
	eventbus.Publish(r.bus, eventbus.TypeTimerFired, ev)
	return disp.Dispatch(ev)
}
