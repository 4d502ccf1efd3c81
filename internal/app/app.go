package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"habitbot/internal/clock"
	"habitbot/internal/config"
	"habitbot/internal/conversation"
	"habitbot/internal/dispatch"
	"habitbot/internal/eventbus"
	"habitbot/internal/notifier"
	"habitbot/internal/observability/httpserver"
	"habitbot/internal/observability/metrics"
	rtsup "habitbot/internal/runtime/supervisor"
	"habitbot/internal/storage"
	"habitbot/internal/systemd"
	"habitbot/internal/timers"
	"habitbot/internal/tracker"
	kit "habitbot/internal/transport"
	"habitbot/internal/transport/telegram"
	logx "habitbot/pkg/logx"
)

const updatesBuffer = 256

type Option func(*options)

type options struct {
	adapter kit.Adapter
	clock   clock.Clock
	version string
}

// WithAdapter replaces the Telegram adapter, mainly for tests.
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

func WithVersion(v string) Option { return func(o *options) { o.version = v } }

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	timers  *timers.Registry
	disp    *dispatch.Service
	notif   *notifier.Service
	tracker *tracker.Service
	bot     *conversation.Bot

	metrics *metrics.Collector
	http    *httpserver.Server
	sd      *systemd.Notifier

	updates chan kit.Update
	ready   atomic.Bool
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.clock == nil {
		o.clock = clock.System()
	}

	cfgm := config.NewManager(cfgPath, logx.NewConsole("info").With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	d, err := config.ParseDurations(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	ad := o.adapter
	if ad == nil {
		tg, err := telegram.New(mapTelegramConfig(cfg, d), log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		ad = tg
	}

	sc := mapStorageConfig(cfg, d)
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()

	reg := timers.New(mapTimersConfig(d), nil, log.With(logx.String("comp", "timers")), bus)
	disp := dispatch.New(mapDispatchConfig(cfg, d), log.With(logx.String("comp", "dispatch")), bus)
	reg.SetDispatcher(disp)

	notif := notifier.New(mapNotifierConfig(cfg, d), ad, log.With(logx.String("comp", "notifier")), bus)

	tr := tracker.New(mapTrackerConfig(d), store, reg, notif,
		tracker.WithClock(o.clock),
		tracker.WithLogger(log.With(logx.String("comp", "tracker"))),
		tracker.WithBus(bus),
		tracker.WithNotifyOptions(conversation.MainMenu()),
	)
	disp.Handle(timers.PurposeReminder, tr.HandleReminder)
	disp.Handle(timers.PurposeDeadline, tr.HandleDeadline)

	bot := conversation.New(mapConversationConfig(cfg, d), tr, notif,
		conversation.WithClock(o.clock),
		conversation.WithLogger(log.With(logx.String("comp", "conversation"))),
	)

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		timers:  reg,
		disp:    disp,
		notif:   notif,
		tracker: tr,
		bot:     bot,
		metrics: metrics.New(),
		sd:      systemd.New(log.With(logx.String("comp", "systemd"))),
		updates: make(chan kit.Update, updatesBuffer),
	}
	a.metrics.Gauge("timers_armed", "Timers currently registered.", func() float64 { return float64(reg.Len()) })
	a.metrics.Gauge("dispatch_queue_length", "Firings waiting for a worker.", func() float64 { return float64(disp.Snapshot().QueueLen) })
	a.metrics.Gauge("open_dialogs", "Unfinished conversations.", func() float64 { return float64(len(bot.OpenDialogs())) })

	a.http = httpserver.New(mapHTTPConfig(cfg), httpserver.Deps{
		Metrics: a.metrics.Handler(),
		Ready:   a.readyErr,
		Version: o.version,
	}, log.With(logx.String("comp", "http")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Tracker() *tracker.Service { return a.tracker }

func (a *App) readyErr() error {
	if !a.ready.Load() {
		return errors.New("not started")
	}
	if a.sup == nil || a.sup.Context().Err() != nil {
		return errors.New("stopping")
	}
	return nil
}

// Start arms every stored timer and begins serving updates. Timers are
// restored before the adapter starts, so no dialog can race the restore.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	a.sup.Go0("metrics", func(c context.Context) { a.metrics.Run(c, a.bus) })

	a.disp.Start(c)
	a.timers.Start(c)

	n, err := a.tracker.Restore(c)
	if errors.Is(err, tracker.ErrStorage) {
		a.sup.Cancel()
		return fmt.Errorf("restore timers: %w", err)
	}
	if err != nil {
		a.log.Warn("some timers were not restored", logx.Int("armed", n), logx.Err(err))
	}

	if err := a.adapter.Start(c, a.updates); err != nil {
		a.sup.Cancel()
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		if err := mu.UpdateMenuCommands(mctx, conversation.Commands); err != nil {
			a.log.Warn("bot command menu not updated", logx.Err(err))
		}
		cancel()
	}

	a.sup.Go("conversation", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	a.http.Start(c)

	// Debug-level event trace (components also subscribe themselves).
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.ready.Store(true)
	a.sd.Ready()
	a.sup.Go0("systemd.watchdog", a.sd.Watchdog)

	a.log.Info("app started", logx.Int("timers", a.timers.Len()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.ready.Store(false)
	a.sd.Stopping()

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Intake first, then firings, then whatever still reads the store.
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "timers", 2*time.Second, func(c context.Context) error { a.timers.Stop(c); return nil })
	a.step(ctx, "dispatch", 3*time.Second, func(c context.Context) error { a.disp.Stop(c); return nil })
	a.step(ctx, "http", 1*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and by the caller's deadline,
// so one component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}
