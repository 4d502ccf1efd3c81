package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"habitbot/internal/eventbus"
	rtsup "habitbot/internal/runtime/supervisor"
	"habitbot/internal/timers"
	logx "habitbot/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service is a timers.Dispatcher backed by a worker pool.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	handlers map[timers.Purpose]Handler

	q        chan queued
	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopping bool

	busy inflight

	inFlight   atomic.Int32
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	skipped    atomic.Uint64
	failed     atomic.Uint64

	lastQueueFullWarnAt atomic.Int64

	hmu     sync.Mutex
	history []HistoryItem
}

var _ timers.Dispatcher = (*Service)(nil)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		log:      log,
		bus:      bus,
		handlers: map[timers.Purpose]Handler{},
	}
}

// Handle registers h for firings with purpose p. Later calls replace earlier ones.
func (s *Service) Handle(p timers.Purpose, h Handler) {
	s.mu.Lock()
	s.handlers[p] = h
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	cfg := s.cfg

	s.q = make(chan queued, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopping = false
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// Worker failures should not hard-kill the app.
		rtsup.WithCancelOnError(false),
	)

	stopCh, queue, sup := s.stopCh, s.q, s.sup
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("dispatcher started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

// Stop stops accepting firings and waits for running handlers, bounded by ctx.
// Queued but not started firings are dropped.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	close(s.stopCh)
	sup := s.sup
	s.mu.Unlock()

	// Workers exit on stopCh after their current firing; in-flight sends are
	// not cancelled.
	err := sup.Wait(ctx)
	sup.Cancel()

	s.mu.Lock()
	q := s.q
	s.q = nil
	s.stopCh = nil
	s.sup = nil
	s.stopping = false
	s.mu.Unlock()

	// Release overlap gates held by firings that never ran.
	if q != nil {
	drain:
		for {
			select {
			case qt := <-q:
				s.busy.release(qt.ev.Name)
			default:
				break drain
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("dispatcher stop timed out", logx.Err(err))
		return
	}
	s.log.Info("dispatcher stopped")
}

// Dispatch enqueues ev without blocking.
func (s *Service) Dispatch(ev timers.Event) error {
	name := ev.Name
	if name == "" {
		name = timers.JobName(ev.Purpose, ev.ItemID)
		ev.Name = name
	}

	s.mu.Lock()
	q := s.q
	running := s.stopCh != nil
	stopping := s.stopping
	_, hasHandler := s.handlers[ev.Purpose]
	s.mu.Unlock()

	if !running {
		return ErrStopped
	}
	if stopping {
		return ErrStopping
	}
	if !hasHandler {
		return fmt.Errorf("%w: %q", ErrNoHandler, ev.Purpose)
	}

	now := time.Now()
	id := uuid.NewString()
	if !s.busy.tryAcquire(name) {
		s.skipped.Add(1)
		eventbus.Publish(s.bus, eventbus.TypeTaskSkipped, TaskEvent{ID: id, Name: name, Purpose: ev.Purpose, ItemID: ev.ItemID, Started: now, Error: "overlap_skip"})
		return ErrOverlapSkip
	}

	select {
	case q <- queued{id: id, ev: ev, enqueuedAt: now}:
		s.dispatched.Add(1)
		return nil
	default:
		s.busy.release(name)
		s.onQueueFull(now, name, q)
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	running := s.stopCh != nil && !s.stopping
	s.mu.Unlock()

	snap := Snapshot{
		Running:    running,
		Workers:    cfg.Workers,
		InFlight:   int(s.inFlight.Load()),
		Dispatched: s.dispatched.Load(),
		Dropped:    s.dropped.Load(),
		Skipped:    s.skipped.Load(),
		Failed:     s.failed.Load(),
	}
	if q != nil {
		snap.QueueLen = len(q)
		snap.QueueCap = cap(q)
	}
	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) onQueueFull(now time.Time, name string, q chan queued) {
	s.dropped.Add(1)
	eventbus.Publish(s.bus, eventbus.TypeTaskSkipped, TaskEvent{Name: name, Started: now, Error: "queue_full"})

	last := s.lastQueueFullWarnAt.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < warnThrottleEvery {
		return
	}
	s.lastQueueFullWarnAt.Store(now.UnixNano())
	s.log.Warn("dispatcher queue full, firing dropped", logx.String("job", name), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
