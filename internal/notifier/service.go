package notifier

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"habitbot/internal/eventbus"
	kit "habitbot/internal/transport"
	logx "habitbot/pkg/logx"
)

// Service sends text to owners through a transport adapter.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem

	// sleep is swapped in tests to skip retry delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus, sleep: sleepCtx}
	s.applyLocked(cfg)
	return s
}

// Apply swaps rate and retry settings. Sends already waiting on the old
// limiter finish under it.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
}

// Notify sends text to the owner's private chat. Owners talk to the bot in
// private chats, where the chat id equals the user id.
func (s *Service) Notify(ctx context.Context, ownerID int64, text string, opts *kit.SendOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()
	if ad == nil {
		return ErrNoAdapter
	}

	target := kit.ChatTarget{ChatID: ownerID}
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		attempts = attempt

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := ad.SendText(callCtx, target, text, opts)
		cancel()
		if err == nil {
			s.appendHistory(cfg.HistorySize, HistoryItem{At: time.Now(), OwnerID: ownerID, Text: text, Attempts: attempts})
			eventbus.Publish(s.bus, eventbus.TypeNotifySent, NotificationEvent{OwnerID: ownerID, At: time.Now(), Attempts: attempts})
			return nil
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Int64("owner_id", ownerID), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts || ctx.Err() != nil {
			break
		}
		if err := s.sleep(ctx, retryDelay(cfg, attempt)); err != nil {
			break
		}
	}

	s.appendHistory(cfg.HistorySize, HistoryItem{At: time.Now(), OwnerID: ownerID, Text: text, Attempts: attempts, Error: lastErr.Error()})
	eventbus.Publish(s.bus, eventbus.TypeNotifyFailed, NotificationEvent{OwnerID: ownerID, At: time.Now(), Attempts: attempts, Error: lastErr.Error()})
	return fmt.Errorf("notify owner %d after %d attempt(s): %w", ownerID, attempts, lastErr)
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(size int, it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay is for the next attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
