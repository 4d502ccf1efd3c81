package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Durations holds every duration field parsed, with defaults applied.
type Durations struct {
	PollTimeout        time.Duration
	StorageBusyTimeout time.Duration

	ReminderWarmup   time.Duration
	DefaultInterval  time.Duration
	MaxStartupSpread time.Duration

	TaskTimeout time.Duration

	SendTimeout   time.Duration
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	StateTTL       time.Duration
	HandlerTimeout time.Duration
}

// ParseDurations parses all duration fields of cfg.
func ParseDurations(cfg *Config) (Durations, error) {
	if cfg == nil {
		return Durations{}, errors.New("config is nil")
	}
	var p durations
	d := Durations{
		PollTimeout:        p.get("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second),
		StorageBusyTimeout: p.get("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second),

		ReminderWarmup:   p.get("scheduler.reminder_warmup", cfg.Scheduler.ReminderWarmup, 10*time.Second),
		DefaultInterval:  p.get("scheduler.default_interval", cfg.Scheduler.DefaultInterval, time.Hour),
		MaxStartupSpread: p.get("scheduler.max_startup_spread", cfg.Scheduler.MaxStartupSpread, 30*time.Second),

		TaskTimeout: p.get("dispatch.task_timeout", cfg.Dispatch.TaskTimeout, 30*time.Second),

		SendTimeout:   p.get("notifier.send_timeout", cfg.Notifier.SendTimeout, 10*time.Second),
		RetryBase:     p.get("notifier.retry_base", cfg.Notifier.RetryBase, 500*time.Millisecond),
		RetryMaxDelay: p.get("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay, 10*time.Second),

		StateTTL:       p.get("conversation.state_ttl", cfg.Conversation.StateTTL, 15*time.Minute),
		HandlerTimeout: p.get("conversation.handler_timeout", cfg.Conversation.HandlerTimeout, 30*time.Second),
	}
	return d, p.err()
}

var knownLevels = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

var knownDrivers = map[string]bool{"": true, "sqlite": true, "sqlite3": true, "memory": true, "mem": true}

// Validate reports every problem in cfg, joined.
func Validate(cfg *Config) error {
	d, err := ParseDurations(cfg)
	if cfg == nil {
		return err
	}
	errs := []error{err}
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token: required")
	}
	if !knownLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if f := cfg.Logging.File; f.MaxSizeMB < 0 || f.MaxBackups < 0 || f.MaxAgeDays < 0 {
		add("logging.file: sizes must be >= 0")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if !knownDrivers[driver] {
		add("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if (driver == "" || strings.HasPrefix(driver, "sqlite")) && strings.TrimSpace(cfg.Storage.Path) == "" {
		add("storage.path: required for sqlite")
	}

	if d.DefaultInterval < time.Second {
		add("scheduler.default_interval: must be at least 1s, got %s", d.DefaultInterval)
	}

	if cfg.Dispatch.Workers < 0 || cfg.Dispatch.QueueSize < 0 || cfg.Dispatch.HistorySize < 0 {
		add("dispatch: counts must be >= 0")
	}

	n := cfg.Notifier
	if n.RatePerSec < 0 || n.Burst < 0 || n.HistorySize < 0 {
		add("notifier: rate, burst and history_size must be >= 0")
	}
	if n.RetryMax < 0 || n.RetryMax > 10 {
		add("notifier.retry_max: must be within 0..10, got %d", n.RetryMax)
	}
	if d.RetryMaxDelay < d.RetryBase {
		add("notifier.retry_max_delay: %s is below retry_base %s", d.RetryMaxDelay, d.RetryBase)
	}

	if c := cfg.Conversation; c.Workers < 0 || c.QueueSize < 0 {
		add("conversation: counts must be >= 0")
	}

	if h := cfg.HTTP; h.Enabled && strings.TrimSpace(h.Addr) != "" {
		if _, _, err := net.SplitHostPort(h.Addr); err != nil {
			add("http.addr: %v", err)
		}
	}
	return errors.Join(errs...)
}
