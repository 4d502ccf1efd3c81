package app

import (
	"strings"

	"habitbot/internal/config"
	"habitbot/internal/conversation"
	"habitbot/internal/dispatch"
	"habitbot/internal/notifier"
	"habitbot/internal/observability/httpserver"
	"habitbot/internal/storage"
	"habitbot/internal/timers"
	"habitbot/internal/tracker"
	"habitbot/internal/transport/telegram"
	logx "habitbot/pkg/logx"
)

// Component configs are derived from the validated file config plus its
// parsed durations. Zero values are left for the components to default.

func mapLogConfig(cfg *config.Config) logx.Config {
	f := cfg.Logging.File
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    f.Enabled,
			Path:       f.Path,
			MaxSizeMB:  f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAgeDays: f.MaxAgeDays,
		},
	}
}

func mapTelegramConfig(cfg *config.Config, d config.Durations) telegram.Config {
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: d.PollTimeout,
	}
}

func mapStorageConfig(cfg *config.Config, d config.Durations) storage.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: d.StorageBusyTimeout,
	}
}

func mapTimersConfig(d config.Durations) timers.Config {
	return timers.Config{MaxStartupSpread: d.MaxStartupSpread}
}

func mapTrackerConfig(d config.Durations) tracker.Config {
	return tracker.Config{
		ReminderWarmup:   d.ReminderWarmup,
		DefaultInterval:  d.DefaultInterval,
		MaxStartupSpread: d.MaxStartupSpread,
	}
}

func mapDispatchConfig(cfg *config.Config, d config.Durations) dispatch.Config {
	return dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		TaskTimeout: d.TaskTimeout,
		HistorySize: cfg.Dispatch.HistorySize,
	}
}

func mapNotifierConfig(cfg *config.Config, d config.Durations) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		RatePerSec:    n.RatePerSec,
		Burst:         n.Burst,
		SendTimeout:   d.SendTimeout,
		RetryMax:      n.RetryMax,
		RetryBase:     d.RetryBase,
		RetryMaxDelay: d.RetryMaxDelay,
		HistorySize:   n.HistorySize,
	}
}

func mapConversationConfig(cfg *config.Config, d config.Durations) conversation.Config {
	return conversation.Config{
		StateTTL:       d.StateTTL,
		Workers:        cfg.Conversation.Workers,
		QueueSize:      cfg.Conversation.QueueSize,
		HandlerTimeout: d.HandlerTimeout,
	}
}

func mapHTTPConfig(cfg *config.Config) httpserver.Config {
	h := cfg.HTTP
	return httpserver.Config{
		Enabled:       h.Enabled,
		Addr:          strings.TrimSpace(h.Addr),
		Token:         h.Token,
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
	}
}
