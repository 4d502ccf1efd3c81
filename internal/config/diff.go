package config

import (
	"sort"

	logx "habitbot/pkg/logx"
)

// Sections applied live on reload. Everything else needs a restart.
var hotSections = map[string]bool{"logging": true, "notifier": true}

// Change describes what a reload touched.
type Change struct {
	// Sections lists changed top-level keys, sorted.
	Sections []string
	// RestartRequired is the subset of Sections that only take effect after
	// a restart.
	RestartRequired []string
	// Fields are safe for logging. Secrets are reported as *_set booleans.
	Fields []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Diff compares two configs section by section.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		mark("telegram",
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", newCfg.Storage.Path != ""),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.String("scheduler.reminder_warmup", newCfg.Scheduler.ReminderWarmup),
			logx.String("scheduler.default_interval", newCfg.Scheduler.DefaultInterval),
		)
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		mark("dispatch",
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
			logx.Int("dispatch.queue_size", newCfg.Dispatch.QueueSize),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		mark("notifier",
			logx.Any("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMax),
			logx.String("notifier.send_timeout", newCfg.Notifier.SendTimeout),
		)
	}
	if oldCfg.Conversation != newCfg.Conversation {
		mark("conversation", logx.String("conversation.state_ttl", newCfg.Conversation.StateTTL))
	}
	if oldCfg.HTTP != newCfg.HTTP {
		mark("http",
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
		)
	}

	sort.Strings(ch.Sections)
	for _, s := range ch.Sections {
		if !hotSections[s] {
			ch.RestartRequired = append(ch.RestartRequired, s)
		}
	}
	return ch
}
