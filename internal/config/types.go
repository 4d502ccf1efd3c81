package config

// Config is the on-disk configuration, JSON or YAML.
//
// All durations are Go duration strings ("500ms", "10s", "1h"). Empty or
// zero values fall back to the component defaults.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Dispatch     DispatchConfig     `json:"dispatch"`
	Notifier     NotifierConfig     `json:"notifier"`
	Conversation ConversationConfig `json:"conversation"`
	HTTP         HTTPConfig         `json:"http"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

// LoggingFile is the rotated JSON log sink. Sizes of 0 keep the rotation
// library defaults.
type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// StorageConfig selects the item store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/habits.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig tunes timer arming.
//
// Defaults: reminder_warmup 10s, default_interval 1h, max_startup_spread 30s.
type SchedulerConfig struct {
	ReminderWarmup   string `json:"reminder_warmup,omitempty"`
	DefaultInterval  string `json:"default_interval,omitempty"`
	MaxStartupSpread string `json:"max_startup_spread,omitempty"`
}

// DispatchConfig is the firing worker pool.
//
// Defaults: workers 2, queue_size 256, task_timeout 30s, history_size 200.
type DispatchConfig struct {
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	TaskTimeout string `json:"task_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// NotifierConfig controls outgoing messages.
//
// retry_max defaults to 0: a failed send is logged and never retried.
type NotifierConfig struct {
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	Burst         int     `json:"burst,omitempty"`
	SendTimeout   string  `json:"send_timeout,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
	HistorySize   int     `json:"history_size,omitempty"`
}

type ConversationConfig struct {
	StateTTL       string `json:"state_ttl,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

// HTTPConfig is the operator listener for /healthz, /readyz, /metrics and
// optionally pprof.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - A non-loopback address needs a token or allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
