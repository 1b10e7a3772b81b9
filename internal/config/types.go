package config

import (
	"strings"
	"time"
)

// DefaultTimezone is used when neither the file nor the environment names one.
const DefaultTimezone = "Asia/Jakarta"

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	// Token is usually supplied through BOT_TOKEN instead of the file.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// LogChat receives warnings when logging.telegram is enabled.
	LogChat int64 `json:"log_chat,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SchedulerConfig controls alarm timing. Durations are Go duration strings.
//
// Defaults:
//   - timezone: Asia/Jakarta
//   - test_delay: "5s"
//   - snooze_delay: "5m"
type SchedulerConfig struct {
	Timezone    string `json:"timezone,omitempty"`
	TestDelay   string `json:"test_delay,omitempty"`
	SnoozeDelay string `json:"snooze_delay,omitempty"`
}

// NotifierConfig controls the async delivery pipeline.
//
// Zero values fall back to the notifier defaults (2 workers, queue 256,
// 20 msg/s, no retries, 500ms base, 10s cap).
type NotifierConfig struct {
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// StorageConfig selects the alarm store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./alarms.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // file | sqlite | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Scheduler.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	return time.LoadLocation(name)
}
