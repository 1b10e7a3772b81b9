package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks what can be checked without side effects: durations,
// the timezone name and the storage driver.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	check("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	check("scheduler.test_delay", cfg.Scheduler.TestDelay)
	check("scheduler.snooze_delay", cfg.Scheduler.SnoozeDelay)
	check("notifier.retry_base", cfg.Notifier.RetryBase)
	check("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay)
	check("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if _, err := cfg.Location(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Notifier.RetryMax < 0 {
		errs = append(errs, errors.New("notifier.retry_max: must be >= 0"))
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChat == 0 {
		errs = append(errs, errors.New("logging.telegram: telegram.log_chat is required"))
	}
	return errors.Join(errs...)
}
