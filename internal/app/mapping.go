package app

import (
	"strings"
	"time"

	"alarmbot/internal/alarms"
	"alarmbot/internal/config"
	"alarmbot/internal/notifier"
	"alarmbot/internal/storage"
	logx "alarmbot/pkg/logx"
)

// MapStorageConfig converts the storage section. The file driver is the
// default and keeps its default path when none is set.
func MapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	if driver == "sqlite" || driver == "sqlite3" {
		if path == "" {
			path = "./alarms.db"
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	}
	return storage.Config{Driver: driver, Path: path}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	base, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func mapAlarmsConfig(cfg *config.Config) (alarms.Config, error) {
	test, err := config.ParseDurationOrDefault("scheduler.test_delay", cfg.Scheduler.TestDelay, alarms.DefaultTestDelay)
	if err != nil {
		return alarms.Config{}, err
	}
	snooze, err := config.ParseDurationOrDefault("scheduler.snooze_delay", cfg.Scheduler.SnoozeDelay, alarms.DefaultSnoozeDelay)
	if err != nil {
		return alarms.Config{}, err
	}
	return alarms.Config{TestDelay: test, SnoozeDelay: snooze}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChat,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}
