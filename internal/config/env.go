package config

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay holds the settings that may come from the environment. Set
// variables win over the file.
type envOverlay struct {
	Token       string `envconfig:"BOT_TOKEN"`
	Timezone    string `envconfig:"ALARMBOT_TIMEZONE"`
	LogLevel    string `envconfig:"ALARMBOT_LOG_LEVEL"`
	StoragePath string `envconfig:"ALARMBOT_STORAGE_PATH"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	if v := strings.TrimSpace(env.Token); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(env.Timezone); v != "" {
		cfg.Scheduler.Timezone = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(env.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	return nil
}
