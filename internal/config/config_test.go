package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	// the binary embeds zoneinfo in main; tests need their own copy
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BOT_TOKEN", "ALARMBOT_TIMEZONE", "ALARMBOT_LOG_LEVEL", "ALARMBOT_STORAGE_PATH"} {
		t.Setenv(k, "")
	}
}

const sampleYAML = `
telegram:
  poll_timeout: 10s
logging:
  level: info
  console: true
scheduler:
  timezone: Asia/Jakarta
  snooze_delay: 10m
notifier:
  workers: 3
  retry_max: 2
  retry_base: 1s
storage:
  driver: sqlite
  path: ./alarms.db
`

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ALARMBOT_TIMEZONE", "UTC")
	t.Setenv("ALARMBOT_STORAGE_PATH", "/var/lib/alarmbot/alarms.db")

	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	cfg, err := NewConfigManager(p).Load()
	require.NoError(t, err)

	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, "10s", cfg.Telegram.PollTimeout)
	require.Equal(t, "UTC", cfg.Scheduler.Timezone)
	require.Equal(t, "10m", cfg.Scheduler.SnoozeDelay)
	require.Equal(t, 3, cfg.Notifier.Workers)
	require.Equal(t, 2, cfg.Notifier.RetryMax)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "/var/lib/alarmbot/alarms.db", cfg.Storage.Path)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "UTC", loc.String())
}

func TestLoadEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "42:xyz")
	t.Setenv("ALARMBOT_LOG_LEVEL", "debug")

	m := NewConfigManager("")
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "42:xyz", cfg.Telegram.Token)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Same(t, cfg, m.Get())

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, DefaultTimezone, loc.String())
}

func TestParseStrict(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := []struct {
		name string
		file string
		body string
	}{
		{"unknown key", "a.json", `{"telegram": {"token": "x"}, "plugins": {}}`},
		{"unknown nested key", "b.yaml", "scheduler:\n  tz: UTC\n"},
		{"trailing data", "c.json", `{} {}`},
		{"bad yaml", "d.yml", "logging: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := writeFile(t, dir, tc.file, tc.body)
			_, err := NewConfigManager(p).Parse()
			require.Error(t, err)
		})
	}
}

func TestParseEmptyYAML(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "empty.yaml", "")
	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		edit func(c *Config)
		bad  bool
	}{
		{"zero config", func(c *Config) {}, false},
		{"bad duration", func(c *Config) { c.Scheduler.TestDelay = "soon" }, true},
		{"negative duration", func(c *Config) { c.Notifier.RetryBase = "-1s" }, true},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, true},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, true},
		{"sqlite driver", func(c *Config) { c.Storage.Driver = "SQLite" }, false},
		{"negative retries", func(c *Config) { c.Notifier.RetryMax = -1 }, true},
		{"log sink without chat", func(c *Config) { c.Logging.Telegram.Enabled = true }, true},
		{"log sink with chat", func(c *Config) {
			c.Logging.Telegram.Enabled = true
			c.Telegram.LogChat = -100123
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var c Config
			tc.edit(&c)
			err := Validate(&c)
			if tc.bad {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)

	d, err = ParseDurationOrDefault("x", " 2m ", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, d)

	_, err = ParseDurationOrDefault("x", "2 minutes", 5*time.Second)
	require.ErrorContains(t, err, "x: invalid duration")
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a := &Config{Telegram: TelegramConfig{Token: "secret"}, Logging: LoggingConfig{Level: "info"}}
	b := *a
	changed, attrs := SummarizeConfigChange(a, &b)
	require.Empty(t, changed)
	require.Empty(t, attrs)

	b.Logging.Level = "debug"
	b.Storage.Path = "./other.json"
	b.Scheduler.Timezone = "UTC"
	changed, attrs = SummarizeConfigChange(a, &b)
	require.Equal(t, []string{"logging", "scheduler", "storage"}, changed)
	require.NotEmpty(t, attrs)
	require.True(t, StorageChanged(a, &b))

	b = *a
	b.Telegram.Token = "rotated"
	changed, _ = SummarizeConfigChange(a, &b)
	require.Equal(t, []string{"telegram"}, changed)
}

func TestWatchPublishesChanges(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	var got *Config
	require.Eventually(t, func() bool {
		select {
		case got = <-ch:
			return true
		default:
		}
		// Rewrite until the watcher is up and sees it.
		_ = os.WriteFile(p, []byte(`{"logging": {"level": "debug"}}`), 0o600)
		return false
	}, 10*time.Second, 400*time.Millisecond)
	require.Equal(t, "debug", got.Logging.Level)
	require.Equal(t, "debug", m.Get().Logging.Level)

	// A config that fails validation is not published.
	writeFile(t, dir, "config.json", `{"scheduler": {"timezone": "Nowhere/Land"}}`)
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, "debug", m.Get().Logging.Level)

	cancel()
	require.NoError(t, <-done)
}
