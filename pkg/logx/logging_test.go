package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "scheduler"))
	log.Info("armed", Int64("owner", 42), Err(errors.New("boom")), Err(nil))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "armed", m["message"])
	require.Equal(t, "scheduler", m["comp"])
	require.EqualValues(t, 42, m["owner"])
	require.Equal(t, "boom", m["err"])
	require.Contains(t, m["caller"], "logging_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	require.Zero(t, buf.Len())
	require.False(t, log.Enabled(LevelDebug))
	require.True(t, log.Enabled(LevelError))

	log.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestZeroAndNop(t *testing.T) {
	t.Parallel()

	var zero Logger
	require.True(t, zero.IsZero())
	zero.Error("dropped")

	require.False(t, Nop().IsZero())
	Nop().Info("dropped")
}

func TestFormatTelegramLine(t *testing.T) {
	t.Parallel()

	line := `{"level":"error","time":"x","message":"store write failed","path":"/tmp/a","comp":"storage"}`
	got := formatTelegramLine([]byte(line))
	require.Equal(t, "[ERROR] store write failed\n- comp=storage\n- path=/tmp/a", got)

	require.Equal(t, "plain", formatTelegramLine([]byte("  plain \n")))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, zerolog.WarnLevel, parseLevel("warning", zerolog.InfoLevel))
	require.Equal(t, zerolog.InfoLevel, parseLevel("bogus", zerolog.InfoLevel))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
