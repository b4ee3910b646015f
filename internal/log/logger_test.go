package log

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "console", cfg.Mode)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "chatlite.log", cfg.FilePath)
	assert.Equal(t, "chatlite-logs.db", cfg.DBPath)
	assert.Equal(t, 500, cfg.BufferLines)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range cases {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestInitUnknownMode(t *testing.T) {
	err := Init(&Config{Mode: "syslog"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syslog")
}

func TestInitTeesToTail(t *testing.T) {
	// An error-level sink keeps stdout quiet; the tail still captures
	// every level.
	require.NoError(t, Init(&Config{Mode: "console", Level: "error", BufferLines: 16}))
	defer Close()

	Debug("relay: connected", "conn_id", "c1", "user_id", "alice")
	Info("relay: joined channel", "conn_id", "c1", "channel", "room:lobby")

	lines := RecentLines(10)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "conn_id=c1")
	assert.Contains(t, lines[1], "channel=room:lobby")
}

func TestComponentLogger(t *testing.T) {
	require.NoError(t, Init(&Config{Mode: "console", Level: "error", BufferLines: 16}))
	defer Close()

	Component("relay").Info("draining connections")

	lines := RecentLines(1)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "component=relay")
	assert.Contains(t, lines[0], "draining connections")
}

func TestRecentLinesWithoutTail(t *testing.T) {
	require.NoError(t, Init(&Config{Mode: "console", Level: "error"}))
	defer Close()

	assert.Nil(t, RecentLines(5))
}
