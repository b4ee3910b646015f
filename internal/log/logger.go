// Package log is chatlite's logging layer: slog with a selectable sink
// (console, rotating file, or a local sqlite database) plus a small
// in-memory tail the server exposes for quick inspection.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config selects the sink and its tuning.
type Config struct {
	Mode   string // console, file, database
	Level  string // debug, info, warn, error
	Format string // text or json; console and file sinks only

	// File sink
	FilePath   string
	MaxSizeMB  int // rotate after this many megabytes
	MaxBackups int // rotated files to keep
	MaxAgeDays int // rotated files older than this are pruned

	// Database sink
	DBPath        string
	RetentionDays int // rows older than this are swept hourly

	// Recent-line tail served by GET /logs. 0 disables it.
	BufferLines int
}

// DefaultConfig returns the relay's stock logging setup.
func DefaultConfig() *Config {
	return &Config{
		Mode:          "console",
		Level:         "info",
		Format:        "text",
		FilePath:      "chatlite.log",
		MaxSizeMB:     50,
		MaxBackups:    5,
		MaxAgeDays:    14,
		DBPath:        "chatlite-logs.db",
		RetentionDays: 14,
		BufferLines:   500,
	}
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a level name to its slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

var (
	mu      sync.RWMutex
	current *slog.Logger
	tail    *Tail
	sink    io.Closer
)

// Init builds the configured sink and installs it as both the package
// and slog default. Calling it again swaps the sink and closes the
// previous one.
func Init(cfg *Config) error {
	handler, closer, err := newSink(cfg)
	if err != nil {
		return err
	}

	var tl *Tail
	if cfg.BufferLines > 0 {
		tl = NewTail(cfg.BufferLines)
		handler = teeToTail(handler, tl)
	}

	mu.Lock()
	old := sink
	current = slog.New(handler)
	tail = tl
	sink = closer
	slog.SetDefault(current)
	mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func newSink(cfg *Config) (slog.Handler, io.Closer, error) {
	level := ParseLevel(cfg.Level)
	switch cfg.Mode {
	case "", "console":
		return consoleHandler(os.Stdout, cfg.Format, level), nil, nil
	case "file":
		w, err := openRotatingFile(cfg.FilePath, int64(cfg.MaxSizeMB)<<20, cfg.MaxBackups, cfg.MaxAgeDays)
		if err != nil {
			return nil, nil, err
		}
		return consoleHandler(w, cfg.Format, level), w, nil
	case "database":
		h, err := newSQLiteHandler(cfg, level)
		if err != nil {
			return nil, nil, err
		}
		return h, h, nil
	default:
		return nil, nil, fmt.Errorf("unknown log mode %q (want console, file, or database)", cfg.Mode)
	}
}

// consoleHandler formats records as text or json on the given writer.
func consoleHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Logger returns the active logger, or the slog default before Init.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return slog.Default()
	}
	return current
}

// Component returns a logger tagged for one subsystem, e.g. "relay".
func Component(name string) *slog.Logger {
	return Logger().With("component", name)
}

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// RecentLines returns up to n buffered log lines, oldest first. Nil
// when the tail is disabled.
func RecentLines(n int) []string {
	mu.RLock()
	defer mu.RUnlock()
	if tail == nil {
		return nil
	}
	return tail.Last(n)
}

// Close releases the active sink (file handles, the log database).
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		return nil
	}
	err := sink.Close()
	sink = nil
	return err
}
