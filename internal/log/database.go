package log

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const logSchemaSQL = `
CREATE TABLE IF NOT EXISTS log_entries (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    logged_at TEXT NOT NULL,
    level     TEXT NOT NULL,
    message   TEXT NOT NULL,
    conn_id   TEXT,
    user_id   TEXT,
    channel   TEXT,
    attrs     TEXT
);
CREATE INDEX IF NOT EXISTS idx_log_entries_logged_at ON log_entries(logged_at);
CREATE INDEX IF NOT EXISTS idx_log_entries_level ON log_entries(level);
`

// sqliteHandler persists records to a local sqlite database so a relay
// deployment can be inspected after the fact without shipping logs
// anywhere. The relay's standard keys (conn_id, user_id, channel) get
// their own columns; everything else lands in an attrs JSON blob.
type sqliteHandler struct {
	db     *sql.DB
	insert *sql.Stmt
	level  slog.Level
	attrs  []slog.Attr
	retain time.Duration
	stop   chan struct{}
	once   *sync.Once
}

func newSQLiteHandler(cfg *Config, level slog.Level) (*sqliteHandler, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(logSchemaSQL); err != nil {
		db.Close()
		return nil, err
	}
	insert, err := db.Prepare(`
		INSERT INTO log_entries (logged_at, level, message, conn_id, user_id, channel, attrs)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	h := &sqliteHandler{
		db:     db,
		insert: insert,
		level:  level,
		retain: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		stop:   make(chan struct{}),
		once:   &sync.Once{},
	}
	h.sweep()
	go h.sweepLoop()
	return h, nil
}

func (h *sqliteHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *sqliteHandler) Handle(_ context.Context, r slog.Record) error {
	var connID, userID, channel sql.NullString
	extra := make(map[string]any)
	collect := func(a slog.Attr) {
		switch a.Key {
		case "conn_id":
			connID = sql.NullString{String: a.Value.String(), Valid: true}
		case "user_id":
			userID = sql.NullString{String: a.Value.String(), Valid: true}
		case "channel":
			channel = sql.NullString{String: a.Value.String(), Valid: true}
		default:
			extra[a.Key] = a.Value.Any()
		}
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	var attrs sql.NullString
	if len(extra) > 0 {
		if data, err := json.Marshal(extra); err == nil {
			attrs = sql.NullString{String: string(data), Valid: true}
		}
	}

	_, err := h.insert.Exec(
		r.Time.UTC().Format(time.RFC3339Nano),
		r.Level.String(),
		r.Message,
		connID, userID, channel, attrs,
	)
	return err
}

func (h *sqliteHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	clone := *h
	clone.attrs = merged
	return &clone
}

// WithGroup is a no-op: grouped attributes flatten into attrs.
func (h *sqliteHandler) WithGroup(string) slog.Handler { return h }

func (h *sqliteHandler) sweepLoop() {
	tick := time.NewTicker(time.Hour)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			h.sweep()
		case <-h.stop:
			return
		}
	}
}

// sweep deletes rows past the retention window.
func (h *sqliteHandler) sweep() {
	if h.retain <= 0 {
		return
	}
	cutoff := time.Now().Add(-h.retain).UTC().Format(time.RFC3339Nano)
	h.db.Exec(`DELETE FROM log_entries WHERE logged_at < ?`, cutoff)
}

func (h *sqliteHandler) Close() error {
	h.once.Do(func() { close(h.stop) })
	h.insert.Close()
	return h.db.Close()
}
