package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Tail keeps the most recent formatted log lines in memory so the
// server can expose them without touching the sink.
type Tail struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func NewTail(max int) *Tail {
	if max <= 0 {
		max = 500
	}
	return &Tail{max: max}
}

// Add appends a line, evicting the oldest once the tail is full.
func (t *Tail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, strings.TrimRight(line, "\n"))
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// Last returns up to n lines, oldest first.
func (t *Tail) Last(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.lines) {
		n = len(t.lines)
	}
	if n <= 0 {
		return []string{}
	}
	out := make([]string, n)
	copy(out, t.lines[len(t.lines)-n:])
	return out
}

// Len returns the number of buffered lines.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

// tailHandler renders every record through a shared text handler into
// the tail, then forwards it to the sink. The tail sees all levels; the
// sink keeps its own filter.
type tailHandler struct {
	next slog.Handler
	tail *Tail
	mu   *sync.Mutex
	buf  *bytes.Buffer
	text slog.Handler
}

func teeToTail(next slog.Handler, t *Tail) slog.Handler {
	buf := &bytes.Buffer{}
	return &tailHandler{
		next: next,
		tail: t,
		mu:   &sync.Mutex{},
		buf:  buf,
		text: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
}

func (h *tailHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *tailHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	h.buf.Reset()
	if err := h.text.Handle(ctx, r); err == nil {
		h.tail.Add(h.buf.String())
	}
	h.mu.Unlock()

	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *tailHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tailHandler{
		next: h.next.WithAttrs(attrs),
		tail: h.tail,
		mu:   h.mu,
		buf:  h.buf,
		text: h.text.WithAttrs(attrs),
	}
}

func (h *tailHandler) WithGroup(name string) slog.Handler {
	return &tailHandler{
		next: h.next.WithGroup(name),
		tail: h.tail,
		mu:   h.mu,
		buf:  h.buf,
		text: h.text.WithGroup(name),
	}
}
