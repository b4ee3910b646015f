package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// rotatingFile appends to a log file and rotates it once the size limit
// is crossed. Rotated files keep a timestamp suffix and are pruned by
// count and age. It counts bytes as they are written, so rotation never
// needs to stat or seek.
type rotatingFile struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	written int64
	limit   int64
	keep    int
	maxAge  time.Duration
}

func openRotatingFile(path string, limit int64, keep, maxAgeDays int) (*rotatingFile, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if limit <= 0 {
		limit = 50 << 20
	}
	return &rotatingFile{
		path:    path,
		file:    f,
		written: info.Size(),
		limit:   limit,
		keep:    keep,
		maxAge:  time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (w *rotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.limit && w.written > 0 {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingFile) rotate() error {
	w.file.Close()
	stamp := time.Now().UTC().Format("20060102-150405.000000000")
	if err := os.Rename(w.path, w.path+"."+stamp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log file: %w", err)
	}
	w.prune()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen log file: %w", err)
	}
	w.file = f
	w.written = 0
	return nil
}

// prune drops rotated files over the keep count, then anything older
// than maxAge. Timestamp suffixes sort lexically, oldest first.
func (w *rotatingFile) prune() {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil || len(matches) == 0 {
		return
	}
	sort.Strings(matches)
	for len(matches) > w.keep {
		os.Remove(matches[0])
		matches = matches[1:]
	}
	if w.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.maxAge)
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(m)
		}
	}
}

func (w *rotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
