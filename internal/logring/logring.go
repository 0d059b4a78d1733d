// Package logring implements a bounded in-memory ring of formatted log
// lines backed by an optional debounced on-disk tail, so an operator can
// pull recent agent activity without shelling into the host.
package logring

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultCapacity is the ring's line cap when Config.Capacity is unset.
const DefaultCapacity = 1000

// DefaultFlushDebounce is how long Add waits after the first unflushed
// line before appending the pending batch to disk.
const DefaultFlushDebounce = time.Second

// Config configures a Buffer. Capacity and FlushDebounce fall back to their
// Default* constants when zero. Persistence is enabled by setting Path.
type Config struct {
	Capacity      int
	Path          string
	FileMaxSizeMB int
	FileMaxFiles  int
	FlushDebounce time.Duration
}

// Buffer is a bounded FIFO of formatted log lines with optional debounced
// disk persistence. The zero value is not usable; construct with New.
type Buffer struct {
	mu            sync.Mutex
	capacity      int
	lines         []string
	pending       []string
	flushDebounce time.Duration
	flushTimer    *time.Timer
	writer        *lumberjack.Logger
	logger        *slog.Logger
}

// New constructs a Buffer per cfg. When cfg.Path is set, persistence is
// enabled: writes are routed through lumberjack (rotation at
// FileMaxSizeMB, keeping FileMaxFiles-1 rotated siblings), and the
// existing file's tail (up to Capacity lines) is loaded into the ring so
// Get returns historical context immediately after a restart.
func New(cfg Config, logger *slog.Logger) (*Buffer, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	debounce := cfg.FlushDebounce
	if debounce <= 0 {
		debounce = DefaultFlushDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Buffer{
		capacity:      capacity,
		flushDebounce: debounce,
		logger:        logger,
	}

	if cfg.Path != "" {
		maxBackups := cfg.FileMaxFiles - 1
		if maxBackups < 0 {
			maxBackups = 0
		}
		b.writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.FileMaxSizeMB,
			MaxBackups: maxBackups,
		}

		tail, err := tailFile(cfg.Path, capacity)
		if err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to load log buffer tail on startup", "path", cfg.Path, "error", err)
		}
		b.lines = tail
	}

	return b, nil
}

// Add appends line to the ring, evicting the oldest entry on overflow, and
// (when persistence is enabled) schedules a debounced flush to disk.
func (b *Buffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.capacity; over > 0 {
		b.lines = b.lines[over:]
	}

	if b.writer == nil {
		return
	}
	b.pending = append(b.pending, line)
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.flushDebounce, b.flush)
	}
}

// Clear empties the in-memory ring, typically called when a managed
// process restarts so its log view does not mix output across runs. Any
// on-disk history from prior runs is left untouched.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// Get returns a copy of the last limit entries, or the whole buffer when
// limit is zero, negative, or at least the current length.
func (b *Buffer) Get(limit int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit >= len(b.lines) {
		out := make([]string, len(b.lines))
		copy(out, b.lines)
		return out
	}
	start := len(b.lines) - limit
	out := make([]string, limit)
	copy(out, b.lines[start:])
	return out
}

// flush appends the pending batch to disk. Rotation is lumberjack's
// concern: it checks the current file size against MaxSize on every Write
// and rotates before writing if needed, so this method does not duplicate
// that check. A write failure returns the batch to the front of pending
// for retry on the next debounced flush; the caller of Add is never told.
func (b *Buffer) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.flushTimer = nil
	b.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	data := strings.Join(pending, "\n") + "\n"
	if _, err := b.writer.Write([]byte(data)); err != nil {
		b.logger.Warn("log buffer flush failed, will retry", "error", err, "lines", len(pending))
		b.mu.Lock()
		b.pending = append(pending, b.pending...)
		if b.flushTimer == nil {
			b.flushTimer = time.AfterFunc(b.flushDebounce, b.flush)
		}
		b.mu.Unlock()
	}
}

// Close flushes any pending lines synchronously and closes the underlying
// file, if persistence is enabled.
func (b *Buffer) Close() error {
	b.mu.Lock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.mu.Unlock()

	b.flush()

	if b.writer == nil {
		return nil
	}
	return b.writer.Close()
}

// tailFile reads up to maxLines lines from the end of path.
func tailFile(path string, maxLines int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("logring: scanning tail: %w", err)
	}
	return lines, nil
}
