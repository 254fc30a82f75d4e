// Package eventlog appends gameplay events as zstd-compressed JSONL,
// rotated hourly. The log is append-only and survives index corruption; the
// sqlite index can always be rebuilt from it.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SessionEntry records a client joining or leaving.
type SessionEntry struct {
	Tick     uint64 `json:"tick"`
	ClientID uint64 `json:"client_id"`
	Event    string `json:"event"` // "connect" or "disconnect"
	Score    int    `json:"score,omitempty"`
}

// ChatEntry records one rebroadcast chat line.
type ChatEntry struct {
	Tick     uint64 `json:"tick"`
	ClientID uint64 `json:"client_id"`
	Text     string `json:"text"`
}

// TickEntry is a per-tick load sample.
type TickEntry struct {
	Tick           uint64 `json:"tick"`
	Players        int    `json:"players"`
	ResidentChunks int    `json:"resident_chunks"`
	QueuedGen      int    `json:"queued_gen"`
}

// Writer appends JSON lines through a zstd encoder, starting a new file
// every UTC hour.
type Writer struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix}
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Logger groups the three event streams under one directory.
type Logger struct {
	sessions *Writer
	chat     *Writer
	ticks    *Writer
}

func NewLogger(dir string) *Logger {
	return &Logger{
		sessions: NewWriter(dir, "sessions"),
		chat:     NewWriter(dir, "chat"),
		ticks:    NewWriter(dir, "ticks"),
	}
}

func (l *Logger) WriteSession(e SessionEntry) error { return l.sessions.Write(e) }
func (l *Logger) WriteChat(e ChatEntry) error       { return l.chat.Write(e) }
func (l *Logger) WriteTick(e TickEntry) error       { return l.ticks.Write(e) }

func (l *Logger) Close() error {
	err := l.sessions.Close()
	if e := l.chat.Close(); err == nil {
		err = e
	}
	if e := l.ticks.Close(); err == nil {
		err = e
	}
	return err
}

// ReadAll decodes every JSON line from one compressed log file into out's
// element type. Used by the replay tool and by index rebuilds.
func ReadAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var entries []T
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e T
		if err := json.Unmarshal(line, &e); err != nil {
			return entries, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// Files lists the rotated log files for one stream prefix, oldest first.
func Files(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}
