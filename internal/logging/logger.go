// Package logging provides leveled logging and decision tracing for simwrap.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (INFO settings applied, WARN ignored
//     input, ERROR aborts)
//   - A DecisionLogger for a structured JSONL trace of every resolution
//     decision (<output>/decisions.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/simwrap/internal/constants"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level every parsed template parameter is logged.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Used when a caller passes
// a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// DecisionLogger writes structured decision events to a JSONL file.
// It is safe for concurrent use. A nil DecisionLogger is safe to use;
// all methods are no-ops on nil receiver.
type DecisionLogger struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	runID string
}

// NewDecisionLogger creates a decision logger writing to dir/decisions.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewDecisionLogger(dir, level, runID string) *DecisionLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, constants.DecisionLogName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &DecisionLogger{file: f, path: path, runID: runID}
}

// Log writes a decision event as a single JSONL line.
// "time" and "run_id" fields are added automatically. The caller's map is not
// mutated. Safe to call on nil receiver.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}

	entry := make(map[string]any, len(event)+2)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	if dl.runID != "" {
		entry["run_id"] = dl.runID
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.file == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = dl.file.Write(data)
}

// Path returns the file the logger appends to, or "" on a nil receiver.
func (dl *DecisionLogger) Path() string {
	if dl == nil {
		return ""
	}
	return dl.path
}

// Close closes the underlying file. Safe to call on nil receiver.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.file != nil {
		dl.file.Close()
		dl.file = nil
	}
}
