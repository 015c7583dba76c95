package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"bumd-go/internal/config"
)

// LogFileName is the name of the rotating log file inside the log directory.
const LogFileName = "bumd.log"

// bumdHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Every enabled record goes to w. Records at warn level and above are also
// written to stderr when it is set.
type bumdHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	stderr io.Writer
	level  slog.Leveler
	opID   string
	attrs  []slog.Attr
}

func (h *bumdHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *bumdHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.opID, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	if _, err := h.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if h.stderr != nil && r.Level >= slog.LevelWarn {
		if _, err := h.stderr.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (h *bumdHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &bumdHandler{
		mu:     h.mu,
		w:      h.w,
		stderr: h.stderr,
		level:  h.level,
		opID:   h.opID,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *bumdHandler) WithGroup(string) slog.Handler { return h }

// ParseLevel maps a config level name to a slog level. Unknown names are an
// error; an empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// newLogger creates a structured logger that writes to a rotating
// <cfg.Dir>/bumd.log and mirrors warnings and errors to stderr.
// It returns the slog.Logger and the log file for cleanup.
func newLogger(cfg config.LogConfig, opID string, level slog.Level, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, LogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	handler := &bumdHandler{
		mu:     &sync.Mutex{},
		w:      f,
		stderr: stderr,
		level:  level,
		opID:   opID,
	}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the bumd.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
