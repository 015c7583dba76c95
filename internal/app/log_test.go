package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bumd-go/internal/config"
)

func TestBumdHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "backup complete",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tbackup complete\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "subject committed",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tsubject committed\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "backup started",
			attrs:   []slog.Attr{slog.String("host", "alpha"), slog.Int64("run", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tbackup started\thost=alpha\trun=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &bumdHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestBumdHandler_StderrMirror(t *testing.T) {
	var file, stderr bytes.Buffer
	h := &bumdHandler{w: &file, stderr: &stderr, opID: "op-1"}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, level := range []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if err := h.Handle(context.Background(), slog.NewRecord(ts, level, "msg", 0)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	if got := strings.Count(file.String(), "\n"); got != 3 {
		t.Errorf("file lines = %d, want 3", got)
	}
	if got := strings.Count(stderr.String(), "\n"); got != 2 {
		t.Errorf("stderr lines = %d, want 2", got)
	}
	if strings.Contains(stderr.String(), "INFO") {
		t.Errorf("info record mirrored to stderr: %q", stderr.String())
	}
}

func TestBumdHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &bumdHandler{w: &buf, opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "restore")}).(*bumdHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "file restored", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=restore") {
		t.Errorf("expected pre-set attr component=restore, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
}

func TestBumdHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &bumdHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*bumdHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestBumdHandler_Enabled(t *testing.T) {
	t.Run("no level enables everything", func(t *testing.T) {
		h := &bumdHandler{}
		for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
			if !h.Enabled(context.Background(), level) {
				t.Errorf("Enabled(%v) = false, want true", level)
			}
		}
	})

	t.Run("filters below level", func(t *testing.T) {
		h := &bumdHandler{level: slog.LevelInfo}
		if h.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("Enabled(DEBUG) = true, want false")
		}
		if !h.Enabled(context.Background(), slog.LevelWarn) {
			t.Error("Enabled(WARN) = false, want true")
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	var stderr bytes.Buffer

	logger, f, err := newLogger(config.LogConfig{Dir: dir, MaxSizeMB: 1}, "test-op", slog.LevelInfo, &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("written")
	logger.Warn("mirrored")
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := string(data)
	if strings.Contains(got, "hidden") {
		t.Errorf("debug record written at info level: %q", got)
	}
	if !strings.Contains(got, "\ttest-op\twritten") || !strings.Contains(got, "mirrored") {
		t.Errorf("log file = %q, want info and warn records", got)
	}
	if !strings.Contains(stderr.String(), "mirrored") || strings.Contains(stderr.String(), "written") {
		t.Errorf("stderr = %q, want only the warning", stderr.String())
	}
}
