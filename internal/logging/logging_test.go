package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})

	l.Info().Msg("dropped")
	Component(l, "cache").Warn().Str("scope", "music_list").Msg("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), buf.String())
	}
	if lines[0]["component"] != "cache" || lines[0]["scope"] != "music_list" || lines[0]["message"] != "kept" {
		t.Errorf("unexpected line %v", lines[0])
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	var ce *cache.ConfigError
	if err := (Config{Level: "info", Format: "xml"}).Validate(); !errors.As(err, &ce) || ce.Field != "Format" {
		t.Errorf("expected Format ConfigError, got %v", err)
	}
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf})
	adapter := Watermill(l).With(watermill.LogFields{"handler": "ingest"})

	adapter.Error("handler failed", errors.New("boom"), watermill.LogFields{"attempt": 2})
	adapter.Info("router started", nil)
	adapter.Trace("not emitted", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["level"] != "error" || lines[0]["error"] != "boom" || lines[0]["handler"] != "ingest" {
		t.Errorf("unexpected error line %v", lines[0])
	}
	if lines[0]["attempt"] != float64(2) {
		t.Errorf("fields not forwarded: %v", lines[0])
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := Slog(New(Config{Level: "info", Output: &buf}))

	logger.Debug("hidden")
	logger.With("service", "worker").WithGroup("event").Warn("restart", "attempt", 3, "err", errors.New("crash"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	line := lines[0]
	if line["level"] != "warn" || line["message"] != "restart" {
		t.Errorf("unexpected line %v", line)
	}
	if line["service"] != "worker" || line["event.attempt"] != float64(3) || line["event.err"] != "crash" {
		t.Errorf("attributes not mapped: %v", line)
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	h := NewSlogHandler(New(Config{Level: "error", Output: &bytes.Buffer{}}))
	if h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled at error level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}
}
