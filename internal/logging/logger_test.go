package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != InfoLevel {
		t.Errorf("expected InfoLevel, got %v", cfg.Level)
	}
	if cfg.Output != os.Stderr {
		t.Error("expected os.Stderr output")
	}
	if cfg.Pretty {
		t.Error("expected Pretty to be false")
	}
	if cfg.TimeFormat != time.RFC3339 {
		t.Errorf("expected RFC3339, got %s", cfg.TimeFormat)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{" debug ", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: InfoLevel, Output: &buf})
	l.Info().Str("style", "gentle").Msg("style applied")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if rec["style"] != "gentle" || rec["message"] != "style applied" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: WarnLevel, Output: &buf})
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	l.Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("expected warn to be written")
	}
}

func TestFor_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	Init(Config{Level: DebugLevel, Output: &buf, TimeFormat: time.RFC3339})
	l := For("monitor")
	l.Debug().Msg("tick")
	if !strings.Contains(buf.String(), `"component":"monitor"`) {
		t.Fatalf("expected component field, got %q", buf.String())
	}
}
