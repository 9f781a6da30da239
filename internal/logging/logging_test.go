package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rickgao/union-data/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept", "shard", "ETHEREUM")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["shard"] != "ETHEREUM" {
		t.Errorf("record = %v", rec)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.Info("hello", "k", "v")

	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestFileRotationTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "union.log")
	var buf bytes.Buffer
	logger, closer := newLogger(config.LoggingConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1}, &buf)

	logger.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("file = %q, want the record", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stdout = %q, want the record", buf.String())
	}
}
