package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	base := slog.New(handler)

	logger := WithRequest(base, "203.0.113.7", "req-123")
	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "host=203.0.113.7") {
		t.Errorf("Expected host in output, got: %s", output)
	}
	if !strings.Contains(output, "request_id=req-123") {
		t.Errorf("Expected request_id in output, got: %s", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected message in output, got: %s", output)
	}
}

func TestWithRequest_NilLogger(t *testing.T) {
	if logger := WithRequest(nil, "host", "id"); logger != nil {
		t.Error("WithRequest(nil, ...) should return nil")
	}
}

func TestInitialize_ComponentFilter(t *testing.T) {
	var buf bytes.Buffer
	if err := Initialize(Config{Level: "debug", Components: []string{"engine"}, Console: &buf}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Initialize(Config{Level: "error", Console: &bytes.Buffer{}})
	})

	Engine().Info("engine_event")
	Web().Info("web_event")

	output := buf.String()
	if !strings.Contains(output, "engine_event") || !strings.Contains(output, "component=engine") {
		t.Errorf("Expected engine record in output, got: %s", output)
	}
	if strings.Contains(output, "web_event") {
		t.Errorf("web component should be filtered out, got: %s", output)
	}
}

func TestInitialize_Level(t *testing.T) {
	var buf bytes.Buffer
	if err := Initialize(Config{Level: "warn", Console: &buf}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Initialize(Config{Level: "error", Console: &bytes.Buffer{}})
	})

	Get().Info("quiet")
	Get().Warn("loud")

	output := buf.String()
	if strings.Contains(output, "quiet") {
		t.Errorf("info record should be dropped at warn level, got: %s", output)
	}
	if !strings.Contains(output, "loud") {
		t.Errorf("warn record missing, got: %s", output)
	}
}

func TestInitialize_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Initialize(Config{Level: "info", JSON: true, Console: &buf}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Initialize(Config{Level: "error", Console: &bytes.Buffer{}})
	})

	ConfigFile().Info("config_loaded", "path", "/tmp/x.yaml")

	output := buf.String()
	if !strings.Contains(output, `"msg":"config_loaded"`) || !strings.Contains(output, `"component":"config"`) {
		t.Errorf("Expected JSON record, got: %s", output)
	}
}

func TestInitialize_FileWithSeparateLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanblock.log")
	var console bytes.Buffer

	err := Initialize(Config{
		Level:     "warn",
		FileLevel: "debug",
		File:      &FileConfig{Path: path},
		Console:   &console,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
		_ = Initialize(Config{Level: "error", Console: &bytes.Buffer{}})
	})

	Get().Debug("only_in_file")
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "only_in_file") {
		t.Errorf("debug record missing from file, got: %s", data)
	}
	if strings.Contains(console.String(), "only_in_file") {
		t.Errorf("debug record should not reach the console, got: %s", console.String())
	}
}

func TestValidLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"debug", true},
		{"INFO", true},
		{"warning", true},
		{"error", true},
		{"trace", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidLevel(tt.level); got != tt.want {
			t.Errorf("ValidLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.level); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
