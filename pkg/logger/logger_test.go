package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatflow/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "session").Info("Event prevented", "request_id", "42", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Event prevented" {
		t.Fatalf("message = %q, want %q", entry.Message, "Event prevented")
	}
	if entry.Component != "session" {
		t.Fatalf("component = %q, want %q", entry.Component, "session")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["request_id"]; got != "42" {
		t.Fatalf("fields.request_id = %v, want %q", got, "42")
	}
	if got := entry.Fields["ok"]; got != true {
		t.Fatalf("fields.ok = %v, want true", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	t.Setenv("CHATFLOW_LOG_LEVEL", "debug")
	t.Setenv("CHATFLOW_LOG_FORMAT", "text")
	defer unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv("CHATFLOW_LOG_LEVEL")
	_ = os.Unsetenv("CHATFLOW_LOG_FORMAT")
	_ = os.Unsetenv("CHATFLOW_LOG_ADD_SOURCE")
}

func TestForTagsComponent(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	For(log, "toast").Info("Toast shown")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry.Component != "toast" {
		t.Fatalf("component = %q, want %q", entry.Component, "toast")
	}
}

func TestNewFileWritesToPath(t *testing.T) {
	unsetLoggingEnv(t)

	path := filepath.Join(t.TempDir(), "chatflow.log")
	log, closer, err := NewFile(config.LoggingConfig{Format: "json"}, path)
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	log.Info("Written")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "Written") {
		t.Fatalf("log file = %q, want entry", content)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithSessionLiftsSessionID(t *testing.T) {
	unsetLoggingEnv(t)

	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	For(WithSession(log, "s-1"), "messages").Warn("save failed", "error", errors.New("disk full"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Session != "s-1" || entry.Component != "messages" {
		t.Fatalf("entry = %+v, want session s-1 and component messages", entry)
	}
	if entry.Fields["error"] != "disk full" {
		t.Fatalf("error field = %#v, want disk full", entry.Fields["error"])
	}
	if _, ok := entry.Fields["session_id"]; ok {
		t.Fatal("session id must not be duplicated into fields")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "debug", want: slog.LevelDebug},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "info+2", wantErr: true},
		{input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseLevel(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("parseLevel(%q) = (%v, %v), want %v", tt.input, got, err, tt.want)
		}
	}
}

func TestJSONHandlerPrefixesGroups(t *testing.T) {
	unsetLoggingEnv(t)

	var buf bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.WithGroup("stream").With("sender", "BOT").Info("Chunk", "size", 3)

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Fields["stream.sender"] != "BOT" || entry.Fields["stream.size"] != float64(3) {
		t.Fatalf("fields = %#v, want grouped keys", entry.Fields)
	}
}
