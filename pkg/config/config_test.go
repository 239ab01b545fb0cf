package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatflow.json")
	content := `{
	  "session": {"id": "demo", "entry_step": "welcome", "block_spam": true},
	  "toast": {"max_count": 5, "forbid_on_max": true},
	  "history": {"max_entries": 10, "storage_key": "demo_history"},
	  "storage": {"driver": "bolt", "bolt": {"path": "/tmp/chat.db"}},
	  "stream": {"interval_ms": 15},
	  "events": {"change-path": false},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CHATFLOW_CONFIG", path)
	t.Setenv("CHATFLOW_REDIS_ADDR", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Session.EntryStep != "welcome" {
		t.Fatalf("session.entry_step = %q, want %q", cfg.Session.EntryStep, "welcome")
	}
	if !cfg.Session.BlockSpam {
		t.Fatal("session.block_spam = false, want true")
	}
	if cfg.Toast.MaxCount != 5 || !cfg.Toast.ForbidOnMax {
		t.Fatalf("toast = %#v", cfg.Toast)
	}
	if cfg.Storage.Bolt.Bucket != "chatflow" {
		t.Fatalf("storage.bolt.bucket = %q, want default", cfg.Storage.Bolt.Bucket)
	}
	if got := cfg.Stream.Interval(); got != 15*time.Millisecond {
		t.Fatalf("stream interval = %v, want 15ms", got)
	}
	if cfg.Events.Enabled("change-path") {
		t.Fatal("expected change-path to be disabled")
	}
	if !cfg.Events.Enabled("show-toast") {
		t.Fatal("expected unlisted events to stay enabled")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource {
		t.Fatalf("logging = %#v", cfg.Logging)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("CHATFLOW_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadFileRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatflow.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Session.EntryStep != "start" {
		t.Fatalf("entry step = %q, want start", cfg.Session.EntryStep)
	}
	if cfg.Toast.MaxCount != 3 {
		t.Fatalf("toast max = %d, want 3", cfg.Toast.MaxCount)
	}
	if cfg.History.MaxEntries != 30 {
		t.Fatalf("history max = %d, want 30", cfg.History.MaxEntries)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Provider.Name != "echo" {
		t.Fatalf("provider = %q, want echo", cfg.Provider.Name)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATFLOW_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("CHATFLOW_HISTORY_KEY", "override_key")
	t.Setenv("CHATFLOW_FLOW", "flows/demo.yaml")
	t.Setenv("CHATFLOW_SPEECH_VOICES", "alice, ,bob")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Storage.Driver != "redis" || cfg.Storage.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("storage = %#v", cfg.Storage)
	}
	if cfg.History.StorageKey != "override_key" {
		t.Fatalf("history key = %q", cfg.History.StorageKey)
	}
	if cfg.Flow.Path != "flows/demo.yaml" {
		t.Fatalf("flow path = %q", cfg.Flow.Path)
	}
	if len(cfg.Speech.Voices) != 2 || cfg.Speech.Voices[1] != "bob" {
		t.Fatalf("voices = %#v", cfg.Speech.Voices)
	}
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	t.Setenv("CHATFLOW_CONFIG", "")
	t.Setenv("CHATFLOW_FLOW", "/tmp/flow.yaml")
	t.Chdir(t.TempDir())

	cfg, err := LoadOrDefault()
	if err != nil {
		t.Fatalf("LoadOrDefault error: %v", err)
	}
	if cfg.Session.EntryStep != "start" {
		t.Fatalf("session.entry_step = %q, want start", cfg.Session.EntryStep)
	}
	if cfg.Flow.Path != "/tmp/flow.yaml" {
		t.Fatalf("flow.path = %q, want env override", cfg.Flow.Path)
	}
}

func TestLoadOrDefaultKeepsParseErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatflow.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CHATFLOW_CONFIG", path)

	if _, err := LoadOrDefault(); err == nil {
		t.Fatal("expected parse error")
	}
}
