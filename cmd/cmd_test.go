package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatflow/pkg/config"
	"chatflow/pkg/history"
	"chatflow/pkg/model"
)

func TestLoadFlowUsesBuiltinByDefault(t *testing.T) {
	steps, source, err := loadFlow("", "start")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if source != "builtin" {
		t.Fatalf("source = %q, want builtin", source)
	}
	if !steps.Has("start") {
		t.Fatal("expected builtin flow to contain the start step")
	}
}

func TestLoadFlowValidatesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	if err := os.WriteFile(path, []byte("hello:\n  message: hi\n"), 0o600); err != nil {
		t.Fatalf("write flow: %v", err)
	}

	if _, _, err := loadFlow(path, "start"); err == nil {
		t.Fatal("expected error for missing entry step")
	}
	if _, source, err := loadFlow(path, "hello"); err != nil || source != path {
		t.Fatalf("loadFlow = (%q, %v), want (%q, nil)", source, err, path)
	}
}

func TestFlowCheckCommand(t *testing.T) {
	t.Setenv("CHATFLOW_CONFIG", "")
	t.Setenv("CHATFLOW_FLOW", "")
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"flow", "check"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("flow check failed: %v", err)
	}
	if !strings.Contains(out.String(), `builtin: 4 steps, entry "start" ok`) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestPrintEntries(t *testing.T) {
	var empty bytes.Buffer
	printEntries(&empty, nil)
	if empty.String() != "no history\n" {
		t.Fatalf("printEntries(nil) = %q", empty.String())
	}

	var out bytes.Buffer
	printEntries(&out, []history.Entry{{
		Content:   "hello\nthere",
		Sender:    model.SenderBot,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
	}})
	if got := out.String(); got != "2026-01-02 03:04:05  BOT     hello there\n" {
		t.Fatalf("printEntries = %q", got)
	}
}

func TestNewHistoryStoreRoundTripsThroughBolt(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "bolt"
	cfg.Storage.Bolt.Path = filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, closeStore, err := newHistoryStore(cfg, slog.Default())
	if err != nil {
		t.Fatalf("newHistoryStore error: %v", err)
	}
	store.Save(ctx, []model.Message{model.NewMessage("persisted", model.SenderUser)})
	closeStore()

	reopened, closeReopened, err := newHistoryStore(cfg, slog.Default())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer closeReopened()

	entries := reopened.Reload(ctx)
	if len(entries) != 1 || entries[0].Content != "persisted" {
		t.Fatalf("entries = %+v, want one persisted entry", entries)
	}
	if err := reopened.Clear(ctx); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	if entries := reopened.Reload(ctx); len(entries) != 0 {
		t.Fatalf("expected history to be cleared, got %d entries", len(entries))
	}
}
