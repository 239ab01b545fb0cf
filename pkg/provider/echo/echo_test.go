package echo

import (
	"context"
	"testing"
)

func TestReply(t *testing.T) {
	got, err := New("").Reply(context.Background(), "  hello ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "You said: hello" {
		t.Fatalf("Reply() = %q", got)
	}
}

func TestReplyRejectsEmptyPrompt(t *testing.T) {
	if _, err := New("").Reply(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestReplyHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New("echo:").Reply(ctx, "hi"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
