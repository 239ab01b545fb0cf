// Package notify plays the new-message notification.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"chatflow/pkg/logger"
)

// Notifier plays a notification when it decides one is due.
type Notifier interface {
	Notify(ctx context.Context)
}

// Bell writes the terminal bell character. It stays silent until it is enabled
// and the user has interacted with the session.
type Bell struct {
	enabled    atomic.Bool
	interacted atomic.Bool

	mu       sync.Mutex
	w        io.Writer
	log      *slog.Logger
	failOnce sync.Once
}

func NewBell(w io.Writer, enabled bool, log *slog.Logger) *Bell {
	b := &Bell{w: w, log: logger.For(log, "notify")}
	b.enabled.Store(enabled)
	return b
}

func (b *Bell) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
}

func (b *Bell) Enabled() bool {
	return b.enabled.Load()
}

// MarkInteracted records the first user interaction.
func (b *Bell) MarkInteracted() {
	b.interacted.Store(true)
}

func (b *Bell) Notify(context.Context) {
	if b == nil || b.w == nil || !b.enabled.Load() || !b.interacted.Load() {
		return
	}

	b.mu.Lock()
	_, err := fmt.Fprint(b.w, "\a")
	b.mu.Unlock()

	if err != nil {
		b.failOnce.Do(func() {
			b.log.Info("Notification sound unavailable", "error", err)
		})
	}
}
