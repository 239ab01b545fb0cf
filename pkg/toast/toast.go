// Package toast manages the bounded list of transient notices of a chat session.
package toast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatflow/pkg/bus"
	"chatflow/pkg/config"
	"chatflow/pkg/logger"
	"chatflow/pkg/model"
	"chatflow/pkg/queue"
	"chatflow/pkg/synced"
)

// Manager owns the toast queue and its auto-dismiss timers.
type Manager struct {
	bus    *bus.EventBus
	cfg    config.ToastConfig
	detail bus.DetailFunc
	log    *slog.Logger

	mu     sync.Mutex
	queue  *queue.Bounded[model.Toast]
	timers map[string]*time.Timer
	// reserved counts slots held by Show calls whose show-toast event is in flight.
	reserved int

	toasts *synced.Value[[]model.Toast]
}

func New(eventBus *bus.EventBus, cfg config.ToastConfig, detail bus.DetailFunc, log *slog.Logger) *Manager {
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = 3
	}
	if detail == nil {
		detail = func() bus.Detail { return bus.Detail{} }
	}

	policy := queue.EvictOldest
	if cfg.ForbidOnMax {
		policy = queue.Reject
	}

	return &Manager{
		bus:    eventBus,
		cfg:    cfg,
		detail: detail,
		log:    logger.For(log, "toast"),
		queue:  queue.New[model.Toast](cfg.MaxCount, policy),
		timers: make(map[string]*time.Timer),
		toasts: synced.New[[]model.Toast](nil),
	}
}

// Show displays content and returns the new toast id. It reports false when the
// queue is full under the forbid policy or a listener vetoes the toast. A zero
// timeout falls back to the configured default; a negative one never expires.
func (m *Manager) Show(ctx context.Context, content any, timeout time.Duration) (string, bool) {
	if !m.reserve() {
		return "", false
	}

	if timeout == 0 {
		timeout = m.cfg.DefaultTimeout()
	}
	if timeout < 0 {
		timeout = 0
	}

	data := &bus.ToastData{Toast: model.Toast{ID: model.NewID(), Content: content, Timeout: timeout}}
	event := m.bus.Dispatch(ctx, bus.EventShowToast, m.detail(), data)

	m.mu.Lock()
	m.release()
	if event.DefaultPrevented() {
		m.mu.Unlock()
		return "", false
	}
	toast := data.Toast

	evicted, didEvict, ok := m.queue.Push(toast)
	if !ok {
		m.mu.Unlock()
		return "", false
	}
	if didEvict {
		m.stopTimerLocked(evicted.ID)
	}
	if toast.Timeout > 0 {
		id := toast.ID
		m.timers[id] = time.AfterFunc(toast.Timeout, func() {
			m.expire(id)
		})
	}
	m.publishLocked()
	m.mu.Unlock()

	return toast.ID, true
}

// reserve claims a slot for one Show under the forbid policy. The evict policy
// always has room.
func (m *Manager) reserve() bool {
	if !m.cfg.ForbidOnMax {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queue.Len()+m.reserved >= m.queue.Max() {
		return false
	}
	m.reserved++
	return true
}

// release returns a slot taken by reserve. Callers hold mu.
func (m *Manager) release() {
	if m.cfg.ForbidOnMax {
		m.reserved--
	}
}

// Dismiss removes the toast with id. It reports false when the id is unknown or a
// listener vetoes the dismissal.
func (m *Manager) Dismiss(ctx context.Context, id string) (string, bool) {
	m.mu.Lock()
	toast, found := m.queue.Find(matchID(id))
	m.mu.Unlock()
	if !found {
		return "", false
	}

	event := m.bus.Dispatch(ctx, bus.EventDismissToast, m.detail(), &bus.ToastData{Toast: toast})
	if event.DefaultPrevented() {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, removed := m.queue.Remove(matchID(id)); !removed {
		return "", false
	}
	m.stopTimerLocked(id)
	m.publishLocked()

	return id, true
}

func (m *Manager) expire(id string) {
	m.mu.Lock()
	// Only this timer's own entry is cleared here; Dismiss stops it again harmlessly.
	delete(m.timers, id)
	m.mu.Unlock()

	if _, ok := m.Dismiss(context.Background(), id); ok {
		m.log.Debug("Toast expired", "toast_id", id)
	}
}

// Clear drops every toast and stops pending timers without dispatching events.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.Clear()
	for id := range m.timers {
		m.stopTimerLocked(id)
	}
	m.publishLocked()
}

// Toasts returns the visible toasts in display order.
func (m *Manager) Toasts() []model.Toast {
	return m.toasts.Snapshot()
}

// Subscribe delivers the toast list after every change.
func (m *Manager) Subscribe(ctx context.Context, buffer int) (<-chan []model.Toast, func()) {
	return m.toasts.Subscribe(ctx, buffer)
}

// PendingTimers reports how many auto-dismiss timers are armed.
func (m *Manager) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manager) stopTimerLocked(id string) {
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) publishLocked() {
	m.toasts.Set(m.queue.Items())
}

func matchID(id string) func(model.Toast) bool {
	return func(t model.Toast) bool {
		return t.ID == id
	}
}
