package toast

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chatflow/pkg/bus"
	"chatflow/pkg/config"
	"chatflow/pkg/model"

	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, cfg config.ToastConfig) (*Manager, *bus.EventBus) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Close)
	return New(b, cfg, nil, nil), b
}

func contents(toasts []model.Toast) []any {
	out := make([]any, 0, len(toasts))
	for _, toast := range toasts {
		out = append(out, toast.Content)
	}
	return out
}

func TestShowEvictsOldestAtMax(t *testing.T) {
	m, _ := newManager(t, config.ToastConfig{MaxCount: 3})
	ctx := context.Background()

	for _, content := range []string{"A", "B", "C", "D"} {
		_, ok := m.Show(ctx, content, -1)
		require.True(t, ok)
		require.LessOrEqual(t, len(m.Toasts()), 3)
	}

	require.Equal(t, []any{"B", "C", "D"}, contents(m.Toasts()))
}

func TestShowForbidOnMaxRefuses(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 2, ForbidOnMax: true})
	ctx := context.Background()

	dispatched := 0
	b.On(bus.EventShowToast, func(context.Context, *bus.Event) { dispatched++ })

	_, ok := m.Show(ctx, "A", -1)
	require.True(t, ok)
	_, ok = m.Show(ctx, "B", -1)
	require.True(t, ok)

	id, ok := m.Show(ctx, "C", -1)
	require.False(t, ok)
	require.Empty(t, id)
	require.Equal(t, 2, dispatched)
	require.Equal(t, []any{"A", "B"}, contents(m.Toasts()))
}

func TestShowForbidReservesSlotWhileEventInFlight(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 1, ForbidOnMax: true})
	ctx := context.Background()

	var dispatched atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	b.On(bus.EventShowToast, func(context.Context, *bus.Event) {
		if dispatched.Add(1) == 1 {
			close(entered)
			<-release
		}
	})

	done := make(chan bool)
	go func() {
		_, ok := m.Show(ctx, "A", -1)
		done <- ok
	}()
	<-entered

	id, ok := m.Show(ctx, "B", -1)
	require.False(t, ok)
	require.Empty(t, id)
	require.EqualValues(t, 1, dispatched.Load())

	close(release)
	require.True(t, <-done)
	require.Equal(t, []any{"A"}, contents(m.Toasts()))
}

func TestShowForbidVetoFreesReservedSlot(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 1, ForbidOnMax: true})
	ctx := context.Background()

	veto := true
	b.On(bus.EventShowToast, func(_ context.Context, ev *bus.Event) {
		if veto {
			ev.PreventDefault()
		}
	})

	_, ok := m.Show(ctx, "A", -1)
	require.False(t, ok)

	veto = false
	_, ok = m.Show(ctx, "B", -1)
	require.True(t, ok)
	require.Equal(t, []any{"B"}, contents(m.Toasts()))
}

func TestShowEvictDispatchesEventAndStopsEvictedTimer(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 1})
	ctx := context.Background()

	dispatched := 0
	b.On(bus.EventShowToast, func(context.Context, *bus.Event) { dispatched++ })

	_, ok := m.Show(ctx, "A", time.Hour)
	require.True(t, ok)
	require.Equal(t, 1, m.PendingTimers())

	_, ok = m.Show(ctx, "B", -1)
	require.True(t, ok)
	require.Equal(t, 2, dispatched)
	require.Equal(t, 0, m.PendingTimers())
	require.Equal(t, []any{"B"}, contents(m.Toasts()))
}

func TestShowVetoed(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 3})
	b.On(bus.EventShowToast, func(_ context.Context, ev *bus.Event) { ev.PreventDefault() })

	id, ok := m.Show(context.Background(), "A", -1)
	require.False(t, ok)
	require.Empty(t, id)
	require.Empty(t, m.Toasts())
}

func TestShowUsesRewrittenContent(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 3})
	b.On(bus.EventShowToast, func(_ context.Context, ev *bus.Event) {
		data, ok := bus.DataAs[bus.ToastData](ev)
		if ok {
			data.Toast.Content = "rewritten"
		}
	})

	_, ok := m.Show(context.Background(), "original", -1)
	require.True(t, ok)
	require.Equal(t, []any{"rewritten"}, contents(m.Toasts()))
}

func TestDismissIsIdempotent(t *testing.T) {
	m, _ := newManager(t, config.ToastConfig{MaxCount: 3})
	ctx := context.Background()

	id, ok := m.Show(ctx, "A", time.Hour)
	require.True(t, ok)

	dismissed, ok := m.Dismiss(ctx, id)
	require.True(t, ok)
	require.Equal(t, id, dismissed)
	require.Equal(t, 0, m.PendingTimers())

	dismissed, ok = m.Dismiss(ctx, id)
	require.False(t, ok)
	require.Empty(t, dismissed)
	require.Empty(t, m.Toasts())
}

func TestDismissVetoKeepsToast(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 3})
	ctx := context.Background()
	b.On(bus.EventDismissToast, func(_ context.Context, ev *bus.Event) { ev.PreventDefault() })

	id, _ := m.Show(ctx, "A", -1)
	_, ok := m.Dismiss(ctx, id)
	require.False(t, ok)
	require.Len(t, m.Toasts(), 1)
}

func TestToastExpiresAfterTimeout(t *testing.T) {
	m, _ := newManager(t, config.ToastConfig{MaxCount: 3})

	_, ok := m.Show(context.Background(), "A", 10*time.Millisecond)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return len(m.Toasts()) == 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, m.PendingTimers())
}

func TestDefaultTimeoutApplies(t *testing.T) {
	m, _ := newManager(t, config.ToastConfig{MaxCount: 3, DefaultTimeoutMS: 10})

	_, ok := m.Show(context.Background(), "A", 0)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return len(m.Toasts()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestClearStopsTimers(t *testing.T) {
	m, b := newManager(t, config.ToastConfig{MaxCount: 3})
	ctx := context.Background()

	dismissals := 0
	b.On(bus.EventDismissToast, func(context.Context, *bus.Event) { dismissals++ })

	m.Show(ctx, "A", time.Hour)
	m.Show(ctx, "B", time.Hour)
	m.Clear()

	require.Empty(t, m.Toasts())
	require.Equal(t, 0, m.PendingTimers())
	require.Equal(t, 0, dismissals)
}

func TestSubscribeReceivesChanges(t *testing.T) {
	m, _ := newManager(t, config.ToastConfig{MaxCount: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe := m.Subscribe(ctx, 1)
	defer unsubscribe()

	m.Show(ctx, "A", -1)

	select {
	case toasts := <-updates:
		require.Equal(t, []any{"A"}, contents(toasts))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for toast update")
	}
}
