package bus

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 100

// Listener observes an event synchronously. It may call PreventDefault or rewrite
// the payload; the guarded action waits until every listener has returned.
type Listener func(ctx context.Context, event *Event)

type listenerEntry struct {
	id       uint64
	anyType  bool
	typ      EventType
	listener Listener
}

// EventBus dispatches cancelable events to listeners in registration order and fans
// settled events out to observers without blocking.
type EventBus struct {
	listeners      []listenerEntry
	nextListenerID uint64
	enabled        map[EventType]bool

	eventSubscribers      map[uint64]chan Record
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

type Option func(*EventBus)

// WithEnabled restricts dispatch to event types mapped to true. Types missing from
// enabled stay enabled.
func WithEnabled(enabled map[EventType]bool) Option {
	return func(b *EventBus) {
		for t, on := range enabled {
			b.enabled[t] = on
		}
	}
}

func New(opts ...Option) *EventBus {
	b := &EventBus{
		enabled:          make(map[EventType]bool),
		eventSubscribers: make(map[uint64]chan Record),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enabled reports whether events of type t are dispatched.
func (b *EventBus) Enabled(t EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	on, ok := b.enabled[t]
	return !ok || on
}

// On registers listener for one event type and returns its unsubscribe func.
func (b *EventBus) On(t EventType, listener Listener) func() {
	return b.register(listenerEntry{typ: t, listener: listener})
}

// OnAny registers listener for every event type.
func (b *EventBus) OnAny(listener Listener) func() {
	return b.register(listenerEntry{anyType: true, listener: listener})
}

func (b *EventBus) register(entry listenerEntry) func() {
	b.mu.Lock()
	entry.id = b.nextListenerID
	b.nextListenerID++
	b.listeners = append(b.listeners, entry)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, existing := range b.listeners {
				if existing.id == entry.id {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Dispatch builds an event, runs matching listeners in registration order and
// returns the event so the caller can check DefaultPrevented and read back Data.
//
// Disabled event types skip listeners and observers; the returned event is never
// prevented and still carries data.
func (b *EventBus) Dispatch(ctx context.Context, t EventType, detail Detail, data any) *Event {
	if ctx == nil {
		ctx = context.Background()
	}

	event := &Event{
		Type:       t,
		Detail:     detail,
		Data:       data,
		At:         time.Now().UTC(),
		cancelable: IsCancelable(t),
	}

	if !b.Enabled(t) {
		return event
	}

	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, entry := range b.listeners {
		if entry.anyType || entry.typ == t {
			listeners = append(listeners, entry.listener)
		}
	}
	b.mu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, event)
	}

	b.publish(event.record())
	return event
}

func (b *EventBus) publish(record Record) {
	select {
	case <-b.done:
		return
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.eventSubscribers {
		select {
		case ch <- record:
		default:
			// Drop instead of blocking the dispatcher on slow observers.
		}
	}
}

// SubscribeEvents returns a buffered channel of settled events. The channel closes
// when ctx ends, unsubscribe is called or the bus is closed.
func (b *EventBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Record, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Record, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextEventSubscriberID
	b.nextEventSubscriberID++
	b.eventSubscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.eventSubscribers[id]; ok {
				delete(b.eventSubscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

// Close stops observer delivery. Listeners keep working so late mutations are still
// guarded.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.eventSubscribers {
			close(ch)
			delete(b.eventSubscribers, id)
		}
		b.mu.Unlock()
	})
}
