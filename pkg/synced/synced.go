// Package synced pairs a reactive value with a snapshot that is always current.
//
// Renderers read the reactive side (Get, Subscribe) and may observe updates late.
// Timers and callbacks read Snapshot, which reflects the most recent Set or Update
// as soon as that call returns.
package synced

import (
	"context"
	"sync"
)

const defaultBufferSize = 1

// Value holds one piece of session state.
//
// Slice and map values are treated as immutable: updaters must return a new value
// instead of editing the one they receive.
type Value[T any] struct {
	mu       sync.RWMutex
	reactive T
	snapshot T

	subscribers      map[uint64]chan T
	nextSubscriberID uint64
}

// New creates a Value whose reactive slot and snapshot both hold initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		reactive:    initial,
		snapshot:    initial,
		subscribers: make(map[uint64]chan T),
	}
}

// Get returns the reactive value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reactive
}

// Snapshot returns the value written by the most recent Set or Update.
func (v *Value[T]) Snapshot() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot
}

// Set replaces the value.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.store(next)
}

// Update applies fn to the current snapshot and stores the result. It returns the
// stored value.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := fn(v.snapshot)
	v.store(next)
	return next
}

func (v *Value[T]) store(next T) {
	v.snapshot = next
	v.reactive = next

	for _, ch := range v.subscribers {
		publishLatest(ch, next)
	}
}

// publishLatest delivers value without blocking, replacing a stale buffered value.
func publishLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- value:
	default:
	}
}

// Subscribe returns a channel that receives values after each write. Slow readers
// only see the latest value. The channel closes when ctx ends or unsubscribe is called.
func (v *Value[T]) Subscribe(ctx context.Context, buffer int) (<-chan T, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan T, buffer)

	v.mu.Lock()
	id := v.nextSubscriberID
	v.nextSubscriberID++
	v.subscribers[id] = ch
	v.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			v.mu.Lock()
			if sub, ok := v.subscribers[id]; ok {
				delete(v.subscribers, id)
				close(sub)
			}
			v.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()

	return ch, unsubscribe
}
