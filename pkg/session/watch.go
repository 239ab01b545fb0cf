package session

import (
	"context"
	"sync"
)

// Watch returns a channel that receives a signal whenever any observable part
// of the session changes. Bursts of changes collapse into one signal. The
// channel is closed once ctx ends.
func (s *Session) Watch(ctx context.Context) <-chan struct{} {
	signal := make(chan struct{}, 1)
	var wg sync.WaitGroup

	forward(ctx, &wg, signal, s.messages.Subscribe)
	forward(ctx, &wg, signal, s.messages.SubscribeUnread)
	forward(ctx, &wg, signal, s.toasts.Subscribe)
	forward(ctx, &wg, signal, s.nav.Subscribe)
	for _, flag := range []interface {
		Subscribe(ctx context.Context, buffer int) (<-chan bool, func())
	}{
		s.windowOpen, s.audio, s.notifications, s.typing,
		s.inputDisabled, s.sensitiveInput, s.scrolledAway, s.embedded,
	} {
		forward(ctx, &wg, signal, flag.Subscribe)
	}
	forward(ctx, &wg, signal, s.textArea.Subscribe)

	go func() {
		wg.Wait()
		close(signal)
	}()

	return signal
}

func forward[T any](ctx context.Context, wg *sync.WaitGroup, signal chan struct{}, subscribe func(context.Context, int) (<-chan T, func())) {
	updates, unsubscribe := subscribe(ctx, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-updates:
				if !ok {
					return
				}
				select {
				case signal <- struct{}{}:
				default:
				}
			}
		}
	}()
}
