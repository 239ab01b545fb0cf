package messages

import (
	"context"
	"time"

	"chatflow/pkg/bus"
	"chatflow/pkg/model"
)

// StreamChunk pushes the full content received so far for sender. The first call
// creates the message, later calls replace its content. It reports false when a
// listener vetoes the chunk.
func (m *Manager) StreamChunk(ctx context.Context, content any, sender string) (model.Message, bool) {
	sender = model.NormalizeSender(sender)
	lock := m.senderLock(sender)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	id, streaming := m.handles[sender]
	m.mu.Unlock()

	if streaming {
		if current, ok := m.Message(id); ok {
			return m.chunkStream(ctx, current, content)
		}
		// The message went away without the handle being cleared.
		m.mu.Lock()
		delete(m.handles, sender)
		m.mu.Unlock()
	}

	return m.startStream(ctx, content, sender)
}

func (m *Manager) startStream(ctx context.Context, content any, sender string) (model.Message, bool) {
	data := &bus.MessageData{Message: model.NewMessage(content, sender)}
	event := m.bus.Dispatch(ctx, bus.EventStartStreamMessage, m.detail(), data)
	if event.DefaultPrevented() {
		return model.Message{}, false
	}
	msg := data.Message
	msg.Sender = sender
	msg.Kind = model.KindOf(msg.Content)

	m.mu.Lock()
	m.handles[sender] = msg.ID
	m.appendLocked(msg)
	m.mu.Unlock()

	if m.state != nil {
		m.state.SetTyping(false)
	}
	m.settle(ctx, msg)
	m.speak(ctx, msg)

	return msg, true
}

func (m *Manager) chunkStream(ctx context.Context, current model.Message, content any) (model.Message, bool) {
	data := &bus.MessageData{Message: current.WithContent(content)}
	event := m.bus.Dispatch(ctx, bus.EventChunkStreamMessage, m.detail(), data)
	if event.DefaultPrevented() {
		return current, false
	}

	m.mu.Lock()
	updated, ok := m.updateLocked(current.ID, data.Message.Content)
	m.mu.Unlock()

	return updated, ok
}

// EndStream finishes the stream of sender and persists the history. It reports
// true when no stream is in progress, and false when a listener vetoes the end,
// in which case the stream stays open.
func (m *Manager) EndStream(ctx context.Context, sender string) bool {
	sender = model.NormalizeSender(sender)
	lock := m.senderLock(sender)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	id, streaming := m.handles[sender]
	m.mu.Unlock()
	if !streaming {
		return true
	}

	msg, found := m.awaitMessage(ctx, id)
	if !found {
		m.log.Warn("Stream message not found", "sender", sender, "message_id", id)
		m.mu.Lock()
		delete(m.handles, sender)
		m.mu.Unlock()
		return true
	}

	event := m.bus.Dispatch(ctx, bus.EventStopStreamMessage, m.detail(), &bus.MessageData{Message: msg})
	if event.DefaultPrevented() {
		return false
	}

	m.mu.Lock()
	if m.handles[sender] == id {
		delete(m.handles, sender)
	}
	m.mu.Unlock()

	m.save(ctx)
	return true
}

// awaitMessage looks id up, retrying a fixed number of times while it is missing.
func (m *Manager) awaitMessage(ctx context.Context, id string) (model.Message, bool) {
	attempts := max(m.cfg.RetryAttempts, 1)
	delay := m.cfg.RetryDelay()

	for attempt := range attempts {
		if msg, ok := m.Message(id); ok {
			return msg, true
		}
		if attempt == attempts-1 || delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Message{}, false
		case <-timer.C:
		}
	}
	return model.Message{}, false
}
