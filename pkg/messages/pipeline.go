package messages

import (
	"context"
	"strings"

	"chatflow/pkg/bus"
	"chatflow/pkg/model"
)

// settle runs once per message that finished arriving. Chunk updates skip it so
// the unread counter and the notification sound fire once per message.
func (m *Manager) settle(ctx context.Context, msg model.Message) {
	if m.state != nil && (!m.state.WindowOpen() || m.state.ScrolledAway()) {
		m.unread.Update(func(n int) int { return n + 1 })
	}
	if m.notifier != nil && msg.Sender != model.SenderUser {
		m.notifier.Notify(ctx)
	}
}

// speak hands bot text to the speaker without waiting for it.
func (m *Manager) speak(ctx context.Context, msg model.Message) {
	if m.speaker == nil || m.state == nil || msg.Sender != model.SenderBot {
		return
	}
	if !m.state.AudioEnabled() || !(m.state.WindowOpen() || m.state.Embedded()) {
		return
	}
	text, ok := msg.Content.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return
	}

	data := &bus.MessageData{Message: msg}
	event := m.bus.Dispatch(ctx, bus.EventStartSpeakMessage, m.detail(), data)
	if event.DefaultPrevented() {
		return
	}
	if rewritten, ok := data.Message.Content.(string); ok {
		text = rewritten
	}

	speaker, opts := m.speaker, m.speechOpts
	speakCtx := context.WithoutCancel(ctx)
	go func() {
		if err := speaker.Speak(speakCtx, text, opts); err != nil {
			m.log.Info("Speech failed", "message_id", msg.ID, "error", err)
		}
	}()
}
