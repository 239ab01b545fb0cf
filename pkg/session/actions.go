package session

import (
	"context"
	"strings"

	"chatflow/pkg/bus"
	"chatflow/pkg/model"
)

// Start loads the chatbot and enters the entry step. It reports false when a
// listener vetoes the load or the session already started.
func (s *Session) Start(ctx context.Context) bool {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	if s.started.Load() {
		return false
	}

	event := s.bus.Dispatch(ctx, bus.EventPreLoadChatbot, s.nav.Detail(), nil)
	if event.DefaultPrevented() {
		s.log.Info("Chatbot load prevented")
		return false
	}
	s.started.Store(true)

	s.history.Reload(ctx)
	if s.cfg.History.AutoLoad {
		s.ShowHistory(ctx)
	}

	if !s.GoTo(ctx, s.cfg.Session.EntryStep) {
		s.log.Warn("Entry step not entered", "step", s.cfg.Session.EntryStep)
	}

	s.bus.Dispatch(ctx, bus.EventPostLoadChatbot, s.nav.Detail(), nil)
	s.log.Info("Chatbot loaded", "entry_step", s.cfg.Session.EntryStep, "storage", s.cfg.Storage.String())
	return true
}

// GoTo moves to step and runs the step processor.
func (s *Session) GoTo(ctx context.Context, step string) bool {
	if !s.nav.GoTo(ctx, step) {
		return false
	}

	if p := s.proc(); p != nil {
		p.Enter(ctx, s.nav.CurrentStep())
	}
	return true
}

// Restart clears messages, toasts and the path, reloads the history cache and
// re-enters the entry step.
func (s *Session) Restart(ctx context.Context) {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	s.messages.Clear()
	s.toasts.Clear()
	s.nav.Reset(s.cfg.Session.EntryStep)
	s.historyLoaded.Store(false)
	s.typing.Set(false)
	s.inputDisabled.Set(false)
	s.sensitiveInput.Set(false)
	s.textArea.Set("")
	s.history.Reload(ctx)

	s.log.Info("Session restarted", "entry_step", s.cfg.Session.EntryStep)

	if p := s.proc(); p != nil {
		p.Enter(ctx, s.cfg.Session.EntryStep)
	}
}

// ShowHistory prepends the persisted history ahead of the current messages. It
// reports false when history is disabled, empty, already shown or vetoed.
func (s *Session) ShowHistory(ctx context.Context) bool {
	if !s.history.Enabled() || s.historyLoaded.Load() {
		return false
	}

	view := s.history.ViewMessages()
	if len(view) == 0 {
		return false
	}

	data := &bus.HistoryData{Messages: view}
	event := s.bus.Dispatch(ctx, bus.EventLoadChatHistory, s.nav.Detail(), data)
	if event.DefaultPrevented() {
		return false
	}

	if !s.historyLoaded.CompareAndSwap(false, true) {
		return false
	}
	s.messages.Prepend(data.Messages...)
	return true
}

// ToggleChatWindow opens or closes the chat window.
func (s *Session) ToggleChatWindow(ctx context.Context, open bool) bool {
	s.markInteracted()

	data := &bus.ToggleData{CurrState: s.WindowOpen(), NewState: open}
	event := s.bus.Dispatch(ctx, bus.EventToggleChatWindow, s.nav.Detail(), data)
	if event.DefaultPrevented() {
		return false
	}

	s.windowOpen.Set(data.NewState)
	if data.NewState && !s.ScrolledAway() {
		s.messages.ResetUnread()
	}
	return true
}

// ToggleAudio flips speech output.
func (s *Session) ToggleAudio(ctx context.Context) bool {
	s.markInteracted()

	data := &bus.ToggleData{CurrState: s.AudioEnabled(), NewState: !s.AudioEnabled()}
	event := s.bus.Dispatch(ctx, bus.EventToggleAudio, s.nav.Detail(), data)
	if event.DefaultPrevented() {
		return false
	}

	s.audio.Set(data.NewState)
	return true
}

// ToggleNotifications flips the notification sound.
func (s *Session) ToggleNotifications(ctx context.Context) bool {
	s.markInteracted()

	data := &bus.ToggleData{CurrState: s.NotificationsEnabled(), NewState: !s.NotificationsEnabled()}
	event := s.bus.Dispatch(ctx, bus.EventToggleNotifications, s.nav.Detail(), data)
	if event.DefaultPrevented() {
		return false
	}

	s.notifications.Set(data.NewState)
	if e, ok := s.notifier.(enabler); ok {
		e.SetEnabled(data.NewState)
	}
	return true
}

// SetTextAreaValue updates the input text. Listeners may rewrite the new value.
func (s *Session) SetTextAreaValue(ctx context.Context, value string) bool {
	data := &bus.TextAreaData{CurrValue: s.TextAreaValue(), NewValue: value}
	event := s.bus.Dispatch(ctx, bus.EventTextAreaChangeValue, s.nav.Detail(), data)
	if event.DefaultPrevented() {
		return false
	}

	s.textArea.Set(data.NewValue)
	return true
}

// SubmitText sends text as the user and hands it to the step processor. Blank
// text, disabled input and vetoes report false.
func (s *Session) SubmitText(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" || s.InputDisabled() {
		return false
	}
	s.markInteracted()

	data := &bus.SubmitData{Text: text}
	event := s.bus.Dispatch(ctx, bus.EventUserSubmitText, s.nav.Detail(), data)
	if event.DefaultPrevented() {
		return false
	}
	text = data.Text

	shown := text
	if s.SensitiveInput() {
		shown = strings.Repeat("*", len([]rune(text)))
	}
	if _, ok := s.messages.Inject(ctx, shown, model.SenderUser); !ok {
		return false
	}
	s.textArea.Set("")

	if s.cfg.Session.BlockSpam {
		s.inputDisabled.Set(true)
	}

	p := s.proc()
	if p == nil {
		s.inputDisabled.Set(false)
		return true
	}
	p.HandleInput(ctx, s.nav.CurrentStep(), text)
	return true
}
