// Package session composes the state of one chat session: messages, toasts,
// the step path, the persisted history and the UI flags.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chatflow/pkg/bus"
	"chatflow/pkg/config"
	"chatflow/pkg/history"
	"chatflow/pkg/kv"
	"chatflow/pkg/logger"
	"chatflow/pkg/messages"
	"chatflow/pkg/model"
	"chatflow/pkg/navigator"
	"chatflow/pkg/notify"
	"chatflow/pkg/speech"
	"chatflow/pkg/synced"
	"chatflow/pkg/toast"
)

// Processor reacts to step changes and submitted text.
type Processor interface {
	Enter(ctx context.Context, step string)
	HandleInput(ctx context.Context, step string, text string)
}

// interactionTracker is implemented by notifiers gated on user interaction.
type interactionTracker interface {
	MarkInteracted()
}

// enabler is implemented by notifiers that follow the notifications toggle.
type enabler interface {
	SetEnabled(enabled bool)
}

type Deps struct {
	Bus       *bus.EventBus
	Steps     navigator.Steps
	Storage   kv.Store
	Speaker   speech.Speaker
	Notifier  notify.Notifier
	Processor Processor
	Log       *slog.Logger
	// Ticker paces simulated streams; nil uses a wall clock ticker.
	Ticker func(time.Duration) messages.Ticker
}

type Session struct {
	cfg *config.Config
	bus *bus.EventBus
	log *slog.Logger

	nav      *navigator.Navigator
	messages *messages.Manager
	toasts   *toast.Manager
	history  *history.Store
	notifier notify.Notifier

	procMu    sync.RWMutex
	processor Processor

	// restartMu keeps Start and Restart from interleaving.
	restartMu     sync.Mutex
	started       atomic.Bool
	historyLoaded atomic.Bool

	windowOpen     *synced.Value[bool]
	audio          *synced.Value[bool]
	notifications  *synced.Value[bool]
	typing         *synced.Value[bool]
	inputDisabled  *synced.Value[bool]
	sensitiveInput *synced.Value[bool]
	scrolledAway   *synced.Value[bool]
	embedded       *synced.Value[bool]
	textArea       *synced.Value[string]
}

func New(cfg *config.Config, deps Deps) *Session {
	if cfg == nil {
		cfg = config.Default()
	}

	eventBus := deps.Bus
	if eventBus == nil {
		eventBus = bus.New(bus.WithEnabled(EnabledEvents(cfg.Events)))
	}

	log := logger.WithSession(deps.Log, cfg.Session.ID)

	s := &Session{
		cfg:            cfg,
		bus:            eventBus,
		log:            logger.For(log, "session"),
		notifier:       deps.Notifier,
		processor:      deps.Processor,
		windowOpen:     synced.New(cfg.Session.StartOpen || cfg.Session.Embedded),
		audio:          synced.New(cfg.Speech.Enabled),
		notifications:  synced.New(cfg.Notifications.Enabled),
		typing:         synced.New(false),
		inputDisabled:  synced.New(false),
		sensitiveInput: synced.New(false),
		scrolledAway:   synced.New(false),
		embedded:       synced.New(cfg.Session.Embedded),
		textArea:       synced.New(""),
	}

	s.history = history.New(deps.Storage, cfg.History, log)
	s.nav = navigator.New(eventBus, deps.Steps, s, navigator.Options{
		SessionID: cfg.Session.ID,
		BlockSpam: cfg.Session.BlockSpam,
	}, log)

	opts := []messages.Option{
		messages.WithHistory(s.history),
		messages.WithState(s),
		messages.WithLogger(log),
	}
	if deps.Speaker != nil {
		opts = append(opts, messages.WithSpeaker(deps.Speaker, speech.OptionsFrom(cfg.Speech)))
	}
	if deps.Notifier != nil {
		opts = append(opts, messages.WithNotifier(deps.Notifier))
	}
	if deps.Ticker != nil {
		opts = append(opts, messages.WithTicker(deps.Ticker))
	}
	s.messages = messages.New(eventBus, s.nav.Detail, cfg.Stream, opts...)
	s.toasts = toast.New(eventBus, cfg.Toast, s.nav.Detail, log)

	if e, ok := deps.Notifier.(enabler); ok {
		e.SetEnabled(cfg.Notifications.Enabled)
	}

	return s
}

// EnabledEvents maps the events config onto bus event types.
func EnabledEvents(cfg config.EventsConfig) map[bus.EventType]bool {
	enabled := make(map[bus.EventType]bool, len(cfg))
	for _, t := range bus.EventTypes() {
		enabled[t] = cfg.Enabled(string(t))
	}
	return enabled
}

// SetProcessor installs the step processor. Used when the processor needs the
// session at construction time.
func (s *Session) SetProcessor(p Processor) {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	s.processor = p
}

func (s *Session) proc() Processor {
	s.procMu.RLock()
	defer s.procMu.RUnlock()
	return s.processor
}

func (s *Session) ID() string                { return s.cfg.Session.ID }
func (s *Session) Bus() *bus.EventBus        { return s.bus }
func (s *Session) History() *history.Store   { return s.history }
func (s *Session) Messages() []model.Message { return s.messages.Messages() }
func (s *Session) Toasts() []model.Toast     { return s.toasts.Toasts() }
func (s *Session) Path() []string            { return s.nav.Path() }
func (s *Session) CurrentStep() string       { return s.nav.CurrentStep() }
func (s *Session) PreviousStep() string      { return s.nav.PreviousStep() }
func (s *Session) UnreadCount() int          { return s.messages.UnreadCount() }
func (s *Session) TextAreaValue() string     { return s.textArea.Snapshot() }
func (s *Session) HistoryLoaded() bool       { return s.historyLoaded.Load() }

// Typing reports whether the bot typing indicator is shown.
func (s *Session) Typing() bool               { return s.typing.Snapshot() }
func (s *Session) InputDisabled() bool        { return s.inputDisabled.Snapshot() }
func (s *Session) SensitiveInput() bool       { return s.sensitiveInput.Snapshot() }
func (s *Session) WindowOpen() bool           { return s.windowOpen.Snapshot() }
func (s *Session) Embedded() bool             { return s.embedded.Snapshot() }
func (s *Session) ScrolledAway() bool         { return s.scrolledAway.Snapshot() }
func (s *Session) AudioEnabled() bool         { return s.audio.Snapshot() }
func (s *Session) NotificationsEnabled() bool { return s.notifications.Snapshot() }

func (s *Session) SetTyping(typing bool)            { s.typing.Set(typing) }
func (s *Session) SetInputDisabled(disabled bool)   { s.inputDisabled.Set(disabled) }
func (s *Session) SetSensitiveInput(sensitive bool) { s.sensitiveInput.Set(sensitive) }

// SetScrolledAway records whether the user scrolled away from the latest message.
// Returning to the bottom of an open window clears the unread counter.
func (s *Session) SetScrolledAway(away bool) {
	s.scrolledAway.Set(away)
	if !away && s.WindowOpen() {
		s.messages.ResetUnread()
	}
}

func (s *Session) SetEmbedded(embedded bool) {
	s.embedded.Set(embedded)
}

// Inject appends a complete message.
func (s *Session) Inject(ctx context.Context, content any, sender string) (model.Message, bool) {
	return s.messages.Inject(ctx, content, sender)
}

// Remove deletes a message by id.
func (s *Session) Remove(ctx context.Context, id string) (model.Message, bool) {
	return s.messages.Remove(ctx, id)
}

func (s *Session) StreamChunk(ctx context.Context, content any, sender string) (model.Message, bool) {
	return s.messages.StreamChunk(ctx, content, sender)
}

func (s *Session) EndStream(ctx context.Context, sender string) bool {
	return s.messages.EndStream(ctx, sender)
}

func (s *Session) SimulateStream(ctx context.Context, content any, sender string) error {
	return s.messages.SimulateStream(ctx, content, sender)
}

func (s *Session) IsStreaming(sender string) bool {
	return s.messages.IsStreaming(sender)
}

func (s *Session) ShowToast(ctx context.Context, content any, timeout time.Duration) (string, bool) {
	return s.toasts.Show(ctx, content, timeout)
}

func (s *Session) DismissToast(ctx context.Context, id string) (string, bool) {
	return s.toasts.Dismiss(ctx, id)
}

func (s *Session) markInteracted() {
	if tracker, ok := s.notifier.(interactionTracker); ok {
		tracker.MarkInteracted()
	}
}
