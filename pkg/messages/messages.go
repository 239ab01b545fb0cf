// Package messages owns the message list of a chat session: injection, removal,
// pushed streams and simulated streams.
package messages

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatflow/pkg/bus"
	"chatflow/pkg/config"
	"chatflow/pkg/history"
	"chatflow/pkg/logger"
	"chatflow/pkg/model"
	"chatflow/pkg/notify"
	"chatflow/pkg/speech"
	"chatflow/pkg/synced"
)

// State reports how the chat is presented and receives the typing indicator.
type State interface {
	WindowOpen() bool
	Embedded() bool
	ScrolledAway() bool
	AudioEnabled() bool
	SetTyping(typing bool)
}

type Option func(*Manager)

func WithHistory(store *history.Store) Option {
	return func(m *Manager) { m.history = store }
}

func WithState(state State) Option {
	return func(m *Manager) { m.state = state }
}

func WithSpeaker(speaker speech.Speaker, opts speech.Options) Option {
	return func(m *Manager) {
		m.speaker = speaker
		m.speechOpts = opts
	}
}

func WithNotifier(notifier notify.Notifier) Option {
	return func(m *Manager) { m.notifier = notifier }
}

// WithTicker replaces the ticker that paces simulated streams.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(m *Manager) { m.newTicker = newTicker }
}

// WithDefaultChunker replaces the tokenizer used by simulated streams.
func WithDefaultChunker(chunker Chunker) Option {
	return func(m *Manager) { m.chunker = chunker }
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = logger.For(log, "messages") }
}

type Manager struct {
	bus        *bus.EventBus
	detail     bus.DetailFunc
	cfg        config.StreamConfig
	history    *history.Store
	state      State
	speaker    speech.Speaker
	speechOpts speech.Options
	notifier   notify.Notifier
	newTicker  func(time.Duration) Ticker
	chunker    Chunker
	log        *slog.Logger

	// mu guards the stream bookkeeping and serializes writes to messages.
	mu          sync.Mutex
	handles     map[string]string
	senderLocks map[string]*sync.Mutex
	simulations map[string]context.CancelFunc

	// saveMu orders snapshots and writes so a stale snapshot never lands last.
	saveMu sync.Mutex

	messages *synced.Value[[]model.Message]
	unread   *synced.Value[int]
}

func New(eventBus *bus.EventBus, detail bus.DetailFunc, cfg config.StreamConfig, opts ...Option) *Manager {
	if cfg.IntervalMS <= 0 {
		cfg.IntervalMS = 30
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelayMS <= 0 {
		cfg.RetryDelayMS = 10
	}
	if detail == nil {
		detail = func() bus.Detail { return bus.Detail{} }
	}

	m := &Manager{
		bus:         eventBus,
		detail:      detail,
		cfg:         cfg,
		newTicker:   newTimeTicker,
		chunker:     Graphemes,
		log:         logger.For(nil, "messages"),
		handles:     make(map[string]string),
		senderLocks: make(map[string]*sync.Mutex),
		simulations: make(map[string]context.CancelFunc),
		messages:    synced.New[[]model.Message](nil),
		unread:      synced.New(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Messages returns a copy of the message list.
func (m *Manager) Messages() []model.Message {
	current := m.messages.Snapshot()
	out := make([]model.Message, len(current))
	copy(out, current)
	return out
}

// Message returns the message with id.
func (m *Manager) Message(id string) (model.Message, bool) {
	current := m.messages.Snapshot()
	if idx := model.IndexOf(current, id); idx >= 0 {
		return current[idx], true
	}
	return model.Message{}, false
}

// Subscribe delivers the message list after every change.
func (m *Manager) Subscribe(ctx context.Context, buffer int) (<-chan []model.Message, func()) {
	return m.messages.Subscribe(ctx, buffer)
}

func (m *Manager) UnreadCount() int {
	return m.unread.Snapshot()
}

func (m *Manager) ResetUnread() {
	m.unread.Set(0)
}

// SubscribeUnread delivers the unread counter after every change.
func (m *Manager) SubscribeUnread(ctx context.Context, buffer int) (<-chan int, func()) {
	return m.unread.Subscribe(ctx, buffer)
}

// IsStreaming reports whether sender has a stream in progress.
func (m *Manager) IsStreaming(sender string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[model.NormalizeSender(sender)]
	return ok
}

// Inject appends a complete message. It reports false when a listener vetoes it.
// Bot text is revealed through a simulated stream when the stream config asks for it.
func (m *Manager) Inject(ctx context.Context, content any, sender string) (model.Message, bool) {
	data := &bus.MessageData{Message: model.NewMessage(content, sender)}
	event := m.bus.Dispatch(ctx, bus.EventPreInjectMessage, m.detail(), data)
	if event.DefaultPrevented() {
		return model.Message{}, false
	}
	msg := data.Message
	msg.Sender = model.NormalizeSender(msg.Sender)
	msg.Kind = model.KindOf(msg.Content)

	if text, ok := msg.Content.(string); ok && m.cfg.SimulateBotStream && msg.Sender == model.SenderBot {
		final, ok, err := m.simulate(ctx, msg.WithContent(text), nil)
		if err != nil {
			m.log.Warn("Simulated injection interrupted", "message_id", msg.ID, "error", err)
		}
		if !ok {
			return model.Message{}, false
		}
		m.bus.Dispatch(ctx, bus.EventPostInjectMessage, m.detail(), &bus.MessageData{Message: final})
		return final, true
	}

	m.mu.Lock()
	m.appendLocked(msg)
	m.mu.Unlock()

	m.bus.Dispatch(ctx, bus.EventPostInjectMessage, m.detail(), &bus.MessageData{Message: msg})
	m.settle(ctx, msg)
	m.speak(ctx, msg)
	m.save(ctx)

	return msg, true
}

// Remove deletes the message with id. Unknown ids and vetoes report false.
func (m *Manager) Remove(ctx context.Context, id string) (model.Message, bool) {
	msg, ok := m.Message(id)
	if !ok {
		return model.Message{}, false
	}

	event := m.bus.Dispatch(ctx, bus.EventRemoveMessage, m.detail(), &bus.MessageData{Message: msg})
	if event.DefaultPrevented() {
		return model.Message{}, false
	}

	m.mu.Lock()
	current := m.messages.Snapshot()
	idx := model.IndexOf(current, id)
	if idx < 0 {
		m.mu.Unlock()
		return model.Message{}, false
	}
	next := make([]model.Message, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	m.messages.Set(next)
	m.forgetLocked(id)
	m.mu.Unlock()

	m.save(ctx)
	return msg, true
}

// Replace swaps the whole list. Streams and simulations whose message is gone stop.
func (m *Manager) Replace(messages []model.Message) {
	next := make([]model.Message, len(messages))
	copy(next, messages)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(next)
}

// Prepend inserts messages ahead of the current list.
func (m *Manager) Prepend(messages ...model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.messages.Snapshot()
	next := make([]model.Message, 0, len(messages)+len(current))
	next = append(next, messages...)
	next = append(next, current...)
	m.setLocked(next)
}

// Clear empties the list and the unread counter.
func (m *Manager) Clear() {
	m.Replace(nil)
	m.ResetUnread()
}

func (m *Manager) appendLocked(msg model.Message) {
	m.messages.Update(func(current []model.Message) []model.Message {
		next := make([]model.Message, len(current), len(current)+1)
		copy(next, current)
		return append(next, msg)
	})
}

// updateLocked sets the content of the message with id. It reports false when the
// message no longer exists.
func (m *Manager) updateLocked(id string, content any) (model.Message, bool) {
	current := m.messages.Snapshot()
	idx := model.IndexOf(current, id)
	if idx < 0 {
		return model.Message{}, false
	}

	next := make([]model.Message, len(current))
	copy(next, current)
	next[idx] = next[idx].WithContent(content)
	m.messages.Set(next)
	return next[idx], true
}

func (m *Manager) setLocked(next []model.Message) {
	m.messages.Set(next)

	present := make(map[string]bool, len(next))
	for _, msg := range next {
		present[msg.ID] = true
	}
	for id := range m.simulations {
		if !present[id] {
			m.forgetLocked(id)
		}
	}
	for sender, id := range m.handles {
		if !present[id] {
			delete(m.handles, sender)
		}
	}
}

// forgetLocked cancels the simulation and drops any stream handle targeting id.
func (m *Manager) forgetLocked(id string) {
	if cancel, ok := m.simulations[id]; ok {
		cancel()
		delete(m.simulations, id)
	}
	for sender, target := range m.handles {
		if target == id {
			delete(m.handles, sender)
		}
	}
}

func (m *Manager) senderLock(sender string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.senderLocks[sender]
	if !ok {
		lock = &sync.Mutex{}
		m.senderLocks[sender] = lock
	}
	return lock
}

func (m *Manager) save(ctx context.Context) {
	if m.history == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	m.history.Save(ctx, m.Messages())
}
