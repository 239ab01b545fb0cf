// Package history persists a capped projection of the chat transcript.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"chatflow/pkg/chaterr"
	"chatflow/pkg/config"
	"chatflow/pkg/kv"
	"chatflow/pkg/logger"
	"chatflow/pkg/model"
	"chatflow/pkg/queue"
)

// Entry is the storage-safe form of a message. Content is always a string; node
// content is serialized on save and restored as node content on load.
type Entry struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Sender    string     `json:"sender"`
	Kind      model.Kind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store saves and loads history entries under a single storage key.
//
// The loaded tail is what storage held before this session started saving. Every
// Save re-derives the current session's entries from the live message list and
// appends them to that tail, so repeated saves never duplicate entries.
type Store struct {
	storage kv.Store
	cfg     config.HistoryConfig
	log     *slog.Logger

	mu     sync.Mutex
	loaded []Entry

	// saveMu serializes Save from merge through the storage write.
	saveMu sync.Mutex
}

func New(storage kv.Store, cfg config.HistoryConfig, log *slog.Logger) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 30
	}

	return &Store{
		storage: storage,
		cfg:     cfg,
		log:     logger.For(log, "history"),
	}
}

// Enabled reports whether saves reach storage.
func (s *Store) Enabled() bool {
	return s != nil && !s.cfg.Disabled && s.storage != nil
}

// IsBoundary reports whether msg is the marker separating loaded history from the
// current session.
func (s *Store) IsBoundary(msg model.Message) bool {
	text, ok := msg.Text()
	return ok && msg.Sender == model.SenderSystem && text == s.cfg.BoundaryText
}

// Save persists the most recent entries of messages. Concurrent saves are
// applied in call order.
func (s *Store) Save(ctx context.Context, messages []model.Message) {
	if !s.Enabled() {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	collected := make([]Entry, 0, min(len(messages), s.cfg.MaxEntries))
	for i := len(messages) - 1; i >= 0 && len(collected) < s.cfg.MaxEntries; i-- {
		msg := messages[i]
		if s.IsBoundary(msg) {
			break
		}
		if msg.IsEmpty() {
			continue
		}
		collected = append(collected, toEntry(msg))
	}
	slices.Reverse(collected)

	s.mu.Lock()
	tail := queue.From(s.loaded, s.cfg.MaxEntries, queue.EvictOldest)
	s.mu.Unlock()

	for _, entry := range collected {
		tail.Push(entry)
	}

	payload, err := json.Marshal(tail.Items())
	if err != nil {
		s.log.Warn("Failed to encode chat history", "error", err)
		return
	}

	if err := s.storage.Set(ctx, s.cfg.StorageKey, string(payload)); err != nil {
		s.log.Warn("Failed to save chat history", "key", s.cfg.StorageKey, "error", err)
	}
}

// Load reads entries from storage. Missing or corrupt content yields no entries.
func (s *Store) Load(ctx context.Context) []Entry {
	if s == nil || s.storage == nil {
		return nil
	}

	raw, found, err := s.storage.Get(ctx, s.cfg.StorageKey)
	if err != nil {
		s.log.Warn("Failed to read chat history", "key", s.cfg.StorageKey, "error", err)
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	entries, err := decodeEntries(raw)
	if err != nil {
		s.log.Warn("Ignoring corrupt chat history", "key", s.cfg.StorageKey, "category", chaterr.CategoryOf(err), "error", err)
		return nil
	}

	return entries
}

// Reload refreshes the cached tail from storage and returns it.
func (s *Store) Reload(ctx context.Context) []Entry {
	entries := s.Load(ctx)

	s.mu.Lock()
	s.loaded = entries
	s.mu.Unlock()

	return slices.Clone(entries)
}

// Entries returns the cached tail.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.loaded)
}

// Clear removes history from storage and the cache.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.loaded = nil
	s.mu.Unlock()

	if s.storage == nil {
		return nil
	}
	if err := s.storage.Remove(ctx, s.cfg.StorageKey); err != nil {
		return fmt.Errorf("clear chat history: %w", err)
	}
	return nil
}

// ViewMessages turns the cached tail into messages followed by a boundary marker.
// It returns nil when there is nothing to show.
func (s *Store) ViewMessages() []model.Message {
	entries := s.Entries()
	if len(entries) == 0 {
		return nil
	}

	messages := make([]model.Message, 0, len(entries)+1)
	for _, entry := range entries {
		messages = append(messages, entry.Message())
	}
	messages = append(messages, s.BoundaryMessage())
	return messages
}

// BoundaryMessage builds a fresh boundary marker.
func (s *Store) BoundaryMessage() model.Message {
	return model.NewMessage(s.cfg.BoundaryText, model.SenderSystem)
}

// Message converts the entry back into a message.
func (e Entry) Message() model.Message {
	kind := e.Kind
	if kind == "" {
		kind = model.KindText
	}

	var content any = e.Content
	if kind == model.KindNode {
		content = Node(e.Content)
	}

	return model.Message{
		ID:        e.ID,
		Content:   content,
		Sender:    model.NormalizeSender(e.Sender),
		Kind:      kind,
		Timestamp: e.Timestamp,
	}
}

// Node is node content restored from storage in its serialized form.
type Node string

func (n Node) String() string {
	return string(n)
}

func toEntry(msg model.Message) Entry {
	return Entry{
		ID:        msg.ID,
		Content:   serializeContent(msg.Content),
		Sender:    msg.Sender,
		Kind:      msg.Kind,
		Timestamp: msg.Timestamp,
	}
}

// serializeContent renders content to a string safe to store.
func serializeContent(content any) string {
	switch typed := content.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	case json.RawMessage:
		return string(typed)
	}

	encoded, err := json.Marshal(content)
	if err == nil {
		return string(encoded)
	}

	return fmt.Sprint(content)
}

func decodeEntries(raw string) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, chaterr.Storage(err, "decode history")
	}
	return entries, nil
}
