package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known senders. Any other sender string is allowed and is normalized to upper case.
const (
	SenderUser   = "USER"
	SenderBot    = "BOT"
	SenderSystem = "SYSTEM"
)

// Kind describes how message content should be treated by renderers and storage.
type Kind string

const (
	KindText Kind = "text"
	KindNode Kind = "node"
)

// Message is one entry of a session transcript.
//
// Content is a string for text messages. Any other value is an opaque node owned by the
// renderer; the runtime only stores and forwards it.
type Message struct {
	ID        string    `json:"id"`
	Content   any       `json:"content"`
	Sender    string    `json:"sender"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message with a fresh random ID.
func NewMessage(content any, sender string) Message {
	return Message{
		ID:        NewID(),
		Content:   content,
		Sender:    NormalizeSender(sender),
		Kind:      KindOf(content),
		Timestamp: time.Now().UTC(),
	}
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// NormalizeSender upper-cases sender and defaults it to BOT.
func NormalizeSender(sender string) string {
	sender = strings.ToUpper(strings.TrimSpace(sender))
	if sender == "" {
		return SenderBot
	}

	return sender
}

// KindOf reports the message kind for content.
func KindOf(content any) Kind {
	if _, ok := content.(string); ok {
		return KindText
	}

	return KindNode
}

// Text returns the content when it is a string.
func (m Message) Text() (string, bool) {
	text, ok := m.Content.(string)
	return text, ok
}

// IsEmpty reports whether the message carries no content worth keeping.
func (m Message) IsEmpty() bool {
	if m.Content == nil {
		return true
	}
	if text, ok := m.Content.(string); ok {
		return strings.TrimSpace(text) == ""
	}

	return false
}

// WithContent returns a copy of m carrying content.
func (m Message) WithContent(content any) Message {
	m.Content = content
	m.Kind = KindOf(content)
	return m
}

// IndexOf returns the position of the message with id, or -1.
func IndexOf(messages []Message, id string) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}

	return -1
}
