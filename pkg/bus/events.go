package bus

import (
	"sync/atomic"
	"time"

	"chatflow/pkg/model"
)

type EventType string

const (
	EventToggleChatWindow    EventType = "toggle-chat-window"
	EventToggleAudio         EventType = "toggle-audio"
	EventToggleNotifications EventType = "toggle-notifications"
	EventChangePath          EventType = "change-path"
	EventPreInjectMessage    EventType = "pre-inject-message"
	EventPostInjectMessage   EventType = "post-inject-message"
	EventStartStreamMessage  EventType = "start-stream-message"
	EventChunkStreamMessage  EventType = "chunk-stream-message"
	EventStopStreamMessage   EventType = "stop-stream-message"
	EventStartSimulateStream EventType = "start-simulate-stream-message"
	EventStopSimulateStream  EventType = "stop-simulate-stream-message"
	EventRemoveMessage       EventType = "remove-message"
	EventLoadChatHistory     EventType = "load-chat-history"
	EventShowToast           EventType = "show-toast"
	EventDismissToast        EventType = "dismiss-toast"
	EventTextAreaChangeValue EventType = "text-area-change-value"
	EventUserSubmitText      EventType = "user-submit-text"
	EventPreLoadChatbot      EventType = "pre-load-chatbot"
	EventPostLoadChatbot     EventType = "post-load-chatbot"
	EventStartSpeakMessage   EventType = "start-speak-message"
)

// cancelableEvents is fixed: callers cannot make an event preventable per dispatch.
var cancelableEvents = map[EventType]bool{
	EventToggleChatWindow:    true,
	EventToggleAudio:         true,
	EventToggleNotifications: true,
	EventChangePath:          true,
	EventPreInjectMessage:    true,
	EventPostInjectMessage:   false,
	EventStartStreamMessage:  true,
	EventChunkStreamMessage:  true,
	EventStopStreamMessage:   true,
	EventStartSimulateStream: true,
	EventStopSimulateStream:  false,
	EventRemoveMessage:       true,
	EventLoadChatHistory:     true,
	EventShowToast:           true,
	EventDismissToast:        true,
	EventTextAreaChangeValue: true,
	EventUserSubmitText:      true,
	EventPreLoadChatbot:      true,
	EventPostLoadChatbot:     false,
	EventStartSpeakMessage:   true,
}

// IsCancelable reports whether listeners may prevent events of type t.
func IsCancelable(t EventType) bool {
	return cancelableEvents[t]
}

// EventTypes lists every known event type.
func EventTypes() []EventType {
	types := make([]EventType, 0, len(cancelableEvents))
	for t := range cancelableEvents {
		types = append(types, t)
	}
	return types
}

// Detail identifies where in the session an event happened.
type Detail struct {
	SessionID string `json:"session_id"`
	CurrStep  string `json:"curr_step,omitempty"`
	PrevStep  string `json:"prev_step,omitempty"`
}

// DetailFunc supplies the detail for the session's current position.
type DetailFunc func() Detail

// Event is handed to listeners by pointer. Data points at one of the payload types
// below and may be rewritten in place; the dispatcher reads it back afterwards.
type Event struct {
	Type   EventType
	Detail Detail
	Data   any
	At     time.Time

	cancelable bool
	prevented  atomic.Bool
}

func (e *Event) Cancelable() bool {
	return e.cancelable
}

// PreventDefault suppresses the guarded action. It has no effect on events that are
// not cancelable.
func (e *Event) PreventDefault() {
	if !e.cancelable {
		return
	}
	e.prevented.Store(true)
}

func (e *Event) DefaultPrevented() bool {
	return e.prevented.Load()
}

// Record is the settled, read-only view of an event delivered to observers.
type Record struct {
	Type             EventType `json:"type"`
	Detail           Detail    `json:"detail"`
	Data             any       `json:"data,omitempty"`
	Cancelable       bool      `json:"cancelable"`
	DefaultPrevented bool      `json:"default_prevented"`
	At               time.Time `json:"at"`
}

func (e *Event) record() Record {
	return Record{
		Type:             e.Type,
		Detail:           e.Detail,
		Data:             e.Data,
		Cancelable:       e.cancelable,
		DefaultPrevented: e.DefaultPrevented(),
		At:               e.At,
	}
}

// MessageData carries the message an inject, stream, remove or speak event is about.
type MessageData struct {
	Message model.Message
}

// PathData carries a step transition.
type PathData struct {
	CurrPath string
	PrevPath string
	NextPath string
}

// ToastData carries the toast being shown or dismissed.
type ToastData struct {
	Toast model.Toast
}

// ToggleData carries the flag value before and after a toggle.
type ToggleData struct {
	CurrState bool
	NewState  bool
}

// TextAreaData carries a text input change.
type TextAreaData struct {
	CurrValue string
	NewValue  string
}

// SubmitData carries text submitted by the user.
type SubmitData struct {
	Text string
}

// HistoryData carries messages about to be shown from persisted history.
type HistoryData struct {
	Messages []model.Message
}

// DataAs returns the event payload as *T.
func DataAs[T any](e *Event) (*T, bool) {
	if e == nil {
		return nil, false
	}
	data, ok := e.Data.(*T)
	return data, ok
}
