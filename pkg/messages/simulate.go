package messages

import (
	"context"
	"strings"
	"time"

	"github.com/rivo/uniseg"

	"chatflow/pkg/bus"
	"chatflow/pkg/chaterr"
	"chatflow/pkg/model"
)

// Chunker splits text into the tokens revealed one per tick.
type Chunker func(text string) []string

// Graphemes yields one user-perceived character per token.
func Graphemes(text string) []string {
	tokens := make([]string, 0, len(text))
	state := -1
	for len(text) > 0 {
		var cluster string
		cluster, text, _, state = uniseg.FirstGraphemeClusterInString(text, state)
		tokens = append(tokens, cluster)
	}
	return tokens
}

// Words yields each word with its trailing whitespace.
func Words(text string) []string {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !space {
			tokens = append(tokens, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

// Ticker paces simulated streams.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

type SimulateOption func(*simulateOptions)

type simulateOptions struct {
	chunker Chunker
}

// Chunked overrides the tokenizer for one simulated stream.
func Chunked(chunker Chunker) SimulateOption {
	return func(o *simulateOptions) { o.chunker = chunker }
}

// SimulateStream reveals content one token per tick and returns once the whole
// text is shown. Content must be a string. It returns nil when a listener vetoes
// the stream or the message is removed, and the context error when ctx ends first.
func (m *Manager) SimulateStream(ctx context.Context, content any, sender string, opts ...SimulateOption) error {
	text, ok := content.(string)
	if !ok {
		return chaterr.Misuse("simulated stream content must be a string, got %T", content)
	}

	var options simulateOptions
	for _, opt := range opts {
		opt(&options)
	}

	_, _, err := m.simulate(ctx, model.NewMessage(text, sender), options.chunker)
	return err
}

// simulate runs a simulated stream for candidate, whose content is the full text.
// It returns the final message and false when the start was vetoed.
func (m *Manager) simulate(ctx context.Context, candidate model.Message, chunker Chunker) (model.Message, bool, error) {
	data := &bus.MessageData{Message: candidate}
	event := m.bus.Dispatch(ctx, bus.EventStartSimulateStream, m.detail(), data)
	if event.DefaultPrevented() {
		return model.Message{}, false, nil
	}

	text, ok := data.Message.Content.(string)
	if !ok {
		return model.Message{}, false, chaterr.Misuse("simulated stream content must be a string, got %T", data.Message.Content)
	}
	if chunker == nil {
		chunker = m.chunker
	}
	tokens := chunker(text)

	full := data.Message
	full.Sender = model.NormalizeSender(full.Sender)
	full.Kind = model.KindText
	placeholder := full.WithContent("")

	simCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.appendLocked(placeholder)
	m.simulations[placeholder.ID] = cancel
	m.mu.Unlock()
	defer m.endSimulation(placeholder.ID)

	if m.state != nil {
		m.state.SetTyping(false)
	}
	m.settle(ctx, placeholder)
	m.speak(ctx, full)

	final := placeholder
	if len(tokens) > 0 {
		ticker := m.newTicker(m.cfg.Interval())
		defer ticker.Stop()

		var shown strings.Builder
		for cursor := 0; cursor < len(tokens); {
			select {
			case <-simCtx.Done():
				if err := ctx.Err(); err != nil {
					return final, true, err
				}
				return final, true, nil
			case <-ticker.C():
			}

			shown.WriteString(tokens[cursor])
			cursor++

			m.mu.Lock()
			updated, found := m.updateLocked(placeholder.ID, shown.String())
			m.mu.Unlock()
			if !found {
				return final, true, nil
			}
			final = updated
		}
	}

	m.bus.Dispatch(ctx, bus.EventStopSimulateStream, m.detail(), &bus.MessageData{Message: final})
	m.save(ctx)
	return final, true, nil
}

func (m *Manager) endSimulation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.simulations, id)
}
