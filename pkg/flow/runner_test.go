package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatflow/pkg/model"

	"github.com/stretchr/testify/require"
)

type call struct {
	op      string
	content any
	sender  string
}

type fakeSession struct {
	calls     []call
	steps     []string
	sensitive bool
	disabled  bool
	typing    bool
	runner    *Runner
}

func (s *fakeSession) Inject(_ context.Context, content any, sender string) (model.Message, bool) {
	s.calls = append(s.calls, call{op: "inject", content: content, sender: sender})
	return model.NewMessage(content, sender), true
}

func (s *fakeSession) SimulateStream(_ context.Context, content any, sender string) error {
	s.calls = append(s.calls, call{op: "simulate", content: content, sender: sender})
	return nil
}

func (s *fakeSession) StreamChunk(_ context.Context, content any, sender string) (model.Message, bool) {
	s.calls = append(s.calls, call{op: "chunk", content: content, sender: sender})
	return model.NewMessage(content, sender), true
}

func (s *fakeSession) EndStream(_ context.Context, sender string) bool {
	s.calls = append(s.calls, call{op: "end", sender: sender})
	return true
}

func (s *fakeSession) ShowToast(_ context.Context, content any, _ time.Duration) (string, bool) {
	s.calls = append(s.calls, call{op: "toast", content: content})
	return "toast", true
}

func (s *fakeSession) SetTyping(typing bool)            { s.typing = typing }
func (s *fakeSession) SetInputDisabled(disabled bool)   { s.disabled = disabled }
func (s *fakeSession) SetSensitiveInput(sensitive bool) { s.sensitive = sensitive }

func (s *fakeSession) GoTo(ctx context.Context, step string) bool {
	s.steps = append(s.steps, step)
	s.runner.Enter(ctx, step)
	return true
}

type stubResponder struct {
	answer string
	err    error
}

func (r stubResponder) Reply(context.Context, string) (string, error) {
	return r.answer, r.err
}

func newRunner(t *testing.T, f Flow, responder stubResponder) (*Runner, *fakeSession) {
	t.Helper()
	runner := NewRunner(f, responder, nil)
	session := &fakeSession{runner: runner, typing: true, disabled: true}
	runner.Bind(session)
	return runner, session
}

func TestEnterPostsStepContent(t *testing.T) {
	f := Flow{"start": {Message: "Hello", Options: []string{"A", "B"}, Toast: "Welcome", Sensitive: true}}
	runner, session := newRunner(t, f, stubResponder{})

	runner.Enter(context.Background(), "start")

	require.Equal(t, []call{
		{op: "toast", content: "Welcome"},
		{op: "inject", content: "Hello", sender: model.SenderBot},
		{op: "inject", content: "Options: A | B", sender: model.SenderSystem},
	}, session.calls)
	require.True(t, session.sensitive)
	require.False(t, session.disabled)
	require.False(t, session.typing)
}

func TestEnterSimulatesWhenAsked(t *testing.T) {
	f := Flow{"start": {Message: "Hello", Simulate: true}}
	runner, session := newRunner(t, f, stubResponder{})

	runner.Enter(context.Background(), "start")

	require.Equal(t, []call{{op: "simulate", content: "Hello", sender: model.SenderBot}}, session.calls)
}

func TestEnterAutoAdvances(t *testing.T) {
	f := Flow{
		"start": {Message: "Loading", Auto: true, Next: "menu"},
		"menu":  {Message: "Menu"},
	}
	runner, session := newRunner(t, f, stubResponder{})

	runner.Enter(context.Background(), "start")

	require.Equal(t, []string{"menu"}, session.steps)
}

func TestHandleInputFollowsTransition(t *testing.T) {
	f := Flow{
		"start": {Transitions: map[string]string{"yes": "chat"}, Next: "end"},
		"chat":  {},
		"end":   {},
	}
	runner, session := newRunner(t, f, stubResponder{})
	ctx := context.Background()

	runner.HandleInput(ctx, "start", "YES")
	runner.HandleInput(ctx, "start", "whatever")

	require.Equal(t, []string{"chat", "end"}, session.steps)
}

func TestHandleInputAsksAgainWithoutTarget(t *testing.T) {
	f := Flow{"start": {Options: []string{"A"}, Transitions: map[string]string{"A": "start"}}}
	runner, session := newRunner(t, f, stubResponder{})

	runner.HandleInput(context.Background(), "start", "nope")

	require.Empty(t, session.steps)
	require.Equal(t, []call{{op: "inject", content: "Please choose one of the options.", sender: model.SenderBot}}, session.calls)
	require.False(t, session.disabled)
}

func TestHandleInputStreamsProviderReply(t *testing.T) {
	f := Flow{"chat": {Chat: ChatLLM}}
	runner, session := newRunner(t, f, stubResponder{answer: "Hello big world"})

	runner.HandleInput(context.Background(), "chat", "hi")

	require.Equal(t, []call{
		{op: "chunk", content: "Hello ", sender: model.SenderBot},
		{op: "chunk", content: "Hello big ", sender: model.SenderBot},
		{op: "chunk", content: "Hello big world", sender: model.SenderBot},
		{op: "end", sender: model.SenderBot},
	}, session.calls)
	require.False(t, session.disabled)
}

func TestHandleInputReportsProviderFailure(t *testing.T) {
	f := Flow{"chat": {Chat: ChatLLM}}
	runner, session := newRunner(t, f, stubResponder{err: errors.New("boom")})

	runner.HandleInput(context.Background(), "chat", "hi")

	require.Len(t, session.calls, 1)
	require.Equal(t, model.SenderSystem, session.calls[0].sender)
	require.False(t, session.typing)
}

func TestUnknownStepIsIgnored(t *testing.T) {
	runner, session := newRunner(t, Flow{"start": {}}, stubResponder{})

	runner.Enter(context.Background(), "missing")
	runner.HandleInput(context.Background(), "missing", "hi")

	require.Empty(t, session.calls)
	require.Empty(t, session.steps)
}
