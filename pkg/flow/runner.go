package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chatflow/pkg/logger"
	"chatflow/pkg/messages"
	"chatflow/pkg/model"
	"chatflow/pkg/provider"
)

// Session is the part of a chat session the runner drives.
type Session interface {
	Inject(ctx context.Context, content any, sender string) (model.Message, bool)
	SimulateStream(ctx context.Context, content any, sender string) error
	StreamChunk(ctx context.Context, content any, sender string) (model.Message, bool)
	EndStream(ctx context.Context, sender string) bool
	ShowToast(ctx context.Context, content any, timeout time.Duration) (string, bool)
	SetTyping(typing bool)
	SetInputDisabled(disabled bool)
	SetSensitiveInput(sensitive bool)
	GoTo(ctx context.Context, step string) bool
}

// Runner posts step messages and routes user input to the next step.
type Runner struct {
	flow      Flow
	responder provider.Responder
	session   Session
	log       *slog.Logger
}

func NewRunner(f Flow, responder provider.Responder, log *slog.Logger) *Runner {
	return &Runner{
		flow:      f,
		responder: responder,
		log:       logger.For(log, "flow"),
	}
}

// Bind attaches the session the runner acts on.
func (r *Runner) Bind(session Session) {
	r.session = session
}

// Enter runs the effects of arriving at step.
func (r *Runner) Enter(ctx context.Context, step string) {
	st, ok := r.flow[step]
	if !ok || r.session == nil {
		r.log.Warn("Cannot enter step", "step", step)
		return
	}
	s := r.session

	s.SetTyping(false)
	s.SetInputDisabled(false)
	s.SetSensitiveInput(st.Sensitive)

	if st.Toast != "" {
		s.ShowToast(ctx, st.Toast, 0)
	}

	if strings.TrimSpace(st.Message) != "" {
		if st.Simulate {
			if err := s.SimulateStream(ctx, st.Message, model.SenderBot); err != nil {
				r.log.Warn("Step message stream interrupted", "step", step, "error", err)
			}
		} else {
			s.Inject(ctx, st.Message, model.SenderBot)
		}
	}

	if len(st.Options) > 0 {
		s.Inject(ctx, optionsHint(st.Options), model.SenderSystem)
	}

	if st.Auto {
		s.GoTo(ctx, st.Next)
	}
}

// HandleInput routes text submitted while at step.
func (r *Runner) HandleInput(ctx context.Context, step string, text string) {
	st, ok := r.flow[step]
	if !ok || r.session == nil {
		r.log.Warn("Input for unknown step", "step", step)
		return
	}
	s := r.session

	if target, ok := st.Transition(text); ok {
		s.GoTo(ctx, target)
		return
	}

	if st.Chat == ChatLLM {
		r.reply(ctx, text)
		return
	}

	if st.Next != "" {
		s.GoTo(ctx, st.Next)
		return
	}

	s.SetTyping(false)
	s.SetInputDisabled(false)
	if len(st.Options) > 0 {
		s.Inject(ctx, "Please choose one of the options.", model.SenderBot)
	}
}

// reply streams the provider's answer word by word.
func (r *Runner) reply(ctx context.Context, prompt string) {
	s := r.session
	defer s.SetInputDisabled(false)

	if r.responder == nil {
		s.SetTyping(false)
		s.Inject(ctx, "Chat is unavailable right now.", model.SenderSystem)
		return
	}

	s.SetTyping(true)
	answer, err := r.responder.Reply(ctx, prompt)
	if err != nil {
		r.log.Warn("Reply failed", "error", err)
		s.SetTyping(false)
		s.Inject(ctx, "Sorry, I could not answer that.", model.SenderSystem)
		return
	}

	var shown strings.Builder
	for _, word := range messages.Words(answer) {
		shown.WriteString(word)
		if _, ok := s.StreamChunk(ctx, shown.String(), model.SenderBot); !ok {
			break
		}
	}
	if !s.EndStream(ctx, model.SenderBot) {
		r.log.Debug("Stream end prevented")
	}
}

func optionsHint(options []string) string {
	return "Options: " + strings.Join(options, " | ")
}
