// Package navigator tracks the path of steps visited in a chat session.
package navigator

import (
	"context"
	"log/slog"

	"chatflow/pkg/bus"
	"chatflow/pkg/logger"
	"chatflow/pkg/synced"
)

// Steps reports whether a step exists in the flow.
type Steps interface {
	Has(step string) bool
}

// Effects receives the input side effects of a step change.
type Effects interface {
	SetTyping(typing bool)
	SetInputDisabled(disabled bool)
	SetSensitiveInput(sensitive bool)
}

type Options struct {
	SessionID string
	BlockSpam bool
}

type Navigator struct {
	bus     *bus.EventBus
	steps   Steps
	effects Effects
	opts    Options
	log     *slog.Logger

	path *synced.Value[[]string]
}

func New(eventBus *bus.EventBus, steps Steps, effects Effects, opts Options, log *slog.Logger) *Navigator {
	return &Navigator{
		bus:     eventBus,
		steps:   steps,
		effects: effects,
		opts:    opts,
		log:     logger.For(log, "navigator"),
		path:    synced.New[[]string](nil),
	}
}

// Path returns a copy of the visited steps, oldest first.
func (n *Navigator) Path() []string {
	path := n.path.Snapshot()
	out := make([]string, len(path))
	copy(out, path)
	return out
}

func (n *Navigator) CurrentStep() string {
	path := n.path.Snapshot()
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

func (n *Navigator) PreviousStep() string {
	path := n.path.Snapshot()
	if len(path) < 2 {
		return ""
	}
	return path[len(path)-2]
}

// Detail describes the current position for event dispatch.
func (n *Navigator) Detail() bus.Detail {
	return bus.Detail{
		SessionID: n.opts.SessionID,
		CurrStep:  n.CurrentStep(),
		PrevStep:  n.PreviousStep(),
	}
}

// GoTo moves to step. It reports false when the step is unknown or a listener
// vetoes the change, leaving the path untouched.
func (n *Navigator) GoTo(ctx context.Context, step string) bool {
	if !n.known(step) {
		n.log.Warn("Unknown step", "step", step, "curr_step", n.CurrentStep())
		return false
	}

	data := &bus.PathData{
		CurrPath: n.CurrentStep(),
		PrevPath: n.PreviousStep(),
		NextPath: step,
	}
	event := n.bus.Dispatch(ctx, bus.EventChangePath, n.Detail(), data)
	if event.DefaultPrevented() {
		n.log.Debug("Path change prevented", "next_step", step)
		return false
	}

	next := data.NextPath
	if next != step && !n.known(next) {
		n.log.Warn("Rewritten step is unknown", "step", next)
		return false
	}

	if n.effects != nil {
		n.effects.SetTyping(true)
		if n.opts.BlockSpam {
			n.effects.SetInputDisabled(true)
		}
		n.effects.SetSensitiveInput(false)
	}

	n.path.Update(func(path []string) []string {
		out := make([]string, len(path), len(path)+1)
		copy(out, path)
		return append(out, next)
	})
	return true
}

// Reset replaces the path with the single entry step.
func (n *Navigator) Reset(entry string) {
	if entry == "" {
		n.path.Set(nil)
		return
	}
	n.path.Set([]string{entry})
}

// Subscribe delivers the path after every change.
func (n *Navigator) Subscribe(ctx context.Context, buffer int) (<-chan []string, func()) {
	return n.path.Subscribe(ctx, buffer)
}

func (n *Navigator) known(step string) bool {
	if step == "" {
		return false
	}
	return n.steps == nil || n.steps.Has(step)
}
