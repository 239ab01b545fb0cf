// Package speech reads bot messages aloud.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"chatflow/pkg/config"
	"chatflow/pkg/logger"
)

type Options struct {
	Locale string
	Voices []string
	Rate   float64
	Volume float64
}

// OptionsFrom converts the speech config section.
func OptionsFrom(cfg config.SpeechConfig) Options {
	return Options{
		Locale: cfg.Locale,
		Voices: cfg.Voices,
		Rate:   cfg.Rate,
		Volume: cfg.Volume,
	}
}

// Speaker speaks text. Callers treat it as fire-and-forget.
type Speaker interface {
	Speak(ctx context.Context, text string, opts Options) error
}

// New returns a Command speaker when speech is enabled with a command, else Nop.
func New(cfg config.SpeechConfig, log *slog.Logger) Speaker {
	if !cfg.Enabled || strings.TrimSpace(cfg.Command) == "" {
		return NewNop(log)
	}
	return NewCommand(cfg.Command, log)
}

// Nop is used when no speech engine is available.
type Nop struct {
	log  *slog.Logger
	once sync.Once
}

func NewNop(log *slog.Logger) *Nop {
	return &Nop{log: logger.For(log, "speech")}
}

func (n *Nop) Speak(context.Context, string, Options) error {
	n.once.Do(func() {
		n.log.Info("Speech output unavailable")
	})
	return nil
}

// Command runs an external text-to-speech program such as espeak or say.
// The text is passed as the final argument.
type Command struct {
	name string
	args []string
	log  *slog.Logger
}

func NewCommand(command string, log *slog.Logger) *Command {
	fields := strings.Fields(command)
	c := &Command{log: logger.For(log, "speech")}
	if len(fields) > 0 {
		c.name = fields[0]
		c.args = fields[1:]
	}
	return c
}

func (c *Command) Speak(ctx context.Context, text string, opts Options) error {
	if c.name == "" {
		return fmt.Errorf("speech command is empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	args := append(append([]string{}, c.args...), c.voiceArgs(opts)...)
	args = append(args, text)

	cmd := exec.CommandContext(ctx, c.name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w: %s", c.name, err, strings.TrimSpace(string(output)))
	}

	c.log.Debug("Spoke message", "chars", len(text), "locale", opts.Locale)
	return nil
}

// voiceArgs maps options onto espeak-style flags. Other programs only get the text.
func (c *Command) voiceArgs(opts Options) []string {
	if !strings.Contains(c.name, "espeak") {
		return nil
	}

	var args []string
	switch {
	case len(opts.Voices) > 0:
		args = append(args, "-v", opts.Voices[0])
	case opts.Locale != "":
		args = append(args, "-v", strings.ToLower(opts.Locale))
	}
	if opts.Rate > 0 {
		// espeak speaks 175 words per minute at rate 1.
		args = append(args, "-s", strconv.Itoa(int(opts.Rate*175)))
	}
	if opts.Volume > 0 {
		args = append(args, "-a", strconv.Itoa(int(opts.Volume*100)))
	}
	return args
}
