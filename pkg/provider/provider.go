// Package provider selects the source of bot replies for free-form chat steps.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatflow/pkg/config"
	"chatflow/pkg/provider/echo"
	provideropenai "chatflow/pkg/provider/openai"
)

// Responder produces the bot reply to a user prompt.
type Responder interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

func New(cfg config.ProviderConfig) (Responder, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "echo"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving responder", "provider", name)

	switch name {
	case "echo":
		return echo.New(""), nil
	case "openai":
		return provideropenai.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
