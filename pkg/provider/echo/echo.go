// Package echo answers prompts locally by repeating them.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Responder struct {
	prefix string
}

func New(prefix string) *Responder {
	if prefix == "" {
		prefix = "You said:"
	}
	return &Responder{prefix: prefix}
}

func (r *Responder) Reply(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt is required")
	}

	return fmt.Sprintf("%s %s", r.prefix, prompt), nil
}
