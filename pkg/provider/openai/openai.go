// Package openai answers chat prompts through the OpenAI Responses API, keeping
// one server-side conversation per responder.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"chatflow/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

type Responder struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration

	mu             sync.Mutex
	conversationID string
}

func New(cfg config.ProviderConfig) (*Responder, error) {
	apiKey := resolveAPIKey(cfg.OpenAI)
	if apiKey == "" {
		return nil, errors.New("provider.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.OpenAI.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.OpenAI.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.OpenAI.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(cfg.OpenAI.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Responder{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
	}, nil
}

func (r *Responder) Health(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := responderLogger().With("operation", "health")
	startedAt := time.Now()

	if _, err := r.client.Models.List(ctx); err != nil {
		log.Debug("Provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("Provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Reply sends prompt in the responder's conversation and returns the output text.
func (r *Responder) Reply(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt is required")
	}

	conversationID, err := r.conversation(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := responderLogger().With("operation", "reply", "conversation_id", conversationID)
	startedAt := time.Now()
	log.Debug("Provider request started", "model", r.model, "prompt_length", len(prompt))

	response, err := r.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: r.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
		Conversation: responses.ResponseNewParamsConversationUnion{
			OfConversationObject: &responses.ResponseConversationParam{ID: conversationID},
		},
	})
	if err != nil {
		log.Debug("Provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("reply failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return "", errors.New("reply succeeded but returned no text")
	}
	log.Debug("Provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, nil
}

// Reset forgets the conversation so the next reply starts a new one.
func (r *Responder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversationID = ""
}

func (r *Responder) conversation(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conversationID != "" {
		return r.conversationID, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	conversation, err := r.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		return "", fmt.Errorf("create conversation failed: %w", err)
	}
	if conversation == nil || strings.TrimSpace(conversation.ID) == "" {
		return "", errors.New("create conversation returned empty id")
	}

	r.conversationID = strings.TrimSpace(conversation.ID)
	responderLogger().Debug("Conversation created", "conversation_id", r.conversationID)
	return r.conversationID, nil
}

func responderLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (r *Responder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("provider.model is required")
	}

	provider, id, found := strings.Cut(model, "/")
	if !found {
		return model, nil
	}

	provider = strings.TrimSpace(provider)
	id = strings.TrimSpace(id)
	if provider == "" || id == "" {
		return "", fmt.Errorf("model %q is invalid", model)
	}
	if provider != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by the openai responder", provider)
	}

	return id, nil
}
