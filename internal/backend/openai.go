package backend

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/config"
	"github.com/tradecouncil/orchestrator/internal/registry"
)

// ErrNoChoices is returned when the completion API answers without content.
var ErrNoChoices = errors.New("no choices in completion response")

// ErrNotConfigured is returned at construction when credentials are missing.
var ErrNotConfigured = errors.New("reasoning backend not configured")

// OpenAIInvoker calls an OpenAI-compatible chat completion API, one call per
// participant invocation. Azure deployments are supported through the base
// URL and API version settings.
type OpenAIInvoker struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIInvoker builds the invoker from backend configuration.
func NewOpenAIInvoker(cfg config.BackendConfig, logger *zap.Logger) (*OpenAIInvoker, error) {
	if !cfg.IsConfigured() {
		return nil, ErrNotConfigured
	}
	var clientCfg openai.ClientConfig
	if cfg.APIVersion != "" {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		clientCfg.APIVersion = cfg.APIVersion
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	return &OpenAIInvoker{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Invoke sends one chat completion request on behalf of a participant. The
// participant's role prompt becomes the system message.
func (o *OpenAIInvoker) Invoke(ctx context.Context, p registry.Participant, input string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: RolePrompt(p)},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		o.logger.Warn("completion failed",
			zap.String("participant", p.Name),
			zap.Error(err))
		return "", fmt.Errorf("invoke %s: %w", p.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("invoke %s: %w", p.Name, ErrNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}
