package responder

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/anigma-ai/anigma/core"
)

// OpenAIProvider speaks any OpenAI-compatible chat-completions API. With a
// custom base URL this covers the Hugging Face inference router, local
// OpenAI-compatible servers, and Azure deployments alike.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for the given credential and model.
// An empty baseURL targets api.openai.com.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Name identifies the provider in logs.
func (p *OpenAIProvider) Name() string {
	return "openai:" + p.model
}

// Complete sends the messages and returns the first choice's text.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []core.Message, maxTokens int) (string, error) {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case core.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    converted,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(defaultRemoteTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
