// Package openai provides the OpenAI chatmodel provider, used by the
// Prompt Pipeline's moderation and routing stages when configured with
// chat.provider = "openai".
package openai

import (
	"context"
	"fmt"

	openaiSDK "github.com/sashabaranov/go-openai"

	"github.com/musicarena/fabric/appconfig"
	"github.com/musicarena/fabric/chatmodel"
)

func init() {
	chatmodel.Register("openai", func(cfg appconfig.ProviderConfig) (chatmodel.ChatModel, error) {
		return New(cfg)
	})
}

// Model implements chatmodel.ChatModel using the OpenAI chat completions API.
type Model struct {
	client *openaiSDK.Client
	model  string
}

// New creates a new OpenAI chatmodel.
func New(cfg appconfig.ProviderConfig) (*Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	config := openaiSDK.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Model{client: openaiSDK.NewClientWithConfig(config), model: cfg.Model}, nil
}

// ModelID returns the model identifier.
func (m *Model) ModelID() string { return m.model }

// Generate sends the request and returns a complete response.
func (m *Model) Generate(ctx context.Context, req chatmodel.Request) (*chatmodel.Response, error) {
	messages := make([]openaiSDK.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openaiSDK.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	apiReq := openaiSDK.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		apiReq.Temperature = float32(*req.Temperature)
	}

	resp, err := m.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("openai: generate failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty response")
	}

	return &chatmodel.Response{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
