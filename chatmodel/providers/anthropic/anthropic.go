// Package anthropic provides the Anthropic (Claude) chatmodel provider,
// used by the Prompt Pipeline's moderation and routing stages when
// configured with chat.provider = "anthropic".
package anthropic

import (
	"context"
	"fmt"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/musicarena/fabric/appconfig"
	"github.com/musicarena/fabric/chatmodel"
)

const defaultMaxTokens = 1024

func init() {
	chatmodel.Register("anthropic", func(cfg appconfig.ProviderConfig) (chatmodel.ChatModel, error) {
		return New(cfg)
	})
}

// Model implements chatmodel.ChatModel using the Anthropic Messages API.
type Model struct {
	client anthropicSDK.Client
	model  string
}

// New creates a new Anthropic chatmodel.
func New(cfg appconfig.ProviderConfig) (*Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	opts := []anthropicOption.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, anthropicOption.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicOption.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropicOption.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, anthropicOption.WithMaxRetries(0))
	return &Model{client: anthropicSDK.NewClient(opts...), model: cfg.Model}, nil
}

// ModelID returns the model identifier.
func (m *Model) ModelID() string { return m.model }

// Generate sends the request and returns a complete response.
func (m *Model) Generate(ctx context.Context, req chatmodel.Request) (*chatmodel.Response, error) {
	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	var system string
	messages := make([]anthropicSDK.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case chatmodel.RoleSystem:
			system = msg.Content
		case chatmodel.RoleAssistant:
			messages = append(messages, anthropicSDK.NewAssistantMessage(anthropicSDK.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(msg.Content)))
		}
	}

	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(m.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropicSDK.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropicSDK.Float(*req.Temperature)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: generate failed: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return &chatmodel.Response{
		Content:      content,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
