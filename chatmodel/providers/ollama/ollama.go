// Package ollama provides the Ollama chatmodel provider for local or
// self-hosted inference, used by the Prompt Pipeline when configured with
// chat.provider = "ollama".
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	ollamaAPI "github.com/ollama/ollama/api"

	"github.com/musicarena/fabric/appconfig"
	"github.com/musicarena/fabric/chatmodel"
)

func init() {
	chatmodel.Register("ollama", func(cfg appconfig.ProviderConfig) (chatmodel.ChatModel, error) {
		return New(cfg)
	})
}

// Model implements chatmodel.ChatModel using the Ollama chat API.
type Model struct {
	client *ollamaAPI.Client
	model  string
}

// New creates a new Ollama chatmodel.
func New(cfg appconfig.ProviderConfig) (*Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base_url: %w", err)
	}
	return &Model{client: ollamaAPI.NewClient(parsed, http.DefaultClient), model: cfg.Model}, nil
}

// ModelID returns the model identifier.
func (m *Model) ModelID() string { return m.model }

// Generate sends the request and returns a complete response. Ollama's Chat
// call is stream-first, so Generate collects the single non-streamed reply.
func (m *Model) Generate(ctx context.Context, req chatmodel.Request) (*chatmodel.Response, error) {
	messages := make([]ollamaAPI.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, ollamaAPI.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false
	options := map[string]any{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	apiReq := &ollamaAPI.ChatRequest{
		Model:    m.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var content string
	var promptEvalCount, evalCount int
	err := m.client.Chat(ctx, apiReq, func(resp ollamaAPI.ChatResponse) error {
		content += resp.Message.Content
		promptEvalCount = resp.PromptEvalCount
		evalCount = resp.EvalCount
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: generate failed: %w", err)
	}

	return &chatmodel.Response{
		Content:      content,
		InputTokens:  promptEvalCount,
		OutputTokens: evalCount,
	}, nil
}
