// Package bedrock provides the AWS Bedrock chatmodel provider, used by the
// Prompt Pipeline when configured with chat.provider = "bedrock". It
// targets Bedrock's Anthropic Claude models via the Messages-style
// invocation body.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/musicarena/fabric/appconfig"
	"github.com/musicarena/fabric/chatmodel"
)

const defaultMaxTokens = 1024

func init() {
	chatmodel.Register("bedrock", func(cfg appconfig.ProviderConfig) (chatmodel.ChatModel, error) {
		return New(context.Background(), cfg)
	})
}

// Model implements chatmodel.ChatModel using the Bedrock Runtime InvokeModel API.
type Model struct {
	client *bedrockruntime.Client
	model  string
}

// New creates a new Bedrock chatmodel, loading AWS credentials from the
// default provider chain.
func New(ctx context.Context, cfg appconfig.ProviderConfig) (*Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("bedrock: model is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}
	return &Model{client: bedrockruntime.NewFromConfig(awsCfg), model: cfg.Model}, nil
}

// ModelID returns the model identifier.
func (m *Model) ModelID() string { return m.model }

type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeBody struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []invokeMessage `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
}

type invokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate sends the request and returns a complete response.
func (m *Model) Generate(ctx context.Context, req chatmodel.Request) (*chatmodel.Response, error) {
	maxTokens := defaultMaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	var system string
	messages := make([]invokeMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == chatmodel.RoleSystem {
			system = msg.Content
			continue
		}
		messages = append(messages, invokeMessage{Role: string(msg.Role), Content: msg.Content})
	}

	body, err := json.Marshal(invokeBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         messages,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to marshal request: %w", err)
	}

	out, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &m.model,
		ContentType: strPtr("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: generate failed: %w", err)
	}

	var parsed invokeResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, fmt.Errorf("bedrock: failed to unmarshal response: %w", err)
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return &chatmodel.Response{
		Content:      content,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

func strPtr(s string) *string { return &s }
