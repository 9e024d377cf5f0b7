// Package chatmodel provides a narrow chat-completion abstraction used by
// the Prompt Pipeline's moderation and routing stages. Providers register
// themselves via init() so importing a provider package is sufficient to
// make it available through the registry:
//
//	import _ "github.com/musicarena/fabric/chatmodel/providers/anthropic"
//
//	model, err := chatmodel.New("anthropic", cfg)
package chatmodel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/musicarena/fabric/appconfig"
)

// Role identifies the speaker of a message in a chat completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat completion request.
type Message struct {
	Role    Role
	Content string
}

// Request holds the parameters for a single chat completion call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// Response holds the result of a chat completion call.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// ChatModel is the interface implemented by every provider.
type ChatModel interface {
	// Generate sends a request and returns a complete response.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the identifier of the underlying model.
	ModelID() string
}

// Factory constructs a ChatModel from provider configuration.
type Factory func(cfg appconfig.ProviderConfig) (ChatModel, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a provider factory available under name. It panics if name
// is empty, factory is nil, or name is already registered — mirroring the
// module's other self-registering registries.
func Register(name string, factory Factory) {
	if name == "" {
		panic("chatmodel: Register called with empty name")
	}
	if factory == nil {
		panic("chatmodel: Register called with nil factory for " + name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic("chatmodel: Register called twice for provider " + name)
	}
	registry[name] = factory
}

// New constructs a ChatModel for the named provider using cfg.
func New(name string, cfg appconfig.ProviderConfig) (ChatModel, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chatmodel: unknown provider %q", name)
	}
	return factory(cfg)
}

// List returns the names of all registered providers in sorted order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
