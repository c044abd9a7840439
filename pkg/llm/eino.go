package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/pario-ai/scribe/pkg/router"
)

// ModelSource returns the chat model serving a route.
type ModelSource interface {
	Model(ctx context.Context, route router.Route) (model.BaseChatModel, error)
}

// Factory lazily builds and caches one eino chat model per provider and model.
type Factory struct {
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{models: make(map[string]model.BaseChatModel)}
}

// Model returns the chat model for route, creating it on first use.
func (f *Factory) Model(ctx context.Context, route router.Route) (model.BaseChatModel, error) {
	key := route.Provider.Name + "/" + route.Model

	f.mu.RLock()
	m, ok := f.models[key]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok = f.models[key]; ok {
		return m, nil
	}

	p := route.Provider
	cfg := &openai.ChatModelConfig{
		APIKey:      p.APIKey,
		BaseURL:     p.URL,
		Model:       route.Model,
		Temperature: p.Temperature,
		Timeout:     p.Timeout,
	}
	if p.MaxTokens > 0 {
		maxTokens := p.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", key, err)
	}

	f.models[key] = chatModel
	return chatModel, nil
}
