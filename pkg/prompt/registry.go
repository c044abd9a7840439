// Package prompt holds the stage prompt templates and renders them with the
// eino prompt component.
package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// ID names a template.
type ID string

const (
	Research          ID = "research"
	ResearchNoSources ID = "research_no_sources"
	Writer            ID = "writer"
	Reviewer          ID = "reviewer"
	Planner           ID = "planner"
)

// Registry parses templates on first use and caches them.
type Registry struct {
	mu    sync.RWMutex
	cache map[ID]einoprompt.ChatTemplate
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[ID]einoprompt.ChatTemplate)}
}

var defaultRegistry = NewRegistry()

// Render formats template id with vars using the shared registry.
func Render(ctx context.Context, id ID, vars map[string]any) (string, error) {
	return defaultRegistry.Render(ctx, id, vars)
}

// Render formats template id with vars and returns the user message text.
// Every placeholder must have a value.
func (r *Registry) Render(ctx context.Context, id ID, vars map[string]any) (string, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return "", err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render prompt %s: %w", id, err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("render prompt %s: no messages", id)
	}
	return msgs[len(msgs)-1].Content, nil
}

// ChatTemplate returns the parsed template for id.
func (r *Registry) ChatTemplate(id ID) (einoprompt.ChatTemplate, error) {
	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	b, err := templatesFS.ReadFile("templates/" + string(id) + ".txt")
	if err != nil {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
	tpl := einoprompt.FromMessages(schema.FString, schema.UserMessage(strings.TrimSpace(string(b))))
	r.cache[id] = tpl
	return tpl, nil
}
