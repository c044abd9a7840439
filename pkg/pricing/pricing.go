// Package pricing converts token counts into costs using a per-model table.
package pricing

import (
	"context"
	"sync"

	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
)

// DefaultModel is the table entry used for models without a price.
const DefaultModel = "gpt-4.1-mini"

// Defaults is the built-in price list, cost per 1K tokens.
var Defaults = []models.ModelPricing{
	{Model: "gpt-4o-mini", PromptCost: 0.00015, CompletionCost: 0.0006},
	{Model: "gpt-4o", PromptCost: 0.0025, CompletionCost: 0.01},
	{Model: "claude-3-sonnet", PromptCost: 0.003, CompletionCost: 0.015},
	{Model: "gpt-4.1-mini", PromptCost: 0.003, CompletionCost: 0.015},
	{Model: "o3", PromptCost: 0.003, CompletionCost: 0.015},
	{Model: "claude-sonnet-4-20250514", PromptCost: 0.003, CompletionCost: 0.015},
}

// Table prices LLM calls. Unknown models fall back to the default model's
// prices with a warning, logged once per model.
type Table struct {
	prices       map[string]models.ModelPricing
	defaultModel string

	mu     sync.Mutex
	warned map[string]bool
}

// New builds a table from the built-in defaults overlaid with overrides.
// An empty or unpriced defaultModel selects DefaultModel, so the fallback
// always carries a price.
func New(overrides []models.ModelPricing, defaultModel string) *Table {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	t := &Table{
		prices:       buildPricingMap(Defaults),
		defaultModel: defaultModel,
		warned:       make(map[string]bool),
	}
	for _, p := range overrides {
		t.prices[p.Model] = p
	}
	if _, ok := t.prices[defaultModel]; !ok {
		logger.Warn(context.Background(), "default model has no pricing, falling back",
			"default_model", defaultModel, "fallback", DefaultModel)
		t.defaultModel = DefaultModel
	}
	return t
}

func buildPricingMap(pricing []models.ModelPricing) map[string]models.ModelPricing {
	m := make(map[string]models.ModelPricing, len(pricing))
	for _, p := range pricing {
		m[p.Model] = p
	}
	return m
}

// DefaultModel returns the fallback model name.
func (t *Table) DefaultModel() string {
	return t.defaultModel
}

// Lookup returns the price for model and whether it was found.
func (t *Table) Lookup(model string) (models.ModelPricing, bool) {
	p, ok := t.prices[model]
	return p, ok
}

// Cost builds a TokenUsage for a call. The usage keeps the requested model
// name even when default prices were applied.
func (t *Table) Cost(ctx context.Context, model string, promptTokens, completionTokens int) models.TokenUsage {
	if model == "" {
		model = t.defaultModel
	}
	p, ok := t.prices[model]
	if !ok {
		t.warnUnknown(ctx, model)
		p = t.prices[t.defaultModel]
	}
	return models.NewTokenUsage(model, promptTokens, completionTokens,
		(float64(promptTokens)/1000)*p.PromptCost,
		(float64(completionTokens)/1000)*p.CompletionCost,
	)
}

func (t *Table) warnUnknown(ctx context.Context, model string) {
	t.mu.Lock()
	seen := t.warned[model]
	t.warned[model] = true
	t.mu.Unlock()
	if !seen {
		logger.Warn(ctx, "no pricing for model, using default prices",
			"model", model, "default_model", t.defaultModel)
	}
}

// Models lists the priced models.
func (t *Table) Models() []models.ModelPricing {
	out := make([]models.ModelPricing, 0, len(t.prices))
	for _, p := range t.prices {
		out = append(out, p)
	}
	return out
}
