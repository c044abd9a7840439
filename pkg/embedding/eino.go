// Package embedding adapts an eino embedder to the retrieval layer.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// Config selects the embedding endpoint.
type Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-3-large"

// NewEinoEmbedder creates an OpenAI-compatible eino embedder.
func NewEinoEmbedder(ctx context.Context, cfg Config) (embedding.Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	e, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}
	return e, nil
}

// QueryEmbedder embeds a single query and L2-normalises it so a dot product
// against a normalised corpus is cosine similarity.
type QueryEmbedder struct {
	embedder embedding.Embedder
}

// NewQueryEmbedder wraps e.
func NewQueryEmbedder(e embedding.Embedder) *QueryEmbedder {
	return &QueryEmbedder{embedder: e}
}

// Embed returns the normalised embedding of text.
func (q *QueryEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("query is empty")
	}
	vecs, err := q.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return Normalize(vecs[0]), nil
}

// Normalize returns v scaled to unit length. A zero vector is returned as is.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float64, len(v))
	copy(out, v)
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i := range out {
		out[i] /= n
	}
	return out
}
