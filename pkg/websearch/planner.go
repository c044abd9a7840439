package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pario-ai/scribe/pkg/llm"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/prompt"
)

// DefaultMaxQueries is the number of sub-queries planned per chapter.
const DefaultMaxQueries = 3

// Plan is the set of sub-queries for one chapter and the usage spent
// producing it.
type Plan struct {
	Queries []string
	Usage   models.TokenUsage
}

// Planner derives web search sub-queries from a chapter.
type Planner interface {
	Plan(ctx context.Context, spec models.ChapterSpec) (Plan, error)
}

// BaseQuery is the chapter's combined search text, shared with knowledge
// base retrieval.
func BaseQuery(spec models.ChapterSpec) string {
	return fmt.Sprintf("Purpose: %s\n\nKey topics: %s",
		strings.Join(spec.Purpose, " "), strings.Join(spec.KeyTopics, " "))
}

// TopicPlanner builds queries from the heading, purpose and key topics
// without calling a model.
type TopicPlanner struct {
	MaxQueries int
}

// Plan returns the heading with the purpose, then heading-qualified key
// topics, deduplicated and capped at MaxQueries.
func (p TopicPlanner) Plan(_ context.Context, spec models.ChapterSpec) (Plan, error) {
	limit := p.MaxQueries
	if limit <= 0 {
		limit = DefaultMaxQueries
	}

	var candidates []string
	head := strings.TrimSpace(spec.HeadingLabel)
	if purpose := strings.TrimSpace(strings.Join(spec.Purpose, " ")); purpose != "" {
		candidates = append(candidates, strings.TrimSpace(head+" "+purpose))
	}
	for _, topic := range spec.KeyTopics {
		if topic = strings.TrimSpace(topic); topic != "" {
			candidates = append(candidates, strings.TrimSpace(head+" "+topic))
		}
	}
	if len(candidates) == 0 && head != "" {
		candidates = append(candidates, head)
	}

	seen := make(map[string]bool, len(candidates))
	var queries []string
	for _, q := range candidates {
		if seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
		if len(queries) == limit {
			break
		}
	}
	return Plan{Queries: queries}, nil
}

// LLMPlanner asks a model for diverse queries and falls back to Fallback
// when the answer cannot be parsed.
type LLMPlanner struct {
	Client     llm.Client
	MaxQueries int
	Fallback   Planner
}

// Plan calls the model. Its usage is returned even when the fallback is used.
func (p LLMPlanner) Plan(ctx context.Context, spec models.ChapterSpec) (Plan, error) {
	limit := p.MaxQueries
	if limit <= 0 {
		limit = DefaultMaxQueries
	}

	text, err := prompt.Render(ctx, prompt.Planner, map[string]any{
		"num_queries": limit,
		"information": BaseQuery(spec),
	})
	if err != nil {
		return Plan{}, err
	}
	resp, err := p.Client.Invoke(ctx, text)
	if err != nil {
		return Plan{}, err
	}

	queries, perr := parseQueries(resp.Text, limit)
	if perr != nil {
		logger.Warn(ctx, "could not parse planned queries, using topic planner", "error", perr)
		fb := p.Fallback
		if fb == nil {
			fb = TopicPlanner{MaxQueries: limit}
		}
		plan, err := fb.Plan(ctx, spec)
		if err != nil {
			return Plan{}, err
		}
		plan.Usage = plan.Usage.Add(resp.Usage)
		return plan, nil
	}
	return Plan{Queries: queries, Usage: resp.Usage}, nil
}

// parseQueries extracts the first JSON array of strings from text.
func parseQueries(text string, limit int) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no query list in %q", text)
	}
	var raw []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, err
	}
	var out []string
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty query list")
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
