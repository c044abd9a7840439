package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/scribe/pkg/cache/redis"
	"github.com/pario-ai/scribe/pkg/embedding"
	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Config holds all Scribe configuration.
type Config struct {
	DBPath         string                `yaml:"db_path"`
	OutputDir      string                `yaml:"output_dir"`
	Outline        string                `yaml:"outline"`
	Style          StyleConfig           `yaml:"style"`
	Providers      []ProviderConfig      `yaml:"providers"`
	Router         RouterConfig          `yaml:"router"`
	DefaultModel   string                `yaml:"default_model"`
	Pricing        []models.ModelPricing `yaml:"pricing"`
	Embedding      embedding.Config      `yaml:"embedding"`
	KnowledgeBases []KnowledgeBaseConfig `yaml:"knowledge_bases"`
	WebSearch      WebSearchConfig       `yaml:"web_search"`
	Cache          CacheConfig           `yaml:"cache"`
	Revision       RevisionConfig        `yaml:"revision"`
	Budget         BudgetConfig          `yaml:"budget"`
	Audit          models.AuditConfig    `yaml:"audit"`
	Retry          RetryConfig           `yaml:"retry"`
	Render         RenderConfig          `yaml:"render"`
	Log            LogConfig             `yaml:"log"`
	Metrics        MetricsConfig         `yaml:"metrics"`
	Tracing        tracer.Config         `yaml:"tracing"`
}

// StyleConfig overrides the outline's style guide when Tone is set.
type StyleConfig struct {
	Tone string `yaml:"tone"`
}

// ProviderConfig defines an upstream LLM provider.
// Type is "openai" (default); any OpenAI-compatible endpoint works.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Type        string        `yaml:"type"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float32      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RouterConfig maps pipeline stages to models and models to fallback chains.
type RouterConfig struct {
	Stages map[string]string `yaml:"stages"`
	Routes []RouteConfig     `yaml:"routes"`
}

// RouteConfig maps a model alias to an ordered list of targets.
type RouteConfig struct {
	Model   string        `yaml:"model"`
	Targets []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model in a fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// KnowledgeBaseConfig points at one embedding corpus.
type KnowledgeBaseConfig struct {
	Name           string   `yaml:"name"`
	Label          string   `yaml:"label"`
	Path           string   `yaml:"path"`
	TopK           int      `yaml:"top_k"`
	Threshold      *float64 `yaml:"threshold"`
	CategoryFilter string   `yaml:"category_filter"`
}

// WebSearchConfig controls the web search collaborator.
// Planner is "topic" (default) or "llm".
type WebSearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	MaxQueries int           `yaml:"max_queries"`
	Planner    string        `yaml:"planner"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig controls the persistent web search cache.
// Backend is "memory", "sqlite" or "redis". A zero TTL never expires.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   redis.Config  `yaml:"redis"`
}

// RevisionConfig bounds the review loop. MaxReviews 0 is unbounded.
// OnExhausted is "force_accept" or "fail".
type RevisionConfig struct {
	MaxReviews  int    `yaml:"max_reviews"`
	OnExhausted string `yaml:"on_exhausted"`
}

// Revision exhaustion policies.
const (
	OnExhaustedForceAccept = "force_accept"
	OnExhaustedFail        = "fail"
)

// BudgetConfig controls budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// RetryConfig bounds retries of a single LLM route.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// RenderConfig controls conversion of the assembled markdown.
type RenderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Command      string `yaml:"command"`
	Format       string `yaml:"format"`
	ReferenceDoc string `yaml:"reference_doc"`
}

// LogConfig controls the process logger. Format is "text" or "json".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:    "scribe.db",
		OutputDir: "output",
		Outline:   "outline.json",
		WebSearch: WebSearchConfig{
			MaxQueries: 3,
			Planner:    "topic",
			Timeout:    2 * time.Minute,
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Revision: RevisionConfig{
			MaxReviews:  5,
			OnExhausted: OnExhaustedForceAccept,
		},
		Audit: models.AuditConfig{
			DBPath:        "scribe_audit.db",
			RetentionDays: 30,
			Include:       []string{"prompts", "responses"},
			MaxBodySize:   64 * 1024,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Render: RenderConfig{
			Command: "pandoc",
			Format:  "docx",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown enum values and inconsistent settings.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.ErrConfigInvalid.WithDetail(fmt.Sprintf(format, args...))
	}

	names := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return invalid("provider without name")
		}
		if names[p.Name] {
			return invalid("duplicate provider %q", p.Name)
		}
		names[p.Name] = true
		if p.Type != "" && p.Type != "openai" {
			return invalid("provider %q: unknown type %q", p.Name, p.Type)
		}
	}
	for _, r := range c.Router.Routes {
		for _, t := range r.Targets {
			if !names[t.Provider] {
				return invalid("route %q: unknown provider %q", r.Model, t.Provider)
			}
		}
	}

	switch c.Cache.Backend {
	case "", "memory", "sqlite", "redis":
	default:
		return invalid("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return invalid("cache.redis.addr is required for the redis backend")
	}

	switch c.WebSearch.Planner {
	case "", "topic", "llm":
	default:
		return invalid("unknown web_search.planner %q", c.WebSearch.Planner)
	}
	if c.WebSearch.Enabled && c.WebSearch.Endpoint == "" {
		return invalid("web_search.endpoint is required when web search is enabled")
	}

	if c.Revision.MaxReviews < 0 {
		return invalid("revision.max_reviews must not be negative")
	}
	switch c.Revision.OnExhausted {
	case "", OnExhaustedForceAccept, OnExhaustedFail:
	default:
		return invalid("unknown revision.on_exhausted %q", c.Revision.OnExhausted)
	}

	for _, p := range c.Budget.Policies {
		if p.Scope != models.BudgetRun && p.Scope != models.BudgetChapter {
			return invalid("unknown budget scope %q", p.Scope)
		}
	}

	seen := make(map[string]bool, len(c.KnowledgeBases))
	for _, kb := range c.KnowledgeBases {
		if kb.Name == "" || kb.Path == "" {
			return invalid("knowledge base needs name and path")
		}
		if seen[kb.Name] {
			return invalid("duplicate knowledge base %q", kb.Name)
		}
		seen[kb.Name] = true
		if kb.Threshold != nil && (*kb.Threshold < -1 || *kb.Threshold > 1) {
			return invalid("knowledge base %q threshold %v outside [-1, 1]", kb.Name, *kb.Threshold)
		}
		if kb.TopK < 0 {
			return invalid("knowledge base %q top_k must not be negative", kb.Name)
		}
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return invalid("unknown log.format %q", c.Log.Format)
	}
	return nil
}
