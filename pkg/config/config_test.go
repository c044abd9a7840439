package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Revision.MaxReviews != 5 {
		t.Errorf("expected 5 max reviews, got %d", cfg.Revision.MaxReviews)
	}
	if cfg.Revision.OnExhausted != OnExhaustedForceAccept {
		t.Errorf("expected force_accept, got %s", cfg.Revision.OnExhausted)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected memory cache, got %s", cfg.Cache.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	path := writeConfig(t, `
db_path: "test.db"
providers:
  - name: openai
    url: https://api.openai.com/v1
    api_key: ${TEST_API_KEY}
router:
  stages:
    writer: gpt-4.1
  routes:
    - model: gpt-4.1
      targets:
        - provider: openai
cache:
  backend: sqlite
  ttl: 30m
revision:
  max_reviews: 0
  on_exhausted: fail
budget:
  enabled: true
  policies:
    - scope: run
      max_tokens: 500000
knowledge_bases:
  - name: ifrs
    label: IFRS KNOWLEDGE BASE
    path: data/ifrs.jsonl
    category_filter: IFRS
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "test.db" {
		t.Errorf("expected test.db, got %s", cfg.DBPath)
	}
	if cfg.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Providers[0].APIKey)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Revision.MaxReviews != 0 {
		t.Errorf("expected unbounded reviews, got %d", cfg.Revision.MaxReviews)
	}
	if cfg.Router.Stages["writer"] != "gpt-4.1" {
		t.Errorf("expected writer stage model, got %q", cfg.Router.Stages["writer"])
	}
	if len(cfg.Budget.Policies) != 1 || cfg.Budget.Policies[0].Scope != models.BudgetRun {
		t.Fatalf("unexpected policies %+v", cfg.Budget.Policies)
	}
	if cfg.KnowledgeBases[0].CategoryFilter != "IFRS" {
		t.Errorf("expected IFRS filter, got %s", cfg.KnowledgeBases[0].CategoryFilter)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected default retry attempts kept, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }},
		{"planner", func(c *Config) { c.WebSearch.Planner = "oracle" }},
		{"on exhausted", func(c *Config) { c.Revision.OnExhausted = "retry" }},
		{"negative reviews", func(c *Config) { c.Revision.MaxReviews = -1 }},
		{"budget scope", func(c *Config) {
			c.Budget.Policies = []models.BudgetPolicy{{Scope: "daily"}}
		}},
		{"provider type", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "x", Type: "grpc"}}
		}},
		{"route provider", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "openai"}}
			c.Router.Routes = []RouteConfig{{Model: "m", Targets: []RouteTarget{{Provider: "azure"}}}}
		}},
		{"duplicate kb", func(c *Config) {
			c.KnowledgeBases = []KnowledgeBaseConfig{{Name: "a", Path: "x"}, {Name: "a", Path: "y"}}
		}},
		{"kb threshold below range", func(c *Config) {
			c.KnowledgeBases = []KnowledgeBaseConfig{{Name: "ifrs", Path: "x", Threshold: ptr(-1.5)}}
		}},
		{"kb threshold above range", func(c *Config) {
			c.KnowledgeBases = []KnowledgeBaseConfig{{Name: "ifrs", Path: "x", Threshold: ptr(1.2)}}
		}},
		{"web search endpoint", func(c *Config) { c.WebSearch.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }

func TestLoadKnowledgeBaseThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	body := `knowledge_bases:
  - name: general
    path: general.jsonl
    threshold: 0
  - name: ifrs
    path: ifrs.jsonl
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if th := cfg.KnowledgeBases[0].Threshold; th == nil || *th != 0 {
		t.Errorf("expected explicit zero threshold kept, got %v", th)
	}
	if th := cfg.KnowledgeBases[1].Threshold; th != nil {
		t.Errorf("expected unset threshold to stay nil, got %v", *th)
	}
}
