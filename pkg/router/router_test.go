package router

import (
	"testing"

	"github.com/pario-ai/scribe/pkg/config"
	"github.com/pario-ai/scribe/pkg/pricing"
)

func TestResolveNoRoutes(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com/v1", APIKey: "sk-1"},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("gpt-4.1")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "openai" || routes[0].Model != "gpt-4.1" {
		t.Errorf("unexpected route: %+v", routes[0])
	}
}

func TestResolveWithAlias(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com/v1", APIKey: "sk-1"},
			{Name: "azure", URL: "https://example.openai.azure.com", APIKey: "sk-2"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model: "fast",
					Targets: []config.RouteTarget{
						{Provider: "openai", Model: "gpt-4o-mini"},
						{Provider: "azure", Model: "gpt-4.1-mini"},
					},
				},
			},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("fast")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Model != "gpt-4o-mini" || routes[0].Provider.Name != "openai" {
		t.Errorf("unexpected first route: %+v", routes[0])
	}
	if routes[1].Model != "gpt-4.1-mini" || routes[1].Provider.Name != "azure" {
		t.Errorf("unexpected second route: %+v", routes[1])
	}
}

func TestResolveUnknownProviders(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{{Name: "openai"}},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{Model: "x", Targets: []config.RouteTarget{{Provider: "gone"}}},
			},
		},
	}
	if _, err := New(cfg).Resolve("x"); err == nil {
		t.Error("expected error when every target is unknown")
	}
}

func TestResolveNoProviders(t *testing.T) {
	if _, err := New(&config.Config{}).Resolve("gpt-4.1"); err == nil {
		t.Error("expected error without providers")
	}
}

func TestStageModelFallbacks(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{{Name: "openai"}},
		Router: config.RouterConfig{
			Stages: map[string]string{StageReviewer: "gpt-4o-mini"},
		},
	}
	r := New(cfg)

	if got := r.StageModel(StageReviewer); got != "gpt-4o-mini" {
		t.Errorf("expected stage mapping, got %s", got)
	}
	if got := r.StageModel(StageWriter); got != pricing.DefaultModel {
		t.Errorf("expected pricing default, got %s", got)
	}

	cfg.DefaultModel = "gpt-4.1"
	routes, err := r.ForStage(StageWriter)
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Model != "gpt-4.1" {
		t.Errorf("expected default_model, got %s", routes[0].Model)
	}
}
