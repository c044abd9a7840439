package router

import (
	"fmt"

	"github.com/pario-ai/scribe/pkg/config"
	"github.com/pario-ai/scribe/pkg/pricing"
)

// Pipeline stages that issue LLM calls.
const (
	StageResearcher = "researcher"
	StageWriter     = "writer"
	StageReviewer   = "reviewer"
	StagePlanner    = "planner"
)

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves stages and model names to ordered provider+model chains.
type Router struct {
	cfg *config.Config
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// StageModel returns the model requested for stage: the stage mapping, then
// default_model, then the pricing default.
func (r *Router) StageModel(stage string) string {
	if m := r.cfg.Router.Stages[stage]; m != "" {
		return m
	}
	if r.cfg.DefaultModel != "" {
		return r.cfg.DefaultModel
	}
	return pricing.DefaultModel
}

// ForStage resolves the routes of the model configured for stage.
func (r *Router) ForStage(stage string) ([]Route, error) {
	return r.Resolve(r.StageModel(stage))
}

// Resolve returns an ordered list of routes for the requested model.
// If the model matches a configured route, the route's targets are returned.
// Otherwise, the first provider is used with the original model name.
func (r *Router) Resolve(requestedModel string) ([]Route, error) {
	if len(r.cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	providerIndex := make(map[string]config.ProviderConfig, len(r.cfg.Providers))
	for _, p := range r.cfg.Providers {
		providerIndex[p.Name] = p
	}

	for _, route := range r.cfg.Router.Routes {
		if route.Model != requestedModel {
			continue
		}
		var routes []Route
		for _, target := range route.Targets {
			provider, ok := providerIndex[target.Provider]
			if !ok {
				continue // skip unknown providers
			}
			model := target.Model
			if model == "" {
				model = requestedModel
			}
			routes = append(routes, Route{Provider: provider, Model: model})
		}
		if len(routes) == 0 {
			return nil, fmt.Errorf("route %q: all providers unknown", requestedModel)
		}
		return routes, nil
	}

	return []Route{{Provider: r.cfg.Providers[0], Model: requestedModel}}, nil
}
