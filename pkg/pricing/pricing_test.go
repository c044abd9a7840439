package pricing

import (
	"context"
	"testing"

	"github.com/pario-ai/scribe/pkg/models"
)

func TestCostKnownModel(t *testing.T) {
	tbl := New(nil, "")
	u := tbl.Cost(context.Background(), "gpt-4o", 2000, 1000)

	if !models.CostsEqual(u.InputCost, 0.005) {
		t.Errorf("expected input cost 0.005, got %f", u.InputCost)
	}
	if !models.CostsEqual(u.OutputCost, 0.01) {
		t.Errorf("expected output cost 0.01, got %f", u.OutputCost)
	}
	if !u.Consistent() {
		t.Error("expected consistent usage")
	}
	if u.TotalTokens != 3000 {
		t.Errorf("expected 3000 tokens, got %d", u.TotalTokens)
	}
}

func TestCostUnknownModelFallsBack(t *testing.T) {
	tbl := New(nil, "")
	u := tbl.Cost(context.Background(), "mystery-model", 1000, 1000)
	want := tbl.Cost(context.Background(), DefaultModel, 1000, 1000)

	if !models.CostsEqual(u.TotalCost, want.TotalCost) {
		t.Errorf("expected default cost %f, got %f", want.TotalCost, u.TotalCost)
	}
	if u.Model != "mystery-model" {
		t.Errorf("expected requested model name kept, got %q", u.Model)
	}
}

func TestOverrides(t *testing.T) {
	tbl := New([]models.ModelPricing{
		{Model: "local-llama", PromptCost: 0, CompletionCost: 0},
		{Model: "gpt-4o", PromptCost: 1, CompletionCost: 2},
	}, "local-llama")

	if tbl.DefaultModel() != "local-llama" {
		t.Errorf("expected default local-llama, got %s", tbl.DefaultModel())
	}
	u := tbl.Cost(context.Background(), "gpt-4o", 1000, 1000)
	if !models.CostsEqual(u.TotalCost, 3) {
		t.Errorf("expected overridden cost 3, got %f", u.TotalCost)
	}
	if u := tbl.Cost(context.Background(), "unknown", 5000, 5000); u.TotalCost != 0 {
		t.Errorf("expected free fallback, got %f", u.TotalCost)
	}
}

func TestEmptyModelUsesDefault(t *testing.T) {
	tbl := New(nil, "")
	u := tbl.Cost(context.Background(), "", 10, 10)
	if u.Model != DefaultModel {
		t.Errorf("expected %s, got %s", DefaultModel, u.Model)
	}
}

func TestUnpricedDefaultModelFallsBackToBuiltin(t *testing.T) {
	tbl := New(nil, "gpt-4.1")
	if tbl.DefaultModel() != DefaultModel {
		t.Fatalf("expected fallback %s, got %s", DefaultModel, tbl.DefaultModel())
	}

	u := tbl.Cost(context.Background(), "some-unknown-model", 1000, 1000)
	if u.TotalCost <= 0 {
		t.Fatalf("expected a non-zero fallback cost, got %f", u.TotalCost)
	}
	if !models.CostsEqual(u.InputCost, 0.003) || !models.CostsEqual(u.OutputCost, 0.015) {
		t.Errorf("expected %s prices, got input %f output %f", DefaultModel, u.InputCost, u.OutputCost)
	}
}

func TestPricedDefaultModelKept(t *testing.T) {
	overrides := []models.ModelPricing{{Model: "gpt-4.1", PromptCost: 0.002, CompletionCost: 0.008}}
	tbl := New(overrides, "gpt-4.1")
	if tbl.DefaultModel() != "gpt-4.1" {
		t.Fatalf("expected priced default kept, got %s", tbl.DefaultModel())
	}
	u := tbl.Cost(context.Background(), "mystery-model", 1000, 1000)
	if !models.CostsEqual(u.TotalCost, 0.01) {
		t.Errorf("expected gpt-4.1 prices applied, got %f", u.TotalCost)
	}
}
