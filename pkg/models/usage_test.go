package models

import "testing"

func TestNewTokenUsageTotals(t *testing.T) {
	u := NewTokenUsage("gpt-4o", 1200, 300, 0.003, 0.003)
	if u.TotalTokens != 1500 {
		t.Errorf("expected 1500 total tokens, got %d", u.TotalTokens)
	}
	if !CostsEqual(u.TotalCost, 0.006) {
		t.Errorf("expected total cost 0.006, got %f", u.TotalCost)
	}
	if !u.Consistent() {
		t.Error("expected usage to be consistent")
	}
}

func TestAddElementwise(t *testing.T) {
	a := NewTokenUsage("gpt-4o", 100, 50, 0.1, 0.2)
	b := NewTokenUsage("gpt-4o", 10, 5, 0.01, 0.02)
	sum := a.Add(b)

	if sum.PromptTokens != 110 || sum.CompletionTokens != 55 || sum.TotalTokens != 165 {
		t.Errorf("unexpected token sums: %+v", sum)
	}
	if !CostsEqual(sum.TotalCost, 0.33) {
		t.Errorf("expected total cost 0.33, got %f", sum.TotalCost)
	}
	if sum.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", sum.Model)
	}
	if !sum.Consistent() {
		t.Error("expected sum to be consistent")
	}
}

func TestAddModelLabel(t *testing.T) {
	var zero TokenUsage
	a := NewTokenUsage("gpt-4o", 1, 1, 0, 0)
	b := NewTokenUsage("o3", 1, 1, 0, 0)

	if got := zero.Add(a).Model; got != "gpt-4o" {
		t.Errorf("expected gpt-4o, got %q", got)
	}
	if got := a.Add(b).Model; got != MixedModel {
		t.Errorf("expected %q, got %q", MixedModel, got)
	}
}

func TestAddOrderIndependent(t *testing.T) {
	usages := []TokenUsage{
		NewTokenUsage("a", 11, 7, 0.0000165, 0.0000042),
		NewTokenUsage("a", 1300, 211, 0.00195, 0.0001266),
		NewTokenUsage("a", 9, 1999, 0.0000135, 0.0011994),
	}
	forward := SumUsage(usages...)
	backward := SumUsage(usages[2], usages[1], usages[0])
	if !forward.Matches(backward) {
		t.Errorf("expected order-independent sums, got %+v vs %+v", forward, backward)
	}
}

func TestMatchesDetectsTokenDrift(t *testing.T) {
	a := NewTokenUsage("m", 10, 10, 0.1, 0.1)
	b := a
	b.PromptTokens++
	if a.Matches(b) {
		t.Error("expected mismatch on token difference")
	}
}

func TestChapterDefaults(t *testing.T) {
	c := ChapterSpec{ID: "1"}
	if c.HeadingLevel() != 1 {
		t.Errorf("expected level 1, got %d", c.HeadingLevel())
	}
	if c.WordTarget() != 500 {
		t.Errorf("expected 500 words, got %d", c.WordTarget())
	}
	if (StyleGuide{}).ToneOrDefault() != "Professional" {
		t.Error("expected default tone Professional")
	}
}
