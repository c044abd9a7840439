package drafting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pario-ai/scribe/pkg/llm"
	"github.com/pario-ai/scribe/pkg/models"
)

func stubClient(text string, prompts *[]string) llm.Client {
	return llm.ClientFunc(func(_ context.Context, p string) (llm.Response, error) {
		*prompts = append(*prompts, p)
		return llm.Response{Text: text, Usage: models.NewTokenUsage("gpt-4o", 50, 25, 0, 0)}, nil
	})
}

func TestDraftStripsHeadings(t *testing.T) {
	var prompts []string
	w := New(stubClient("# Title\n\nFirst paragraph.\n  ## Sub\nSecond paragraph.\n", &prompts))

	out, err := w.Draft(context.Background(), Input{
		Spec:     models.ChapterSpec{ID: "1", HeadingLabel: "Intro", KeyTopics: []string{"A", "B"}},
		Research: "facts",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "First paragraph.\nSecond paragraph."
	if out.Text != want {
		t.Errorf("expected %q, got %q", want, out.Text)
	}
	if out.Usage.TotalTokens != 75 {
		t.Errorf("expected 75 tokens, got %d", out.Usage.TotalTokens)
	}
	p := prompts[0]
	if !strings.Contains(p, "Key topics to cover:\n- A\n- B") {
		t.Error("expected topic bullets")
	}
	if strings.Contains(p, "Please address the following feedback") {
		t.Error("expected no feedback directive on a first draft")
	}
}

func TestDraftIncludesFeedback(t *testing.T) {
	var prompts []string
	w := New(stubClient("text", &prompts))
	_, err := w.Draft(context.Background(), Input{
		Spec:     models.ChapterSpec{ID: "1", HeadingLabel: "Intro"},
		Style:    models.StyleGuide{Tone: "Academic"},
		Feedback: "too short",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompts[0], "Please address the following feedback from the previous version: too short") {
		t.Error("expected feedback directive")
	}
	if !strings.Contains(prompts[0], "Writing style: Academic") {
		t.Error("expected configured tone")
	}
}

func TestDraftError(t *testing.T) {
	w := New(llm.ClientFunc(func(context.Context, string) (llm.Response, error) {
		return llm.Response{}, errors.New("down")
	}))
	if _, err := w.Draft(context.Background(), Input{Spec: models.ChapterSpec{ID: "1"}}); err == nil {
		t.Error("expected error")
	}
}
