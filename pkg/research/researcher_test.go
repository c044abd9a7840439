package research

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/llm"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/retrieval"
	"github.com/pario-ai/scribe/pkg/websearch"
)

type recordingClient struct {
	prompts []string
	usage   models.TokenUsage
	err     error
}

func (c *recordingClient) Invoke(_ context.Context, p string) (llm.Response, error) {
	c.prompts = append(c.prompts, p)
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Text: "research notes", Usage: c.usage}, nil
}

type fakeWeb struct {
	res websearch.Result
	err error
}

func (f fakeWeb) Search(context.Context, models.ChapterSpec) (websearch.Result, error) {
	return f.res, f.err
}

type fakeKnowledge struct {
	sets  []retrieval.CorpusResults
	err   error
	query string
}

func (f *fakeKnowledge) SearchAll(_ context.Context, _ []*retrieval.Corpus, q string, _ retrieval.Options) ([]retrieval.CorpusResults, error) {
	f.query = q
	return f.sets, f.err
}

func chapter() models.ChapterSpec {
	return models.ChapterSpec{
		ID:            "2.1",
		HeadingLabel:  "Model Scope",
		Purpose:       []string{"Define scope"},
		KeyTopics:     []string{"Portfolios", "Horizons"},
		TopicsToAvoid: []string{"Pricing"},
		Keywords:      []string{"PD", "IFRS 9"},
	}
}

func corpora() []*retrieval.Corpus {
	return []*retrieval.Corpus{
		{Name: "primary", Label: "Primary Knowledge Base"},
		{Name: "ifrs", Label: "IFRS Knowledge Base"},
	}
}

func TestResearchWithoutSources(t *testing.T) {
	client := &recordingClient{usage: models.NewTokenUsage("gpt-4o", 100, 20, 0.1, 0.2)}
	r := New(client)

	out, err := r.Research(context.Background(), Input{Spec: chapter()})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "research notes" {
		t.Errorf("expected model text, got %q", out.Text)
	}
	p := client.prompts[0]
	if !strings.Contains(p, "Tone and Style: Professional") {
		t.Error("expected default tone")
	}
	if !strings.Contains(p, "Keywords to incorporate in your research: PD, IFRS 9") {
		t.Error("expected keywords line")
	}
	if !strings.Contains(p, "help write a 500-word chapter") {
		t.Error("expected default word target")
	}
	if strings.Contains(p, "===") {
		t.Error("expected no source sections")
	}
}

func TestResearchCombinesSourcesInOrder(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(doc, []byte("internal notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	spec := chapter()
	spec.ResearchFiles = []string{doc, filepath.Join(dir, "missing.md")}
	spec.SourceHints = &models.SourceHints{Priority: "internal", InternalFiles: []string{"policy.pdf"}}

	planning := models.NewTokenUsage("gpt-4o-mini", 30, 10, 0.01, 0.02)
	web := fakeWeb{res: websearch.Result{
		Results: []models.WebResult{{Query: "q1", Response: "web answer"}},
		Usage:   planning,
	}}
	kb := &fakeKnowledge{sets: []retrieval.CorpusResults{
		{Corpus: "primary", Label: "Primary Knowledge Base", Results: []models.SearchResult{{Score: 0.9, ID: "a", Text: "kb text"}}},
		{Corpus: "ifrs", Label: "IFRS Knowledge Base"},
	}}
	client := &recordingClient{usage: models.NewTokenUsage("gpt-4o", 100, 20, 0.1, 0.2)}
	r := New(client, WithWebSearch(web), WithKnowledge(kb, corpora()))

	out, err := r.Research(context.Background(), Input{Spec: spec})
	if err != nil {
		t.Fatal(err)
	}

	p := client.prompts[0]
	iWeb := strings.Index(p, "=== WEB SEARCH RESULTS ===")
	iKB := strings.Index(p, "=== PRIMARY KNOWLEDGE BASE ===")
	iDoc := strings.Index(p, "=== RESEARCH DOCUMENTS ===")
	if iWeb < 0 || iKB < 0 || iDoc < 0 || !(iWeb < iKB && iKB < iDoc) {
		t.Fatalf("expected web, knowledge, documents sections in order, got %d %d %d", iWeb, iKB, iDoc)
	}
	if strings.Contains(p, "IFRS KNOWLEDGE BASE") {
		t.Error("expected empty corpus section omitted")
	}
	if !strings.Contains(p, "### Research Document: notes.md") {
		t.Error("expected document wrapper")
	}
	if strings.Contains(p, "missing.md") {
		t.Error("expected missing file skipped")
	}
	if !strings.Contains(p, "Source Guidance (Priority: internal):\n- Internal documents to reference: policy.pdf") {
		t.Error("expected source guidance")
	}
	if kb.query != websearch.BaseQuery(spec) {
		t.Errorf("expected knowledge query %q, got %q", websearch.BaseQuery(spec), kb.query)
	}
	if out.Usage.TotalTokens != 160 {
		t.Errorf("expected planning usage folded in, got %d tokens", out.Usage.TotalTokens)
	}
}

func TestResearchFeedbackDirective(t *testing.T) {
	client := &recordingClient{}
	r := New(client)
	_, err := r.Research(context.Background(), Input{Spec: chapter(), Feedback: "needs data sources"})
	if err != nil {
		t.Fatal(err)
	}
	want := "- Horizons\n- Additional research to address: needs data sources"
	if !strings.Contains(client.prompts[0], want) {
		t.Errorf("expected feedback topic, got %q", client.prompts[0])
	}
}

func TestResearchDegradedSourcesAreInlined(t *testing.T) {
	web := fakeWeb{err: apperrors.Wrap(errors.New("planner down"), apperrors.CodeWebSearchFailed, apperrors.KindDegraded, "plan web search")}
	kb := &fakeKnowledge{err: apperrors.Wrap(errors.New("429"), apperrors.CodeEmbeddingFailed, apperrors.KindDegraded, "embed query")}
	client := &recordingClient{}
	r := New(client, WithWebSearch(web), WithKnowledge(kb, corpora()))

	out, err := r.Research(context.Background(), Input{Spec: chapter()})
	if err != nil {
		t.Fatalf("expected degraded sources to be inlined, got %v", err)
	}
	if !strings.HasPrefix(out.Sources.Web, "Error: ") {
		t.Errorf("expected inline web error, got %q", out.Sources.Web)
	}
	if len(out.Sources.Knowledge) != 2 || !strings.Contains(out.Sources.Knowledge[1].Body, "unavailable") {
		t.Errorf("expected a note per corpus, got %+v", out.Sources.Knowledge)
	}
}

func TestResearchFatalKnowledgeError(t *testing.T) {
	kb := &fakeKnowledge{err: errors.New("boom")}
	r := New(&recordingClient{}, WithKnowledge(kb, corpora()))
	if _, err := r.Research(context.Background(), Input{Spec: chapter()}); err == nil {
		t.Error("expected untyped knowledge error to fail research")
	}
}

func TestResearchLLMFailure(t *testing.T) {
	r := New(&recordingClient{err: apperrors.ErrLLMCallFailed})
	_, err := r.Research(context.Background(), Input{Spec: chapter()})
	if !errors.Is(err, apperrors.ErrLLMCallFailed) {
		t.Errorf("expected ErrLLMCallFailed, got %v", err)
	}
}

func TestSourceGuidance(t *testing.T) {
	if SourceGuidance(nil) != "" {
		t.Error("expected empty guidance without hints")
	}
	got := SourceGuidance(&models.SourceHints{PublicReferences: []string{"BIS", "EBA"}})
	want := "\nSource Guidance (Priority: general):\n- Public sources to consult: BIS, EBA"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
