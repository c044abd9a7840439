// Package research gathers web, knowledge base and document sources for a
// chapter and asks the model for a research summary.
package research

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/llm"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/retrieval"
	"github.com/pario-ai/scribe/pkg/tracer"
	"github.com/pario-ai/scribe/pkg/websearch"
)

// WebSearcher returns the web results of a chapter.
type WebSearcher interface {
	Search(ctx context.Context, spec models.ChapterSpec) (websearch.Result, error)
}

// KnowledgeSearcher ranks every corpus against one query.
type KnowledgeSearcher interface {
	SearchAll(ctx context.Context, corpora []*retrieval.Corpus, query string, opts retrieval.Options) ([]retrieval.CorpusResults, error)
}

// Input is one research pass. Feedback is set when the previous draft was
// rejected.
type Input struct {
	Spec     models.ChapterSpec
	Style    models.StyleGuide
	Feedback string
}

// Output is the research text and the usage of every call made for it,
// web search planning included.
type Output struct {
	Text    string
	Usage   models.TokenUsage
	Sources Sources
}

// Sources holds the formatted context sections, empty when absent.
type Sources struct {
	Web       string
	Knowledge []Section
	Documents string
}

// Section is one labelled knowledge base block.
type Section struct {
	Label string
	Body  string
}

// Researcher runs the research stage. Web and knowledge are optional.
type Researcher struct {
	client    llm.Client
	web       WebSearcher
	knowledge KnowledgeSearcher
	corpora   []*retrieval.Corpus
	readFile  func(string) ([]byte, error)
}

// Option configures a Researcher.
type Option func(*Researcher)

// WithWebSearch enables web search.
func WithWebSearch(w WebSearcher) Option {
	return func(r *Researcher) { r.web = w }
}

// WithKnowledge enables knowledge base search over corpora.
func WithKnowledge(k KnowledgeSearcher, corpora []*retrieval.Corpus) Option {
	return func(r *Researcher) {
		r.knowledge = k
		r.corpora = corpora
	}
}

// New creates a Researcher calling client.
func New(client llm.Client, opts ...Option) *Researcher {
	r := &Researcher{client: client, readFile: os.ReadFile}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Research gathers sources concurrently, builds the prompt and calls the
// model. Source failures are inlined; only an LLM failure is returned.
func (r *Researcher) Research(ctx context.Context, in Input) (Output, error) {
	ctx, span := tracer.Start(ctx, "research.Research")
	defer span.End()

	var (
		src       Sources
		planUsage models.TokenUsage
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.web != nil {
		g.Go(func() error {
			text, u := r.searchWeb(gctx, in.Spec)
			src.Web, planUsage = text, u
			return nil
		})
	}
	if r.knowledge != nil && len(r.corpora) > 0 {
		g.Go(func() error {
			sections, err := r.searchKnowledge(gctx, in.Spec)
			src.Knowledge = sections
			return err
		})
	}
	if len(in.Spec.ResearchFiles) > 0 {
		g.Go(func() error {
			src.Documents = r.loadDocuments(gctx, in.Spec.ResearchFiles)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Output{}, err
	}

	combined := src.Combined()
	text, err := BuildPrompt(ctx, in, combined)
	if err != nil {
		return Output{}, err
	}
	logger.Info(ctx, "calling model for research",
		"research_chars", len(combined), "prompt_chars", len(text))

	resp, err := r.client.Invoke(ctx, text)
	if err != nil {
		span.RecordError(err)
		return Output{}, err
	}
	return Output{
		Text:    resp.Text,
		Usage:   resp.Usage.Add(planUsage),
		Sources: src,
	}, nil
}

func (r *Researcher) searchWeb(ctx context.Context, spec models.ChapterSpec) (string, models.TokenUsage) {
	res, err := r.web.Search(ctx, spec)
	if err != nil {
		logger.Warn(ctx, "web search unavailable", "error", err)
		return "Error: " + err.Error(), models.TokenUsage{}
	}
	return websearch.Format(res.Results), res.Usage
}

func (r *Researcher) searchKnowledge(ctx context.Context, spec models.ChapterSpec) ([]Section, error) {
	sets, err := r.knowledge.SearchAll(ctx, r.corpora, websearch.BaseQuery(spec), retrieval.Options{})
	if err != nil {
		if !apperrors.IsDegraded(err) {
			return nil, err
		}
		logger.Warn(ctx, "knowledge base search unavailable", "error", err)
		out := make([]Section, 0, len(r.corpora))
		for _, c := range r.corpora {
			out = append(out, Section{Label: c.Label, Body: "Knowledge base search unavailable: " + err.Error()})
		}
		return out, nil
	}

	var out []Section
	for _, s := range sets {
		if len(s.Results) == 0 {
			continue
		}
		logger.Info(ctx, "knowledge base entries found", "corpus", s.Corpus, "entries", len(s.Results),
			"top_score", s.Results[0].Score)
		out = append(out, Section{Label: s.Label, Body: retrieval.Format(s.Results)})
	}
	return out, nil
}

func (r *Researcher) loadDocuments(ctx context.Context, files []string) string {
	var docs []string
	for _, path := range files {
		data, err := r.readFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn(ctx, "research file not found", "path", path)
			continue
		}
		if err != nil {
			logger.Warn(ctx, "research file unreadable", "path", path, "error", err)
			continue
		}
		if len(data) == 0 {
			continue
		}
		logger.Info(ctx, "loaded research file", "file", filepath.Base(path), "chars", len(data))
		docs = append(docs, FormatDocument(filepath.Base(path), string(data)))
	}
	return strings.Join(docs, "\n\n")
}

// FormatDocument wraps a research file for inclusion in the prompt.
func FormatDocument(name, content string) string {
	return fmt.Sprintf("\n\n### Research Document: %s\n*Full document content included below:*\n\n%s\n\n---End of Research Document---\n",
		name, content)
}

// Combined joins the non-empty sections in fixed order: web, each knowledge
// base in configuration order, documents.
func (s Sources) Combined() string {
	var parts []string
	add := func(title, body string) {
		if body == "" {
			return
		}
		parts = append(parts, "=== "+title+" ===", body, "")
	}
	add("WEB SEARCH RESULTS", s.Web)
	for _, k := range s.Knowledge {
		add(strings.ToUpper(k.Label), k.Body)
	}
	add("RESEARCH DOCUMENTS", s.Documents)
	return strings.Join(parts, "\n")
}
