// Package retrieval ranks knowledge base entries against a query by cosine
// similarity.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/metrics"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Ranking defaults.
const (
	DefaultTopK      = 10
	DefaultThreshold = 0.3
	excludedScore    = -1
)

// Threshold returns a pointer to v for Options.Threshold.
func Threshold(v float64) *float64 { return &v }

// Embedder turns text into a vector in the corpus embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options tune a search. Zero values select the defaults; a nil Threshold
// means DefaultThreshold, so an explicit zero threshold is expressible.
type Options struct {
	TopK           int
	Threshold      *float64
	CategoryFilter string
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Threshold == nil {
		o.Threshold = Threshold(DefaultThreshold)
	}
	return o
}

// Ranker searches corpora with query embeddings from an Embedder.
type Ranker struct {
	embedder Embedder
	opts     Options
}

// NewRanker creates a Ranker with default options opts.
func NewRanker(e Embedder, opts Options) *Ranker {
	return &Ranker{embedder: e, opts: opts.withDefaults()}
}

// Search embeds query and ranks corpus against it.
func (r *Ranker) Search(ctx context.Context, corpus *Corpus, query string, opts Options) ([]models.SearchResult, error) {
	if corpus == nil || corpus.Len() == 0 {
		return nil, nil
	}
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return Rank(corpus, vec, r.merge(corpus.Options.or(opts)))
}

// CorpusResults is the independent result set of one corpus.
type CorpusResults struct {
	Corpus  string
	Label   string
	Results []models.SearchResult
}

// SearchAll embeds query once and ranks every corpus independently. The
// returned slice follows the order of corpora.
func (r *Ranker) SearchAll(ctx context.Context, corpora []*Corpus, query string, opts Options) ([]CorpusResults, error) {
	out := make([]CorpusResults, len(corpora))
	nonEmpty := false
	for i, c := range corpora {
		out[i] = CorpusResults{Corpus: c.Name, Label: c.Label}
		if c.Len() > 0 {
			nonEmpty = true
		}
	}
	if !nonEmpty {
		return out, nil
	}

	vec, err := r.embed(ctx, query)
	if err != nil {
		return out, err
	}

	g, _ := errgroup.WithContext(ctx)
	for i, c := range corpora {
		g.Go(func() error {
			start := time.Now()
			res, err := Rank(c, vec, r.merge(c.Options.or(opts)))
			metrics.RetrievalDuration.WithLabelValues(c.Name).Observe(time.Since(start).Seconds())
			if err != nil {
				return err
			}
			metrics.RetrievalResults.WithLabelValues(c.Name).Observe(float64(len(res)))
			out[i].Results = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// or returns o with zero fields taken from fallback.
func (o Options) or(fallback Options) Options {
	if o.TopK <= 0 {
		o.TopK = fallback.TopK
	}
	if o.Threshold == nil {
		o.Threshold = fallback.Threshold
	}
	if o.CategoryFilter == "" {
		o.CategoryFilter = fallback.CategoryFilter
	}
	return o
}

func (r *Ranker) merge(opts Options) Options {
	return opts.or(r.opts)
}

func (r *Ranker) embed(ctx context.Context, query string) ([]float64, error) {
	ctx, span := tracer.Start(ctx, "retrieval.embed")
	defer span.End()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, "query embedding failed", err)
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, apperrors.KindDegraded, "embed query")
	}
	return vec, nil
}

// Rank scores every row of corpus by dot product with query, excludes rows
// outside opts.CategoryFilter, takes the TopK best by a stable descending
// sort and drops results scoring below opts.Threshold. Excluded rows never
// surface, whatever the threshold.
func Rank(corpus *Corpus, query []float64, opts Options) ([]models.SearchResult, error) {
	opts = opts.withDefaults()
	if corpus.Len() == 0 {
		return nil, nil
	}
	if len(query) != corpus.Dim() {
		return nil, apperrors.Wrap(
			fmt.Errorf("query dimension %d, corpus %s dimension %d", len(query), corpus.Name, corpus.Dim()),
			apperrors.CodeRetrievalFailed, apperrors.KindDegraded, "embedding dimension mismatch")
	}

	scores := make([]float64, corpus.Len())
	excluded := make([]bool, corpus.Len())
	for i, row := range corpus.Rows {
		scores[i] = dot(row.Embedding, query)
		if opts.CategoryFilter != "" &&
			row.CategoryPrimary != opts.CategoryFilter &&
			row.CategorySecondary != opts.CategoryFilter {
			scores[i] = excludedScore
			excluded[i] = true
		}
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if len(idx) > opts.TopK {
		idx = idx[:opts.TopK]
	}

	var results []models.SearchResult
	for _, i := range idx {
		if excluded[i] || scores[i] < *opts.Threshold {
			continue
		}
		row := corpus.Rows[i]
		results = append(results, models.SearchResult{
			Score:             scores[i],
			ID:                row.ID,
			Text:              row.Text,
			CategoryPrimary:   row.CategoryPrimary,
			CategorySecondary: row.CategorySecondary,
			Source:            corpus.Name,
		})
	}
	return results, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Merged returns every result of sets sorted by score, for display only.
func Merged(sets []CorpusResults) []models.SearchResult {
	var all []models.SearchResult
	for _, s := range sets {
		all = append(all, s.Results...)
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Score > all[b].Score
	})
	return all
}
