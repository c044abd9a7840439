package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/metrics"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Cache is a persistent store for search outcomes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte) error
}

// Result is the outcome of a chapter's web search.
type Result struct {
	Results []models.WebResult
	// Usage is the planning cost. It is reported once per chapter, to the
	// first caller that receives fresh results.
	Usage  models.TokenUsage
	Cached bool
}

type runEntry struct {
	results []models.WebResult
	usage   models.TokenUsage
	claimed bool
}

// Service runs planned sub-queries concurrently and caches the results by
// chapter id for the lifetime of the Service. Entries are never invalidated.
type Service struct {
	searcher Searcher
	planner  Planner
	store    Cache
	backend  string

	mu    sync.Mutex
	run   map[string]*runEntry
	group singleflight.Group
}

// NewService creates a Service. store may be nil; backend labels cache metrics.
func NewService(searcher Searcher, planner Planner, store Cache, backend string) *Service {
	if planner == nil {
		planner = TopicPlanner{}
	}
	if backend == "" {
		backend = "memory"
	}
	return &Service{
		searcher: searcher,
		planner:  planner,
		store:    store,
		backend:  backend,
		run:      make(map[string]*runEntry),
	}
}

// Search returns the web results for the chapter. Failed sub-queries carry an
// inline "Error: ..." response. Only a planning failure is returned as a
// degraded error.
func (s *Service) Search(ctx context.Context, spec models.ChapterSpec) (Result, error) {
	ctx, span := tracer.Start(ctx, "websearch.Search")
	defer span.End()

	if res, ok := s.fromRun(spec.ID); ok {
		metrics.CacheLookups.WithLabelValues("run", "hit").Inc()
		logger.Info(ctx, "using cached web search results", "chapter_id", spec.ID)
		return res, nil
	}
	metrics.CacheLookups.WithLabelValues("run", "miss").Inc()

	_, err, _ := s.group.Do(spec.ID, func() (interface{}, error) {
		if _, ok := s.peek(spec.ID); ok {
			return nil, nil
		}
		entry, err := s.load(ctx, spec)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.run[spec.ID] = entry
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.run[spec.ID]
	res := Result{Results: cloneResults(e.results)}
	if !e.claimed {
		e.claimed = true
		res.Usage = e.usage
	} else {
		res.Cached = true
	}
	return res, nil
}

func (s *Service) peek(id string) (*runEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.run[id]
	return e, ok
}

// fromRun returns a result for an entry whose usage was already reported.
func (s *Service) fromRun(id string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.run[id]
	if !ok || !e.claimed {
		return Result{}, false
	}
	return Result{Results: cloneResults(e.results), Cached: true}, true
}

func (s *Service) load(ctx context.Context, spec models.ChapterSpec) (*runEntry, error) {
	key := StoreKey(spec)
	if s.store != nil {
		if data, ok := s.store.Get(ctx, key); ok {
			var results []models.WebResult
			if err := json.Unmarshal(data, &results); err == nil {
				metrics.CacheLookups.WithLabelValues(s.backend, "hit").Inc()
				logger.Info(ctx, "web search cache hit", "chapter_id", spec.ID, "backend", s.backend)
				return &runEntry{results: results, claimed: true}, nil
			}
			logger.Warn(ctx, "discarding undecodable cache entry", "chapter_id", spec.ID)
		}
		metrics.CacheLookups.WithLabelValues(s.backend, "miss").Inc()
	}

	plan, err := s.planner.Plan(ctx, spec)
	if err != nil {
		logger.Error(ctx, "web search planning failed", err, "chapter_id", spec.ID)
		return nil, apperrors.Wrap(err, apperrors.CodeWebSearchFailed, apperrors.KindDegraded, "plan web search")
	}

	logger.Info(ctx, "performing web search", "chapter_id", spec.ID, "queries", len(plan.Queries))
	results := s.execute(ctx, plan.Queries)

	if s.store != nil && !anyFailed(results) {
		data, err := json.Marshal(results)
		if err == nil {
			err = s.store.Put(ctx, key, data)
		}
		if err != nil {
			logger.Warn(ctx, "web search cache write failed", "chapter_id", spec.ID, "error", err)
		}
	}
	return &runEntry{results: results, usage: plan.Usage}, nil
}

// execute runs queries concurrently and keeps results in query order.
func (s *Service) execute(ctx context.Context, queries []string) []models.WebResult {
	results := make([]models.WebResult, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			text, err := s.searcher.Search(ctx, q)
			if err != nil {
				logger.Warn(ctx, "web search query failed", "query", q, "error", err)
				metrics.WebSearchTotal.WithLabelValues("error").Inc()
				results[i] = models.WebResult{Query: q, Response: "Error: " + err.Error(), Failed: true}
				return nil
			}
			metrics.WebSearchTotal.WithLabelValues("success").Inc()
			results[i] = models.WebResult{Query: q, Response: text}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// StoreKey identifies a chapter's search in a persistent cache.
func StoreKey(spec models.ChapterSpec) string {
	h := sha256.Sum256([]byte(spec.ID + "\x00" + BaseQuery(spec)))
	return spec.ID + ":" + hex.EncodeToString(h[:])
}

func anyFailed(results []models.WebResult) bool {
	for _, r := range results {
		if r.Failed {
			return true
		}
	}
	return false
}

func cloneResults(in []models.WebResult) []models.WebResult {
	out := make([]models.WebResult, len(in))
	copy(out, in)
	return out
}

// Format renders results for the research prompt.
func Format(results []models.WebResult) string {
	if len(results) == 0 {
		return "No web search results available."
	}
	var parts []string
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("--- Web Search %d: %s ---", i+1, r.Query), r.Response, "")
	}
	return strings.Join(parts, "\n")
}
