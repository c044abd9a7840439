package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pario-ai/scribe/pkg/assembly"
	"github.com/pario-ai/scribe/pkg/audit"
	"github.com/pario-ai/scribe/pkg/budget"
	rediscache "github.com/pario-ai/scribe/pkg/cache/redis"
	sqlitecache "github.com/pario-ai/scribe/pkg/cache/sqlite"
	"github.com/pario-ai/scribe/pkg/config"
	"github.com/pario-ai/scribe/pkg/drafting"
	"github.com/pario-ai/scribe/pkg/embedding"
	"github.com/pario-ai/scribe/pkg/ledger"
	"github.com/pario-ai/scribe/pkg/llm"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/orchestrator"
	"github.com/pario-ai/scribe/pkg/pricing"
	"github.com/pario-ai/scribe/pkg/research"
	"github.com/pario-ai/scribe/pkg/retrieval"
	"github.com/pario-ai/scribe/pkg/review"
	"github.com/pario-ai/scribe/pkg/router"
	"github.com/pario-ai/scribe/pkg/telemetry"
	"github.com/pario-ai/scribe/pkg/tracker"
	"github.com/pario-ai/scribe/pkg/websearch"
)

// webCacheScope isolates web search entries from other users of the cache.
const webCacheScope = "websearch"

// searchCache is a persistent web search cache backend.
type searchCache interface {
	websearch.Cache
	Stats(ctx context.Context) (models.CacheStats, error)
	Clear(ctx context.Context, expiredOnly bool) (int64, error)
	Close() error
}

// openCache opens the configured persistent cache. The memory backend has no
// persistent store and returns nil.
func openCache(ctx context.Context, cfg *config.Config) (searchCache, error) {
	switch cfg.Cache.Backend {
	case sqlitecache.Backend:
		c, err := sqlitecache.New(cfg.DBPath, webCacheScope, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		return c, nil
	case rediscache.Backend:
		rdb, err := rediscache.NewClient(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		return rediscache.New(rdb, cfg.Cache.Redis.Prefix, webCacheScope, cfg.Cache.TTL), nil
	default:
		return nil, nil
	}
}

// openAuditLogger opens the audit log. Entries past retention are dropped on
// open.
func openAuditLogger(cfg *config.Config) (*audit.Logger, error) {
	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, nil
}

// pipeline is a fully wired generation run.
type pipeline struct {
	orch    *orchestrator.Orchestrator
	budget  *budget.Enforcer
	closers []func() error
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}

// buildPipeline wires every collaborator of a run from cfg. Telemetry is
// persisted through tr under runID.
func buildPipeline(ctx context.Context, cfg *config.Config, tr tracker.Tracker, runID string) (*pipeline, error) {
	p := &pipeline{}
	fail := func(err error) (*pipeline, error) {
		p.Close()
		return nil, err
	}

	var sink llm.AuditSink
	if cfg.Audit.Enabled {
		l, err := openAuditLogger(cfg)
		if err != nil {
			return fail(err)
		}
		p.closers = append(p.closers, l.Close)
		sink = l
	}

	prices := pricing.New(cfg.Pricing, cfg.DefaultModel)
	rt := router.New(cfg)
	factory := llm.NewFactory()
	client := func(stage string) llm.Client {
		var c llm.Client = llm.NewChain(stage, rt, factory, prices, cfg.Retry)
		if sink != nil {
			c = llm.NewAudited(c, stage, sink)
		}
		return c
	}

	var opts []research.Option
	if cfg.WebSearch.Enabled {
		store, err := openCache(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		backend := "memory"
		var wsCache websearch.Cache
		if store != nil {
			p.closers = append(p.closers, store.Close)
			wsCache = store
			backend = cfg.Cache.Backend
		}
		svc := websearch.NewService(
			websearch.NewHTTPSearcher(cfg.WebSearch.Endpoint, cfg.WebSearch.APIKey, cfg.WebSearch.Timeout),
			planner(cfg, client),
			wsCache,
			backend,
		)
		opts = append(opts, research.WithWebSearch(svc))
	}

	if len(cfg.KnowledgeBases) > 0 {
		ranker, corpora, err := loadKnowledge(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, research.WithKnowledge(ranker, corpora))
	}

	var renderer assembly.Renderer
	if cfg.Render.Enabled {
		renderer = assembly.Pandoc{
			Command:      cfg.Render.Command,
			Format:       cfg.Render.Format,
			ReferenceDoc: cfg.Render.ReferenceDoc,
		}
	}

	led := ledger.New()
	agg := telemetry.New(telemetry.WithSink(tracker.NewRunSink(tr, runID)))

	var guard orchestrator.Guard
	if cfg.Budget.Enabled {
		p.budget = budget.New(cfg.Budget.Policies, agg, led)
		guard = p.budget
	}

	p.orch = orchestrator.New(orchestrator.Deps{
		Researcher: research.New(client(router.StageResearcher), opts...),
		Drafter:    drafting.New(client(router.StageWriter)),
		Reviewer:   review.New(client(router.StageReviewer)),
		Assembler:  assembly.New(cfg.OutputDir, renderer),
		Budget:     guard,
		Ledger:     led,
		Telemetry:  agg,
		Policy: orchestrator.RevisionPolicy{
			MaxReviews:  cfg.Revision.MaxReviews,
			OnExhausted: cfg.Revision.OnExhausted,
		},
		RunID: runID,
	})
	return p, nil
}

func planner(cfg *config.Config, client func(string) llm.Client) websearch.Planner {
	topic := websearch.TopicPlanner{MaxQueries: cfg.WebSearch.MaxQueries}
	if cfg.WebSearch.Planner != "llm" {
		return topic
	}
	return websearch.LLMPlanner{
		Client:     client(router.StagePlanner),
		MaxQueries: cfg.WebSearch.MaxQueries,
		Fallback:   topic,
	}
}

// loadKnowledge builds the query ranker and loads every configured corpus
// with its own ranking options.
func loadKnowledge(ctx context.Context, cfg *config.Config) (*retrieval.Ranker, []*retrieval.Corpus, error) {
	emb, err := embedding.NewEinoEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}
	ranker := retrieval.NewRanker(embedding.NewQueryEmbedder(emb), retrieval.Options{})

	corpora := make([]*retrieval.Corpus, 0, len(cfg.KnowledgeBases))
	for _, kb := range cfg.KnowledgeBases {
		label := kb.Label
		if label == "" {
			label = strings.ToUpper(kb.Name)
		}
		c, err := retrieval.LoadCorpus(ctx, kb.Name, label, kb.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("load knowledge base %s: %w", kb.Name, err)
		}
		c.Options = retrieval.Options{
			TopK:           kb.TopK,
			Threshold:      kb.Threshold,
			CategoryFilter: kb.CategoryFilter,
		}
		logger.Info(ctx, "knowledge base loaded", "name", kb.Name, "entries", c.Len(), "dim", c.Dim())
		corpora = append(corpora, c)
	}
	return ranker, corpora, nil
}
