package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/pario-ai/scribe/pkg/config"
	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/pricing"
	"github.com/pario-ai/scribe/pkg/router"
)

// scriptedModel replays a fixed sequence of results.
type scriptedModel struct {
	mu      sync.Mutex
	results []result
	calls   int
	prompts []string
}

type result struct {
	text string
	p, c int
	err  error
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, in[0].Content)
	r := m.results[m.calls%len(m.results)]
	m.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: r.text,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: r.p, CompletionTokens: r.c, TotalTokens: r.p + r.c},
		},
	}, nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

// staticSource maps provider names to models.
type staticSource map[string]model.BaseChatModel

func (s staticSource) Model(_ context.Context, route router.Route) (model.BaseChatModel, error) {
	m, ok := s[route.Provider.Name]
	if !ok {
		return nil, errors.New("no model for " + route.Provider.Name)
	}
	return m, nil
}

func testRouter() *router.Router {
	return router.New(&config.Config{
		Providers: []config.ProviderConfig{{Name: "primary"}, {Name: "backup"}},
		Router: config.RouterConfig{
			Stages: map[string]string{router.StageWriter: "smart"},
			Routes: []config.RouteConfig{{
				Model: "smart",
				Targets: []config.RouteTarget{
					{Provider: "primary", Model: "gpt-4o"},
					{Provider: "backup", Model: "gpt-4o-mini"},
				},
			}},
		},
	})
}

func newTestChain(src ModelSource, attempts int) *Chain {
	c := NewChain(router.StageWriter, testRouter(), src, pricing.New(nil, ""), config.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	})
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestChainPricesServedModel(t *testing.T) {
	primary := &scriptedModel{results: []result{{text: "body", p: 1000, c: 2000}}}
	c := newTestChain(staticSource{"primary": primary}, 1)

	resp, err := c.Invoke(context.Background(), "write")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "body" || resp.Provider != "primary" || resp.Model != "gpt-4o" {
		t.Errorf("unexpected response %+v", resp)
	}
	want := models.NewTokenUsage("gpt-4o", 1000, 2000, 0.0025, 0.02)
	if !resp.Usage.Matches(want) {
		t.Errorf("expected %+v, got %+v", want, resp.Usage)
	}
	if primary.prompts[0] != "write" {
		t.Errorf("expected prompt passed through, got %q", primary.prompts[0])
	}
}

func TestChainRetriesTransientFailure(t *testing.T) {
	primary := &scriptedModel{results: []result{
		{err: errors.New("status 429: rate limit exceeded")},
		{text: "ok", p: 1, c: 1},
	}}
	c := newTestChain(staticSource{"primary": primary}, 3)

	resp, err := c.Invoke(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "ok" || primary.calls != 2 {
		t.Errorf("expected success on second attempt, got %q after %d calls", resp.Text, primary.calls)
	}
}

func TestChainFallsBackOnPermanentFailure(t *testing.T) {
	primary := &scriptedModel{results: []result{{err: errors.New("status 401: invalid api key")}}}
	backup := &scriptedModel{results: []result{{text: "from backup", p: 10, c: 10}}}
	c := newTestChain(staticSource{"primary": primary, "backup": backup}, 3)

	resp, err := c.Invoke(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if primary.calls != 1 {
		t.Errorf("expected no retry on permanent failure, got %d calls", primary.calls)
	}
	if resp.Provider != "backup" || resp.Usage.Model != "gpt-4o-mini" {
		t.Errorf("expected backup route, got %+v", resp)
	}
}

func TestChainAllRoutesFail(t *testing.T) {
	failing := &scriptedModel{results: []result{{err: errors.New("503 service unavailable")}}}
	c := newTestChain(staticSource{"primary": failing, "backup": failing}, 2)

	_, err := c.Invoke(context.Background(), "p")
	if !errors.Is(err, apperrors.ErrLLMCallFailed) {
		t.Fatalf("expected ErrLLMCallFailed, got %v", err)
	}
	if apperrors.KindOf(err) != apperrors.KindFatal {
		t.Errorf("expected fatal kind, got %s", apperrors.KindOf(err))
	}
	if failing.calls != 4 {
		t.Errorf("expected 2 attempts per route, got %d calls", failing.calls)
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	primary := &scriptedModel{results: []result{{err: errors.New("timeout")}}}
	c := newTestChain(staticSource{"primary": primary}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Invoke(ctx, "p")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("expected a single call, got %d", primary.calls)
	}
}

func TestBackoffCapped(t *testing.T) {
	c := &Chain{retry: config.RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := c.backoff(i + 1); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("upstream overloaded"), true},
		{errors.New("read: connection reset by peer"), true},
		{context.DeadlineExceeded, true},
		{errors.New("400 invalid request: context length"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v): expected %v, got %v", tt.err, tt.want, got)
		}
	}
}

type memorySink struct {
	entries []models.AuditEntry
}

func (m *memorySink) Log(_ context.Context, e models.AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestAuditedRecordsContextFields(t *testing.T) {
	sink := &memorySink{}
	next := ClientFunc(func(context.Context, string) (Response, error) {
		return Response{Text: "accept", Provider: "primary", Model: "gpt-4o",
			Usage: models.NewTokenUsage("gpt-4o", 5, 1, 0.1, 0.2)}, nil
	})
	a := NewAudited(next, router.StageReviewer, sink)

	ctx := logger.WithContext(context.Background(), logger.RunIDKey, "run-9")
	ctx = logger.WithContext(ctx, logger.ChapterIDKey, "1.2")
	ctx = logger.WithContext(ctx, logger.OperationKey, "reviewer_2")
	if _, err := a.Invoke(ctx, "review this"); err != nil {
		t.Fatal(err)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.RunID != "run-9" || e.ChapterID != "1.2" || e.Operation != "reviewer_2" {
		t.Errorf("unexpected context fields %+v", e)
	}
	if e.CallID == "" || e.Status != models.AuditStatusOK || e.TotalTokens != 6 {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestAuditedRecordsFailure(t *testing.T) {
	sink := &memorySink{}
	next := ClientFunc(func(context.Context, string) (Response, error) {
		return Response{}, errors.New("boom")
	})
	a := NewAudited(next, router.StageWriter, sink)

	if _, err := a.Invoke(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}
	e := sink.entries[0]
	if e.Status != models.AuditStatusError || e.Error != "boom" || e.Operation != router.StageWriter {
		t.Errorf("unexpected failure entry %+v", e)
	}
}
