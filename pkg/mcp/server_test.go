package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracker"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	runs      []models.Run
	reports   []models.CostReport
	ops       []models.OperationSummary
	log       []models.UsageRecord
	opsRun    string
	opsFilter string
}

func (f *fakeTracker) StartRun(_ context.Context, _, _ string, _ time.Time) error { return nil }
func (f *fakeTracker) FinishRun(_ context.Context, _ string, _ int, _ error) error {
	return nil
}
func (f *fakeTracker) Record(_ context.Context, _ models.UsageRecord) error { return nil }
func (f *fakeTracker) GetRun(_ context.Context, runID string) (models.Run, error) {
	for _, r := range f.runs {
		if r.ID == runID {
			return r, nil
		}
	}
	return models.Run{}, tracker.ErrRunNotFound
}
func (f *fakeTracker) ListRuns(_ context.Context, limit int) ([]models.Run, error) {
	if limit > 0 && len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}
func (f *fakeTracker) RunLog(_ context.Context, _ string) ([]models.UsageRecord, error) {
	return f.log, nil
}
func (f *fakeTracker) OperationSummary(_ context.Context, runID, chapterID string) ([]models.OperationSummary, error) {
	f.opsRun, f.opsFilter = runID, chapterID
	return f.ops, nil
}
func (f *fakeTracker) ChapterReport(_ context.Context, _ string) ([]models.CostReport, error) {
	return f.reports, nil
}
func (f *fakeTracker) Close() error { return nil }

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats(_ context.Context) (models.CacheStats, error) { return f.stats, nil }

// fakeAuditor implements AuditSearcher for testing.
type fakeAuditor struct {
	entries []models.AuditEntry
	opts    models.AuditQueryOpts
	err     error
}

func (f *fakeAuditor) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	f.opts = opts
	return f.entries, f.err
}
func (f *fakeAuditor) Stats(_ context.Context) ([]models.AuditStat, error) {
	return []models.AuditStat{{Model: "gpt-4o-mini", Day: "2026-10-01", Count: 12, Errors: 1}}, nil
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

// callTool invokes a tool and decodes its result.
func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	p := ToolCallParams{Name: name}
	if args != "" {
		p.Arguments = json.RawMessage(args)
	}
	params, _ := json.Marshal(p)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func sampleRuns() []models.Run {
	started := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	return []models.Run{
		{ID: "run-new", Outline: "outline.json", Status: models.RunCompleted, StartedAt: started.Add(time.Hour), ChapterCount: 3, CallCount: 9, TotalTokens: 12345, TotalCost: 0.0123},
		{ID: "run-old", Outline: "outline.json", Status: models.RunFailed, StartedAt: started, Error: "budget exceeded"},
	}
}

func TestInitialize(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "scribe" {
		t.Errorf("server name = %s, want scribe", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallRuns(t *testing.T) {
	srv := New(&fakeTracker{runs: sampleRuns()}, nil, nil, "test")
	text := callTool(t, srv, "scribe_runs", `{}`).Content[0].Text

	if !strings.Contains(text, "run-new") || !strings.Contains(text, "run-old") {
		t.Errorf("expected both runs, got: %s", text)
	}
	if !strings.Contains(text, "$0.0123") {
		t.Errorf("expected formatted cost, got: %s", text)
	}
}

func TestToolCallRunReportDefaultsToLatest(t *testing.T) {
	tr := &fakeTracker{
		runs: sampleRuns(),
		reports: []models.CostReport{
			{ChapterID: "1", Operations: 3, Calls: 3, PromptTokens: 900, CompletionTokens: 300, TotalTokens: 1200, EstimatedCost: 0.001},
		},
	}
	srv := New(tr, nil, nil, "test")
	text := callTool(t, srv, "scribe_run_report", "").Content[0].Text

	if !strings.Contains(text, "Run run-new (completed)") {
		t.Errorf("expected latest run header, got: %s", text)
	}
	if !strings.Contains(text, "1200") {
		t.Errorf("expected chapter total, got: %s", text)
	}
}

func TestToolCallRunReportUnknownRun(t *testing.T) {
	srv := New(&fakeTracker{runs: sampleRuns()}, nil, nil, "test")
	result := callTool(t, srv, "scribe_run_report", `{"run_id":"missing"}`)

	if !result.IsError {
		t.Error("expected isError=true for unknown run")
	}
	if !strings.Contains(result.Content[0].Text, "No matching run") {
		t.Errorf("unexpected text: %s", result.Content[0].Text)
	}
}

func TestToolCallRunLog(t *testing.T) {
	tr := &fakeTracker{
		runs: sampleRuns(),
		log: []models.UsageRecord{
			{Seq: 1, ChapterID: "1", Operation: "researcher", Model: "gpt-4o-mini", TotalTokens: 150, CumulativeTokens: 150},
			{Seq: 2, ChapterID: "1", Operation: "writer", Model: "gpt-4o-mini", TotalTokens: 250, CumulativeTokens: 400},
		},
	}
	srv := New(tr, nil, nil, "test")
	text := callTool(t, srv, "scribe_run_log", `{"run_id":"run-old"}`).Content[0].Text

	if strings.Index(text, "researcher") > strings.Index(text, "writer") {
		t.Errorf("expected sequence order, got: %s", text)
	}
	if !strings.Contains(text, "400") {
		t.Errorf("expected cumulative tokens, got: %s", text)
	}
}

func TestToolCallChapterUsage(t *testing.T) {
	tr := &fakeTracker{
		runs: sampleRuns(),
		ops: []models.OperationSummary{
			{ChapterID: "2.1", Operation: "writer_rewrite", Model: models.MixedModel, Calls: 2, TotalTokens: 800},
		},
	}
	srv := New(tr, nil, nil, "test")
	text := callTool(t, srv, "scribe_chapter_usage", `{"chapter_id":"2.1"}`).Content[0].Text

	if tr.opsRun != "run-new" || tr.opsFilter != "2.1" {
		t.Errorf("expected latest run and chapter filter, got %q %q", tr.opsRun, tr.opsFilter)
	}
	if !strings.Contains(text, "writer_rewrite") || !strings.Contains(text, models.MixedModel) {
		t.Errorf("unexpected output: %s", text)
	}
}

func TestToolCallChapterUsageMissingID(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	result := callTool(t, srv, "scribe_chapter_usage", `{}`)

	if !result.IsError {
		t.Error("expected isError=true for missing chapter_id")
	}
}

func TestToolCallCacheNotConfigured(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	text := callTool(t, srv, "scribe_cache_stats", "").Content[0].Text

	if !strings.Contains(text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", text)
	}
}

func TestToolCallCacheStats(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{Backend: "sqlite", Entries: 42, Hits: 10, Misses: 5}}
	srv := New(&fakeTracker{}, cache, nil, "test")
	text := callTool(t, srv, "scribe_cache_stats", "").Content[0].Text

	if !strings.Contains(text, "42") || !strings.Contains(text, "66.7%") || !strings.Contains(text, "sqlite") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallAuditSearch(t *testing.T) {
	aud := &fakeAuditor{entries: []models.AuditEntry{
		{CallID: "call-1", ChapterID: "1", Operation: "reviewer", Model: "gpt-4o", Status: models.AuditStatusOK, TotalTokens: 77},
	}}
	srv := New(&fakeTracker{}, nil, aud, "test")
	text := callTool(t, srv, "scribe_audit_search", `{"run_id":"r1","operation":"reviewer","since":"2026-10-01"}`).Content[0].Text

	if aud.opts.RunID != "r1" || aud.opts.Operation != "reviewer" || aud.opts.Limit != 50 {
		t.Errorf("unexpected query opts %+v", aud.opts)
	}
	if aud.opts.Since.IsZero() {
		t.Error("expected since to be parsed")
	}
	if !strings.Contains(text, "call-1") {
		t.Errorf("expected call id, got: %s", text)
	}
}

func TestToolCallAuditSearchBadDate(t *testing.T) {
	srv := New(&fakeTracker{}, nil, &fakeAuditor{}, "test")
	result := callTool(t, srv, "scribe_audit_search", `{"since":"yesterday"}`)

	if !result.IsError {
		t.Error("expected isError=true for invalid date")
	}
}

func TestToolCallAuditSearchError(t *testing.T) {
	srv := New(&fakeTracker{}, nil, &fakeAuditor{err: errors.New("db locked")}, "test")
	result := callTool(t, srv, "scribe_audit_search", "")

	if !result.IsError || !strings.Contains(result.Content[0].Text, "db locked") {
		t.Errorf("expected error result, got: %+v", result)
	}
}

func TestToolCallAuditStats(t *testing.T) {
	srv := New(&fakeTracker{}, nil, &fakeAuditor{}, "test")
	text := callTool(t, srv, "scribe_audit_stats", "").Content[0].Text

	if !strings.Contains(text, "gpt-4o-mini") || !strings.Contains(text, "12") {
		t.Errorf("unexpected audit stats: %s", text)
	}
}

func TestUnknownTool(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	result := callTool(t, srv, "scribe_chapters", "")

	if !result.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestParseError(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{not json\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp.Error)
	}
}

func TestPing(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`"p1"`),
		Method:  "ping",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != `"p1"` {
		t.Errorf("expected id echoed, got %s", resp.ID)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestToolCallMalformedArguments(t *testing.T) {
	srv := New(&fakeTracker{runs: sampleRuns()}, nil, nil, "test")
	result := callTool(t, srv, "scribe_runs", `{"limit":"ten"}`)

	if !result.IsError || !strings.Contains(result.Content[0].Text, "invalid arguments") {
		t.Errorf("expected invalid arguments error, got %+v", result)
	}
}

func TestUnknownNotificationIgnored(t *testing.T) {
	srv := New(&fakeTracker{}, nil, nil, "test")

	var out bytes.Buffer
	in := `{"jsonrpc":"2.0","method":"notifications/progress"}` + "\n"
	if err := srv.Run(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no reply to a notification, got %s", out.String())
	}
}

func TestToolsListSchemas(t *testing.T) {
	for _, tool := range allTools {
		if tool.InputSchema.Type != "object" {
			t.Errorf("%s: expected object schema, got %q", tool.Name, tool.InputSchema.Type)
		}
		for _, req := range tool.InputSchema.Required {
			if _, ok := tool.InputSchema.Properties[req]; !ok {
				t.Errorf("%s: required %q has no property", tool.Name, req)
			}
		}
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("%s: no handler", tool.Name)
		}
	}
}
