package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracker"
)

// Tool argument structs.

type runsArgs struct {
	Limit int `json:"limit"`
}

type runArgs struct {
	RunID string `json:"run_id"`
}

type chapterUsageArgs struct {
	RunID     string `json:"run_id"`
	ChapterID string `json:"chapter_id"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"scribe_runs":          handleRuns,
	"scribe_run_report":    handleRunReport,
	"scribe_run_log":       handleRunLog,
	"scribe_chapter_usage": handleChapterUsage,
	"scribe_cache_stats":   handleCacheStats,
	"scribe_audit_search":  handleAuditSearch,
	"scribe_audit_stats":   handleAuditStats,
}

func optional(typ, desc string) Property {
	return Property{Type: typ, Description: desc + " (optional)"}
}

var runIDProperty = optional("string", "Run ID, defaults to the most recent run")

// allTools is served by tools/list in this order.
var allTools = []Tool{
	{
		Name:        "scribe_runs",
		Description: "List recent generation runs with status, chapter count, tokens and cost.",
		InputSchema: objectSchema(map[string]Property{
			"limit": optional("integer", "Maximum number of runs, default 20"),
		}),
	},
	{
		Name:        "scribe_run_report",
		Description: "Show per-chapter token usage and cost for a run.",
		InputSchema: objectSchema(map[string]Property{"run_id": runIDProperty}),
	},
	{
		Name:        "scribe_run_log",
		Description: "Show the ordered telemetry log of a run with cumulative totals.",
		InputSchema: objectSchema(map[string]Property{"run_id": runIDProperty}),
	},
	{
		Name:        "scribe_chapter_usage",
		Description: "Show per-operation usage (researcher, writer, reviewer and rewrites) for one chapter.",
		InputSchema: objectSchema(map[string]Property{
			"run_id":     runIDProperty,
			"chapter_id": {Type: "string", Description: "Chapter ID to inspect, e.g. 2.1"},
		}, "chapter_id"),
	},
	{
		Name:        "scribe_cache_stats",
		Description: "Show web search cache statistics (entries, hits, misses, hit rate).",
		InputSchema: objectSchema(nil),
	},
	{
		Name:        "scribe_audit_search",
		Description: "Search the LLM call audit log. Returns at most 50 entries, newest first.",
		InputSchema: objectSchema(map[string]Property{
			"run_id":     optional("string", "Filter by run ID"),
			"chapter_id": optional("string", "Filter by chapter ID"),
			"operation":  optional("string", "Filter by operation key, e.g. writer_rewrite"),
			"model":      optional("string", "Filter by model"),
			"since":      optional("string", "Start date, YYYY-MM-DD"),
		}),
	},
	{
		Name:        "scribe_audit_stats",
		Description: "Show audited call counts and errors per model and day.",
		InputSchema: objectSchema(nil),
	},
}

// decodeArgs unmarshals tool arguments into v. Absent arguments leave v zero.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// resolveRun returns runID, or the most recent run when it is empty.
func (s *Server) resolveRun(ctx context.Context, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	runs, err := s.tracker.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", tracker.ErrRunNotFound
	}
	return runs[0].ID, nil
}

func handleRuns(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args runsArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	runs, err := s.tracker.ListRuns(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching runs: " + err.Error())
	}
	return textResult(formatRuns(runs))
}

func handleRunReport(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args runArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	runID, err := s.resolveRun(ctx, args.RunID)
	if err != nil {
		return runError(err)
	}
	run, err := s.tracker.GetRun(ctx, runID)
	if err != nil {
		return runError(err)
	}
	reports, err := s.tracker.ChapterReport(ctx, runID)
	if err != nil {
		return errorResult("Error fetching chapter report: " + err.Error())
	}
	return textResult(formatRunReport(run, reports))
}

func handleRunLog(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args runArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	runID, err := s.resolveRun(ctx, args.RunID)
	if err != nil {
		return runError(err)
	}
	records, err := s.tracker.RunLog(ctx, runID)
	if err != nil {
		return errorResult("Error fetching run log: " + err.Error())
	}
	return textResult(formatRunLog(records))
}

func handleChapterUsage(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args chapterUsageArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}
	if args.ChapterID == "" {
		return errorResult("chapter_id is required")
	}
	runID, err := s.resolveRun(ctx, args.RunID)
	if err != nil {
		return runError(err)
	}
	ops, err := s.tracker.OperationSummary(ctx, runID, args.ChapterID)
	if err != nil {
		return errorResult("Error fetching chapter usage: " + err.Error())
	}
	return textResult(formatOperations(ops))
}

func runError(err error) ToolCallResult {
	if errors.Is(err, tracker.ErrRunNotFound) {
		return errorResult("No matching run found.")
	}
	return errorResult("Error fetching run: " + err.Error())
}

type auditSearchArgs struct {
	RunID     string `json:"run_id"`
	ChapterID string `json:"chapter_id"`
	Operation string `json:"operation"`
	Model     string `json:"model"`
	Since     string `json:"since"`
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult(err.Error())
	}

	opts := models.AuditQueryOpts{
		RunID:     args.RunID,
		ChapterID: args.ChapterID,
		Operation: args.Operation,
		Model:     args.Model,
		Limit:     50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleAuditStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	stats, err := s.auditor.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching audit stats: " + err.Error())
	}
	return textResult(formatAuditStats(stats))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}
