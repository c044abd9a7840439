package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/scribe/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

// formatRuns formats runs as a text table.
func formatRuns(runs []models.Run) string {
	if len(runs) == 0 {
		return "No runs found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-10s %-20s %8s %6s %10s %10s\n",
		"Run ID", "Status", "Started", "Chapters", "Calls", "Tokens", "Cost")
	b.WriteString(strings.Repeat("-", 108) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-38s %-10s %-20s %8d %6d %10d %10s\n",
			r.ID, r.Status, r.StartedAt.Format(timeLayout),
			r.ChapterCount, r.CallCount, r.TotalTokens, cost(r.TotalCost))
	}
	return b.String()
}

// formatRunReport formats a run header followed by its per-chapter usage.
func formatRunReport(run models.Run, reports []models.CostReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(&b, "  Outline:  %s\n", run.Outline)
	fmt.Fprintf(&b, "  Started:  %s\n", run.StartedAt.Format(timeLayout))
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "  Finished: %s\n", run.FinishedAt.Format(timeLayout))
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "  Error:    %s\n", run.Error)
	}
	fmt.Fprintf(&b, "  Total:    %d tokens, %s over %d calls\n\n", run.TotalTokens, cost(run.TotalCost), run.CallCount)

	if len(reports) == 0 {
		b.WriteString("No chapter usage recorded.")
		return b.String()
	}
	fmt.Fprintf(&b, "%-10s %5s %6s %10s %10s %10s %10s\n",
		"Chapter", "Ops", "Calls", "Prompt", "Completion", "Total", "Cost")
	b.WriteString(strings.Repeat("-", 67) + "\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "%-10s %5d %6d %10d %10d %10d %10s\n",
			r.ChapterID, r.Operations, r.Calls,
			r.PromptTokens, r.CompletionTokens, r.TotalTokens, cost(r.EstimatedCost))
	}
	return b.String()
}

// formatRunLog formats the ordered telemetry log of a run.
func formatRunLog(records []models.UsageRecord) string {
	if len(records) == 0 {
		return "No telemetry recorded for this run."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-8s %-20s %-22s %10s %10s %12s\n",
		"Seq", "Chapter", "Operation", "Model", "Tokens", "Cost", "Cumulative")
	b.WriteString(strings.Repeat("-", 104) + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%4d  %-8s %-20s %-22s %10d %10s %12d\n",
			r.Seq, r.ChapterID, r.Operation, r.Model,
			r.TotalTokens, cost(r.TotalCost), r.CumulativeTokens)
	}
	return b.String()
}

// formatOperations formats per-operation usage of one chapter.
func formatOperations(ops []models.OperationSummary) string {
	if len(ops) == 0 {
		return "No usage recorded for this chapter."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-22s %6s %10s %10s %10s %10s\n",
		"Operation", "Model", "Calls", "Prompt", "Completion", "Total", "Cost")
	b.WriteString(strings.Repeat("-", 94) + "\n")
	for _, o := range ops {
		fmt.Fprintf(&b, "%-20s %-22s %6d %10d %10d %10d %10s\n",
			o.Operation, o.Model, o.Calls,
			o.PromptTokens, o.CompletionTokens, o.TotalTokens, cost(o.TotalCost))
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics (%s)\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Backend, stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatAuditEntries formats audited calls as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-8s %-20s %-22s %-6s %8s %10s %-20s\n",
		"Call ID", "Chapter", "Operation", "Model", "Status", "Latency", "Tokens", "Time")
	b.WriteString(strings.Repeat("-", 140) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-38s %-8s %-20s %-22s %-6s %6dms %10d %-20s\n",
			e.CallID, e.ChapterID, e.Operation, e.Model, e.Status,
			e.LatencyMs, e.TotalTokens, e.CreatedAt.Format(timeLayout))
	}
	return b.String()
}

// formatAuditStats formats audit counts per model and day.
func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-12s %8s %8s\n", "Model", "Day", "Calls", "Errors")
	b.WriteString(strings.Repeat("-", 56) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-25s %-12s %8d %8d\n", s.Model, s.Day, s.Count, s.Errors)
	}
	return b.String()
}

func cost(c float64) string {
	return fmt.Sprintf("$%.4f", c)
}
