package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(22)
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// renderSummary formats the final statistics of a run for the terminal.
func renderSummary(res *orchestrator.Result, budgets []models.BudgetStatus, runErr error) string {
	s := res.Summary
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	lines := []string{
		titleStyle.Render("Generation summary"),
		row("Run", res.RunID),
		row("Chapters", fmt.Sprintf("%d of %d", s.CompletedChapters, s.OutlineChapters)),
	}
	if s.ForcedAccepts > 0 {
		lines = append(lines, row("Forced accepts", fmt.Sprint(s.ForcedAccepts)))
	}
	lines = append(lines,
		row("Prompt tokens", humanize.Comma(int64(s.PromptTokens))),
		row("Completion tokens", humanize.Comma(int64(s.CompletionTokens))),
		row("Total tokens", humanize.Comma(int64(s.TotalTokens))),
		row("Total cost", fmt.Sprintf("$%.4f", s.TotalCost)),
	)
	if s.CompletedChapters > 0 {
		lines = append(lines,
			row("Avg cost / chapter", fmt.Sprintf("$%.4f", s.AverageCostPerChapter)),
			row("Avg tokens / chapter", humanize.Comma(int64(s.AverageTokensPerChapter))),
		)
	}
	lines = append(lines, row("Duration", res.Duration.Round(time.Millisecond).String()))

	for _, b := range budgets {
		lines = append(lines, row("Budget ("+string(b.Policy.Scope)+")", budgetLine(b)))
	}

	if res.Files.Markdown != "" {
		lines = append(lines, "", titleStyle.Render("Outputs"), res.Files.Markdown, res.Files.TokenReport, res.Files.Metadata)
		if res.Files.Rendered != "" {
			lines = append(lines, res.Files.Rendered)
		}
	}
	if runErr != nil {
		lines = append(lines, "", errorStyle.Render("Run failed: "+runErr.Error()))
	}
	return boxStyle.Render(strings.Join(lines, "\n")) + "\n"
}

func budgetLine(b models.BudgetStatus) string {
	var parts []string
	if b.Policy.MaxTokens > 0 {
		parts = append(parts, fmt.Sprintf("%s of %s tokens",
			humanize.Comma(b.UsedTokens), humanize.Comma(b.Policy.MaxTokens)))
	}
	if b.Policy.MaxCost > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f of $%.4f", b.UsedCost, b.Policy.MaxCost))
	}
	return strings.Join(parts, ", ")
}
