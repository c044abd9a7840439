package assembly

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pario-ai/scribe/pkg/models"
)

// ChapterUsage is the per-operation usage of one visited chapter.
type ChapterUsage struct {
	ID         string
	Heading    string
	Operations []string
	Usage      map[string]models.TokenUsage
}

// Document is everything a run hands to the Assembler.
type Document struct {
	Title           string
	Metadata        models.OutlineMetadata
	OutlineChapters int
	Chapters        []models.CompletedChapter
	Usage           []ChapterUsage
	Total           models.TokenUsage
}

// Summary is the final run statistics.
type Summary struct {
	OutlineChapters         int
	CompletedChapters       int
	ForcedAccepts           int
	PromptTokens            int
	CompletionTokens        int
	TotalTokens             int
	TotalCost               float64
	AverageCostPerChapter   float64
	AverageTokensPerChapter float64
}

// Summarize computes the final statistics. Averages are zero without
// completed chapters.
func Summarize(doc Document) Summary {
	s := Summary{
		OutlineChapters:   doc.OutlineChapters,
		CompletedChapters: len(doc.Chapters),
		PromptTokens:      doc.Total.PromptTokens,
		CompletionTokens:  doc.Total.CompletionTokens,
		TotalTokens:       doc.Total.TotalTokens,
		TotalCost:         doc.Total.TotalCost,
	}
	for _, c := range doc.Chapters {
		if c.ForcedAccept {
			s.ForcedAccepts++
		}
	}
	if n := len(doc.Chapters); n > 0 {
		s.AverageCostPerChapter = doc.Total.TotalCost / float64(n)
		s.AverageTokensPerChapter = float64(doc.Total.TotalTokens) / float64(n)
	}
	return s
}

func comma(n int) string {
	return humanize.Comma(int64(n))
}

// TokenReport renders the per-chapter, per-operation usage report.
func TokenReport(doc Document) string {
	completed := make(map[string]models.CompletedChapter, len(doc.Chapters))
	for _, c := range doc.Chapters {
		completed[c.Spec.ID] = c
	}

	var b strings.Builder
	rule := strings.Repeat("=", 80)
	b.WriteString("COMPREHENSIVE TOKEN USAGE REPORT\n")
	b.WriteString(rule + "\n\n")

	for _, ch := range doc.Usage {
		fmt.Fprintf(&b, "Chapter %s: %s\n", ch.ID, ch.Heading)
		b.WriteString(strings.Repeat("-", 60) + "\n")
		for _, op := range ch.Operations {
			u := ch.Usage[op]
			fmt.Fprintf(&b, "\n%s:\n", op)
			fmt.Fprintf(&b, "  - Tokens: %s (prompt: %s, completion: %s)\n",
				comma(u.TotalTokens), comma(u.PromptTokens), comma(u.CompletionTokens))
			fmt.Fprintf(&b, "  - Cost: $%.6f (input: $%.6f, output: $%.6f)\n",
				u.TotalCost, u.InputCost, u.OutputCost)
			if u.Model != "" {
				fmt.Fprintf(&b, "  - Model: %s\n", u.Model)
			}
		}
		if c, ok := completed[ch.ID]; ok {
			b.WriteString("\nCHAPTER TOTAL:\n")
			fmt.Fprintf(&b, "  - Total tokens: %s\n", comma(c.TokenSummary.TotalTokens))
			fmt.Fprintf(&b, "  - Total cost: $%.6f\n", c.TokenSummary.TotalCost)
			if c.ForcedAccept {
				b.WriteString("  - Accepted without reviewer approval\n")
			}
		}
		b.WriteString("\n" + rule + "\n\n")
	}

	t := doc.Total
	b.WriteString("OVERALL SUMMARY\n")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	fmt.Fprintf(&b, "Total prompt tokens: %s\n", comma(t.PromptTokens))
	fmt.Fprintf(&b, "Total completion tokens: %s\n", comma(t.CompletionTokens))
	fmt.Fprintf(&b, "Total tokens used: %s\n", comma(t.TotalTokens))
	fmt.Fprintf(&b, "Total input cost: $%.6f\n", t.InputCost)
	fmt.Fprintf(&b, "Total output cost: $%.6f\n", t.OutputCost)
	fmt.Fprintf(&b, "TOTAL COST: $%.6f\n", t.TotalCost)
	return b.String()
}

// MetadataReport renders the generation statistics document.
func MetadataReport(doc Document, generated time.Time) string {
	ts := generated.Format("2006-01-02 15:04:05")
	s := Summarize(doc)
	t := doc.Total

	var b strings.Builder
	b.WriteString("# Document Generation Metadata\n\n")
	fmt.Fprintf(&b, "*Generated on: %s*\n\n", ts)

	if doc.Title != "" || doc.Metadata != (models.OutlineMetadata{}) {
		b.WriteString("## Document Information\n\n")
		if doc.Title != "" {
			fmt.Fprintf(&b, "- **Title**: %s\n", doc.Title)
		}
		fmt.Fprintf(&b, "- **Version**: %s\n", doc.Metadata.Version)
		fmt.Fprintf(&b, "- **Created**: %s\n", doc.Metadata.CreatedDate)
		fmt.Fprintf(&b, "- **Author**: %s\n\n", doc.Metadata.Author)
	}

	b.WriteString("## Summary Statistics\n\n")
	fmt.Fprintf(&b, "- **Chapters in Outline**: %d\n", s.OutlineChapters)
	fmt.Fprintf(&b, "- **Total Chapters**: %d\n", s.CompletedChapters)
	fmt.Fprintf(&b, "- **Total Tokens Used**: %s\n", comma(s.TotalTokens))
	fmt.Fprintf(&b, "- **Total Cost**: $%.6f\n", s.TotalCost)
	if s.CompletedChapters > 0 {
		fmt.Fprintf(&b, "- **Average Cost per Chapter**: $%.6f\n", s.AverageCostPerChapter)
	} else {
		b.WriteString("- **Average Cost per Chapter**: N/A\n")
	}
	fmt.Fprintf(&b, "- **Generated on**: %s\n\n", ts)

	b.WriteString("## Token Usage Breakdown\n\n")
	fmt.Fprintf(&b, "- **Prompt Tokens**: %s\n", comma(t.PromptTokens))
	fmt.Fprintf(&b, "- **Completion Tokens**: %s\n", comma(t.CompletionTokens))
	fmt.Fprintf(&b, "- **Input Cost**: $%.6f\n", t.InputCost)
	fmt.Fprintf(&b, "- **Output Cost**: $%.6f\n\n", t.OutputCost)

	b.WriteString("## Chapter Details\n\n")
	for _, c := range Sort(doc.Chapters) {
		fmt.Fprintf(&b, "### %s\n", c.Spec.HeadingLabel)
		fmt.Fprintf(&b, "- Chapter tokens: %s\n", comma(c.TokenSummary.TotalTokens))
		fmt.Fprintf(&b, "- Cost: $%.6f\n", c.TokenSummary.TotalCost)
		fmt.Fprintf(&b, "- Reviews: %d\n\n", c.Reviews)
	}
	return b.String()
}
