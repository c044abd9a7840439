package retrieval

import (
	"fmt"
	"strings"

	"github.com/pario-ai/scribe/pkg/models"
)

// Content inclusion policy.
const (
	fullTextScore = 0.7
	truncateRunes = 800
)

// Content applies the inclusion policy: high-scoring results keep their full
// text, long low-scoring texts are cut to 800 characters plus "...".
func Content(r models.SearchResult) string {
	if r.Score > fullTextScore {
		return r.Text
	}
	runes := []rune(r.Text)
	if len(runes) > truncateRunes {
		return string(runes[:truncateRunes]) + "..."
	}
	return r.Text
}

// Format renders results as a markdown block for a research prompt. It
// returns "" for no results.
func Format(results []models.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n### Knowledge Base Insights (Semantic Search Results):\n")
	fmt.Fprintf(&b, "*Found %d highly relevant entries*\n", len(results))

	for i, r := range results {
		fmt.Fprintf(&b, "\n**Entry %d** (Similarity: %.3f)\n", i+1, r.Score)
		fmt.Fprintf(&b, "- ID: %s\n", r.ID)
		fmt.Fprintf(&b, "- Categories: %s", r.CategoryPrimary)
		if r.CategorySecondary != "" && r.CategorySecondary != r.CategoryPrimary {
			fmt.Fprintf(&b, " > %s", r.CategorySecondary)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "- Content: %s\n", Content(r))
	}
	return b.String()
}
