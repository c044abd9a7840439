package research

import (
	"context"
	"strings"

	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/prompt"
)

// BuildPrompt renders the research prompt. The sources template is used
// only when combined is non-blank.
func BuildPrompt(ctx context.Context, in Input, combined string) (string, error) {
	spec := in.Spec
	vars := map[string]any{
		"tone_and_style":    in.Style.ToneOrDefault(),
		"chapter_title":     spec.HeadingLabel,
		"purpose":           bullets(spec.Purpose, "Provide comprehensive information about the topic"),
		"topics":            bullets(Topics(spec, in.Feedback), ""),
		"keywords":          joinOr(spec.Keywords, ", ", "No specific keywords"),
		"topics_to_avoid":   bullets(spec.TopicsToAvoid, "No specific topics to avoid"),
		"target_word_count": spec.WordTarget(),
	}

	id := prompt.ResearchNoSources
	if strings.TrimSpace(combined) != "" {
		id = prompt.Research
		vars["source_guidance"] = SourceGuidance(spec.SourceHints) + "\n\n" + combined
	}
	return prompt.Render(ctx, id, vars)
}

// Topics returns the key topics plus a feedback directive on a rewrite.
func Topics(spec models.ChapterSpec, feedback string) []string {
	topics := append([]string(nil), spec.KeyTopics...)
	if feedback != "" {
		topics = append(topics, "Additional research to address: "+feedback)
	}
	return topics
}

// SourceGuidance describes the preferred sources, or "" without hints.
func SourceGuidance(h *models.SourceHints) string {
	if h == nil {
		return ""
	}
	priority := h.Priority
	if priority == "" {
		priority = "general"
	}
	var b strings.Builder
	b.WriteString("\nSource Guidance (Priority: " + priority + "):")
	if len(h.InternalFiles) > 0 {
		b.WriteString("\n- Internal documents to reference: " + strings.Join(h.InternalFiles, ", "))
	}
	if len(h.PublicReferences) > 0 {
		b.WriteString("\n- Public sources to consult: " + strings.Join(h.PublicReferences, ", "))
	}
	return b.String()
}

func bullets(items []string, fallback string) string {
	if len(items) == 0 {
		if fallback == "" {
			return ""
		}
		return "- " + fallback
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

func joinOr(items []string, sep, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, sep)
}
