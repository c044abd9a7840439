// Package drafting writes chapter bodies from research material.
package drafting

import (
	"context"
	"strings"

	"github.com/pario-ai/scribe/pkg/llm"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/prompt"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Input is one writer pass. Feedback is set when the previous draft was
// rejected.
type Input struct {
	Spec     models.ChapterSpec
	Style    models.StyleGuide
	Research string
	Feedback string
}

// Output is the cleaned draft and the call usage.
type Output struct {
	Text  string
	Usage models.TokenUsage
}

// Writer runs the draft stage.
type Writer struct {
	client llm.Client
}

// New creates a Writer calling client.
func New(client llm.Client) *Writer {
	return &Writer{client: client}
}

// Draft asks the model for the chapter body and strips any heading lines.
func (w *Writer) Draft(ctx context.Context, in Input) (Output, error) {
	ctx, span := tracer.Start(ctx, "drafting.Draft")
	defer span.End()

	text, err := BuildPrompt(ctx, in)
	if err != nil {
		return Output{}, err
	}
	resp, err := w.client.Invoke(ctx, text)
	if err != nil {
		span.RecordError(err)
		return Output{}, err
	}

	body := StripHeadings(resp.Text)
	logger.Debug(ctx, "draft written", "words", len(strings.Fields(body)), "target", in.Spec.WordTarget())
	return Output{Text: body, Usage: resp.Usage}, nil
}

// BuildPrompt renders the writer prompt.
func BuildPrompt(ctx context.Context, in Input) (string, error) {
	topics := make([]string, len(in.Spec.KeyTopics))
	for i, t := range in.Spec.KeyTopics {
		topics[i] = "- " + t
	}
	feedback := ""
	if in.Feedback != "" {
		feedback = "Please address the following feedback from the previous version: " + in.Feedback
	}
	return prompt.Render(ctx, prompt.Writer, map[string]any{
		"chapter_title":     in.Spec.HeadingLabel,
		"target_word_count": in.Spec.WordTarget(),
		"tone_and_style":    in.Style.ToneOrDefault(),
		"key_topics":        strings.Join(topics, "\n"),
		"purpose":           strings.Join(in.Spec.Purpose, " "),
		"research":          in.Research,
		"feedback":          feedback,
	})
}

// StripHeadings drops markdown heading lines and trims the result.
func StripHeadings(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "#") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
