// Package review asks the model to accept or reject a chapter draft.
package review

import (
	"context"
	"strings"

	"github.com/pario-ai/scribe/pkg/llm"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/prompt"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// AcceptedFeedback is the feedback stored for an accepted draft.
const AcceptedFeedback = "Chapter accepted."

// Input is the draft under review.
type Input struct {
	Spec  models.ChapterSpec
	Style models.StyleGuide
	Text  string
}

// Verdict is the reviewer decision and the call usage.
type Verdict struct {
	Decision  models.ReviewDecision
	Feedback  string
	Usage     models.TokenUsage
	WordCount int
}

// Reviewer runs the review stage.
type Reviewer struct {
	client llm.Client
}

// New creates a Reviewer calling client.
func New(client llm.Client) *Reviewer {
	return &Reviewer{client: client}
}

// Review returns the verdict on in.Text.
func (r *Reviewer) Review(ctx context.Context, in Input) (Verdict, error) {
	ctx, span := tracer.Start(ctx, "review.Review")
	defer span.End()

	words := len(strings.Fields(in.Text))
	logger.Info(ctx, "reviewing draft", "words", words, "target", in.Spec.WordTarget())

	text, err := prompt.Render(ctx, prompt.Reviewer, map[string]any{
		"tone_and_style": in.Style.ToneOrDefault(),
		"chapter_title":  in.Spec.HeadingLabel,
		"text":           in.Text,
	})
	if err != nil {
		return Verdict{}, err
	}
	resp, err := r.client.Invoke(ctx, text)
	if err != nil {
		span.RecordError(err)
		return Verdict{}, err
	}

	decision, feedback := Parse(resp.Text)
	if decision == models.DecisionReject {
		logger.Info(ctx, "draft rejected", "feedback", feedback)
	} else {
		logger.Info(ctx, "draft accepted")
	}
	return Verdict{Decision: decision, Feedback: feedback, Usage: resp.Usage, WordCount: words}, nil
}

// Parse maps a reviewer answer to a decision. Only the bare word "accept"
// accepts; anything else rejects with the "reject:" marker removed.
func Parse(answer string) (models.ReviewDecision, string) {
	answer = strings.TrimSpace(answer)
	if strings.EqualFold(answer, "accept") {
		return models.DecisionAccept, AcceptedFeedback
	}
	if len(answer) >= len("reject:") && strings.EqualFold(answer[:len("reject:")], "reject:") {
		answer = answer[len("reject:"):]
	}
	return models.DecisionReject, strings.TrimSpace(answer)
}
