// Package orchestrator drives every outline chapter through research,
// drafting and review until it is accepted, then assembles the document.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pario-ai/scribe/pkg/assembly"
	"github.com/pario-ai/scribe/pkg/config"
	"github.com/pario-ai/scribe/pkg/drafting"
	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/ledger"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/metrics"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/research"
	"github.com/pario-ai/scribe/pkg/review"
	"github.com/pario-ai/scribe/pkg/telemetry"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Route is a routing decision of the control loop.
type Route string

const (
	RouteContinue Route = "continue"
	RouteFinish   Route = "finish"
	RouteSave     Route = "save"
	RouteResearch Route = "research"
	RouteEscalate Route = "escalate"
)

// Researcher runs the research stage.
type Researcher interface {
	Research(ctx context.Context, in research.Input) (research.Output, error)
}

// Drafter runs the draft stage.
type Drafter interface {
	Draft(ctx context.Context, in drafting.Input) (drafting.Output, error)
}

// Reviewer runs the review stage.
type Reviewer interface {
	Review(ctx context.Context, in review.Input) (review.Verdict, error)
}

// Assembler persists the final document.
type Assembler interface {
	Write(ctx context.Context, doc assembly.Document) (assembly.Files, error)
}

// Guard is consulted before every LLM call.
type Guard interface {
	Check(ctx context.Context, chapterID string) error
}

// RevisionPolicy bounds the review loop. MaxReviews 0 is unbounded.
type RevisionPolicy struct {
	MaxReviews  int
	OnExhausted string
}

// Deps are the collaborators of an Orchestrator. Ledger and Telemetry are
// created when nil; Assembler and Budget are optional.
type Deps struct {
	Researcher Researcher
	Drafter    Drafter
	Reviewer   Reviewer
	Assembler  Assembler
	Budget     Guard
	Ledger     *ledger.Ledger
	Telemetry  *telemetry.Aggregator
	Policy     RevisionPolicy
	RunID      string
}

// Orchestrator owns the chapter lifecycle of one run. It is not safe for
// concurrent Runs.
type Orchestrator struct {
	researcher Researcher
	drafter    Drafter
	reviewer   Reviewer
	assembler  Assembler
	budget     Guard
	ledger     *ledger.Ledger
	telemetry  *telemetry.Aggregator
	policy     RevisionPolicy
	runID      string

	style     models.StyleGuide
	completed []models.CompletedChapter
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	if d.Ledger == nil {
		d.Ledger = ledger.New()
	}
	if d.Telemetry == nil {
		d.Telemetry = telemetry.New()
	}
	if d.Policy.OnExhausted == "" {
		d.Policy.OnExhausted = config.OnExhaustedForceAccept
	}
	return &Orchestrator{
		researcher: d.Researcher,
		drafter:    d.Drafter,
		reviewer:   d.Reviewer,
		assembler:  d.Assembler,
		budget:     d.Budget,
		ledger:     d.Ledger,
		telemetry:  d.Telemetry,
		policy:     d.Policy,
		runID:      d.RunID,
	}
}

// Ledger returns the run's ledger.
func (o *Orchestrator) Ledger() *ledger.Ledger { return o.ledger }

// Telemetry returns the run's aggregator.
func (o *Orchestrator) Telemetry() *telemetry.Aggregator { return o.telemetry }

// Queue holds the chapters not yet routed, in outline order.
type Queue struct {
	specs []models.ChapterSpec
}

// NewQueue copies specs into a Queue.
func NewQueue(specs []models.ChapterSpec) *Queue {
	return &Queue{specs: append([]models.ChapterSpec(nil), specs...)}
}

// Len returns the number of chapters left.
func (q *Queue) Len() int { return len(q.specs) }

// RouteNext pops the head of q and makes it the active chapter. An empty
// queue finishes the loop.
func (o *Orchestrator) RouteNext(ctx context.Context, q *Queue) (Route, models.ChapterSpec, error) {
	if q.Len() == 0 {
		logger.Info(ctx, "all chapters processed, moving to assembly")
		return RouteFinish, models.ChapterSpec{}, nil
	}
	spec := q.specs[0]
	q.specs = q.specs[1:]
	if _, err := o.ledger.Activate(spec); err != nil {
		return "", models.ChapterSpec{}, err
	}
	logger.Info(ctx, "routing to chapter", "chapter_id", spec.ID, "heading", spec.HeadingLabel,
		"remaining", q.Len())
	return RouteContinue, spec, nil
}

// AdvanceChapter runs one research, draft and review pass of the active
// chapter id. After a rejection the reviewer feedback is passed to both
// research and drafting.
func (o *Orchestrator) AdvanceChapter(ctx context.Context, id string) error {
	entry, ok := o.ledger.Get(id)
	if !ok {
		return apperrors.Invariantf("chapter %s has no ledger entry", id)
	}
	feedback := ""
	if entry.ReviewDecision == models.DecisionReject {
		feedback = entry.ReviewFeedback
	}
	spec := entry.Spec

	// research
	attempt, err := o.ledger.BeginStage(id, ledger.StageResearch)
	if err != nil {
		return err
	}
	sctx, span := o.stage(ctx, "research", ledger.ResearchKey(attempt))
	if err := o.checkBudget(sctx, id); err != nil {
		span.End()
		return err
	}
	res, err := o.researcher.Research(sctx, research.Input{Spec: spec, Style: o.style, Feedback: feedback})
	if err != nil {
		span.End()
		return err
	}
	if err := o.record(sctx, id, func() (string, error) {
		return o.ledger.CompleteResearch(id, res.Text, res.Usage)
	}, res.Usage); err != nil {
		span.End()
		return err
	}
	span.End()

	// draft
	attempt, err = o.ledger.BeginStage(id, ledger.StageDraft)
	if err != nil {
		return err
	}
	sctx, span = o.stage(ctx, "draft", ledger.WriterKey(attempt))
	if err := o.checkBudget(sctx, id); err != nil {
		span.End()
		return err
	}
	draft, err := o.drafter.Draft(sctx, drafting.Input{Spec: spec, Style: o.style, Research: res.Text, Feedback: feedback})
	if err != nil {
		span.End()
		return err
	}
	if err := o.record(sctx, id, func() (string, error) {
		return o.ledger.CompleteDraft(id, draft.Text, draft.Usage)
	}, draft.Usage); err != nil {
		span.End()
		return err
	}
	span.End()

	// review
	attempt, err = o.ledger.BeginStage(id, ledger.StageReview)
	if err != nil {
		return err
	}
	sctx, span = o.stage(ctx, "review", ledger.ReviewerKey(attempt))
	defer span.End()
	if err := o.checkBudget(sctx, id); err != nil {
		return err
	}
	verdict, err := o.reviewer.Review(sctx, review.Input{Spec: spec, Style: o.style, Text: draft.Text})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("decision", string(verdict.Decision)))
	return o.record(sctx, id, func() (string, error) {
		return o.ledger.CompleteReview(id, verdict.Decision, verdict.Feedback, verdict.Usage)
	}, verdict.Usage)
}

// stage opens a stage span and labels ctx with the stage and the operation
// key the stage will record under.
func (o *Orchestrator) stage(ctx context.Context, stage, operation string) (context.Context, trace.Span) {
	ctx = logger.WithContext(ctx, logger.StageKey, stage)
	ctx = logger.WithContext(ctx, logger.OperationKey, operation)
	ctx, span := tracer.Start(ctx, "chapter."+stage, trace.WithAttributes(attribute.String("operation", operation)))
	logger.Info(ctx, "stage started")
	return ctx, span
}

// record stores usage in the ledger first and then in telemetry, so both
// always see the same calls.
func (o *Orchestrator) record(ctx context.Context, id string, complete func() (string, error), u models.TokenUsage) error {
	key, err := complete()
	if err != nil {
		return err
	}
	o.telemetry.Record(ctx, u, key, id)
	logger.Info(ctx, "stage usage recorded", "operation", key,
		"tokens", u.TotalTokens, "cost", fmt.Sprintf("%.6f", u.TotalCost))
	return nil
}

// RouteAfterReview decides what follows a review of chapter id.
func (o *Orchestrator) RouteAfterReview(ctx context.Context, id string) (Route, error) {
	entry, ok := o.ledger.Get(id)
	if !ok {
		return "", apperrors.Invariantf("chapter %s has no ledger entry", id)
	}
	switch entry.ReviewDecision {
	case models.DecisionAccept:
		logger.Info(ctx, "chapter accepted", "reviews", entry.ReviewAttempts)
		return RouteSave, nil
	case models.DecisionReject:
		if o.policy.MaxReviews > 0 && entry.ReviewAttempts >= o.policy.MaxReviews {
			logger.Warn(ctx, "revision limit reached", "reviews", entry.ReviewAttempts,
				"policy", o.policy.OnExhausted)
			return RouteEscalate, nil
		}
		logger.Info(ctx, "chapter rejected, revising", "reviews", entry.ReviewAttempts,
			"feedback", entry.ReviewFeedback)
		return RouteResearch, nil
	default:
		return "", apperrors.Invariantf("chapter %s routed without a review decision", id)
	}
}

// Escalate applies the revision exhaustion policy to chapter id.
func (o *Orchestrator) Escalate(ctx context.Context, id string) error {
	if o.policy.OnExhausted == config.OnExhaustedFail {
		return apperrors.ErrRevisionsExhausted.WithDetail(
			fmt.Sprintf("chapter %s rejected %d times", id, o.policy.MaxReviews))
	}
	if err := o.ledger.ForceAccept(id); err != nil {
		return err
	}
	logger.Warn(ctx, "accepting chapter without reviewer approval")
	return nil
}

// SaveChapter seals the accepted chapter id and keeps it for assembly.
func (o *Orchestrator) SaveChapter(ctx context.Context, id string) (models.CompletedChapter, error) {
	c, err := o.ledger.Complete(id)
	if err != nil {
		return models.CompletedChapter{}, err
	}
	o.completed = append(o.completed, c)

	outcome := "accepted"
	if c.ForcedAccept {
		outcome = "forced"
	}
	metrics.ChaptersTotal.WithLabelValues(outcome).Inc()
	metrics.ChapterReviews.Observe(float64(c.Reviews))
	logger.Info(ctx, "chapter saved", "tokens", c.TokenSummary.TotalTokens,
		"cost", fmt.Sprintf("%.6f", c.TokenSummary.TotalCost), "outcome", outcome)
	return c, nil
}

// Completed returns the saved chapters in save order.
func (o *Orchestrator) Completed() []models.CompletedChapter {
	return append([]models.CompletedChapter(nil), o.completed...)
}

func (o *Orchestrator) checkBudget(ctx context.Context, id string) error {
	if o.budget == nil {
		return nil
	}
	return o.budget.Check(ctx, id)
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Chapters []models.CompletedChapter
	Total    models.TokenUsage
	Summary  assembly.Summary
	Files    assembly.Files
	Duration time.Duration
}
