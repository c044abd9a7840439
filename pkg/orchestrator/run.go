package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pario-ai/scribe/pkg/assembly"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Run processes every outline chapter in order, reconciles the accounting
// and assembles the document. On a fatal error the returned Result holds
// the chapters saved so far.
func (o *Orchestrator) Run(ctx context.Context, outline *models.Outline) (*Result, error) {
	start := time.Now()
	if o.runID != "" {
		ctx = logger.WithContext(ctx, logger.RunIDKey, o.runID)
	}
	ctx, span := tracer.Start(ctx, "orchestrator.Run",
		trace.WithAttributes(attribute.Int("chapters", len(outline.Chapters))))
	defer span.End()

	o.style = outline.Style
	logger.Info(ctx, "generation started", "chapters", len(outline.Chapters),
		"tone", o.style.ToneOrDefault())

	result := &Result{RunID: o.runID}
	finish := func(err error) (*Result, error) {
		result.Chapters = assembly.Sort(o.completed)
		result.Total = o.telemetry.Total()
		result.Summary = assembly.Summarize(o.document(outline))
		result.Duration = time.Since(start)
		if err != nil {
			span.RecordError(err)
			logger.Error(ctx, "generation failed", err, "completed", len(o.completed))
		}
		return result, err
	}

	q := NewQueue(outline.Chapters)
	for {
		route, spec, err := o.RouteNext(ctx, q)
		if err != nil {
			return finish(err)
		}
		if route == RouteFinish {
			break
		}
		if err := o.runChapter(ctx, spec); err != nil {
			return finish(err)
		}
	}

	if err := o.Reconcile(ctx); err != nil {
		return finish(err)
	}

	if o.assembler != nil {
		files, err := o.assembler.Write(ctx, o.document(outline))
		if err != nil {
			return finish(err)
		}
		result.Files = files
	}
	res, err := finish(nil)
	logger.Info(ctx, "generation finished", "chapters", len(res.Chapters),
		"tokens", res.Total.TotalTokens, "duration", res.Duration.Round(time.Millisecond).String())
	return res, err
}

func (o *Orchestrator) runChapter(ctx context.Context, spec models.ChapterSpec) error {
	ctx = logger.WithContext(ctx, logger.ChapterIDKey, spec.ID)
	ctx, span := tracer.Start(ctx, "orchestrator.Chapter", trace.WithAttributes(
		attribute.String("chapter_id", spec.ID),
		attribute.String("heading", spec.HeadingLabel),
	))
	defer span.End()

	for {
		if err := o.AdvanceChapter(ctx, spec.ID); err != nil {
			span.RecordError(err)
			return err
		}
		route, err := o.RouteAfterReview(ctx, spec.ID)
		if err != nil {
			return err
		}
		switch route {
		case RouteResearch:
			continue
		case RouteEscalate:
			if err := o.Escalate(ctx, spec.ID); err != nil {
				span.RecordError(err)
				return err
			}
		}
		_, err = o.SaveChapter(ctx, spec.ID)
		return err
	}
}

// Reconcile checks the telemetry running total against the ledger and the
// cumulative chain of the log.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	sum, err := o.telemetry.Reconcile(o.ledger)
	if err != nil {
		return err
	}
	if err := o.telemetry.VerifyChain(); err != nil {
		return err
	}
	logger.Info(ctx, "accounting reconciled", "calls", o.telemetry.Len(),
		"tokens", sum.TotalTokens, "cost", sum.TotalCost)
	return nil
}

// document collects what the assembler needs from the ledger.
func (o *Orchestrator) document(outline *models.Outline) assembly.Document {
	entries := o.ledger.Entries()
	usage := make([]assembly.ChapterUsage, 0, len(entries))
	for _, e := range entries {
		usage = append(usage, assembly.ChapterUsage{
			ID:         e.Spec.ID,
			Heading:    e.Spec.HeadingLabel,
			Operations: e.Operations(),
			Usage:      e.Usage(),
		})
	}
	return assembly.Document{
		Title:           outline.Title,
		Metadata:        outline.Metadata,
		OutlineChapters: len(outline.Chapters),
		Chapters:        o.completed,
		Usage:           usage,
		Total:           o.telemetry.Total(),
	}
}
