package llm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// AuditSink stores one entry per LLM call.
type AuditSink interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// Audited records every call of the wrapped Client in an AuditSink. Run,
// chapter and operation come from the logger context fields.
type Audited struct {
	next  Client
	stage string
	sink  AuditSink
	now   func() time.Time
}

// NewAudited wraps next. A nil sink disables auditing.
func NewAudited(next Client, stage string, sink AuditSink) *Audited {
	return &Audited{next: next, stage: stage, sink: sink, now: time.Now}
}

// Invoke calls the wrapped client and audits the outcome. Audit failures are
// logged and never fail the call.
func (a *Audited) Invoke(ctx context.Context, prompt string) (Response, error) {
	ctx, span := tracer.Start(ctx, "llm.Invoke")
	defer span.End()

	start := a.now()
	resp, err := a.next.Invoke(ctx, prompt)
	if err != nil {
		span.RecordError(err)
	}
	if a.sink == nil {
		return resp, err
	}

	operation := logger.Value(ctx, logger.OperationKey)
	if operation == "" {
		operation = a.stage
	}
	entry := models.AuditEntry{
		CallID:           uuid.NewString(),
		RunID:            logger.Value(ctx, logger.RunIDKey),
		ChapterID:        logger.Value(ctx, logger.ChapterIDKey),
		Operation:        operation,
		Provider:         resp.Provider,
		Model:            resp.Model,
		Prompt:           prompt,
		Response:         resp.Text,
		Status:           models.AuditStatusOK,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalCost:        resp.Usage.TotalCost,
		LatencyMs:        a.now().Sub(start).Milliseconds(),
		CreatedAt:        start,
	}
	if err != nil {
		entry.Status = models.AuditStatusError
		entry.Error = err.Error()
		if entry.Model == "" {
			entry.Model = "unknown"
		}
	}
	if logErr := a.sink.Log(ctx, entry); logErr != nil {
		logger.Warn(ctx, "audit log write failed", "call_id", entry.CallID, "error", logErr)
	}
	return resp, err
}
