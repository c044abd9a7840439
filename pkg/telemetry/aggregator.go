// Package telemetry keeps the process-wide token accounting of a run: an
// append-only call log and the running total it implies.
package telemetry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
)

// ErrReconcileMismatch is returned when the ledger and the running total disagree.
var ErrReconcileMismatch = apperrors.New(apperrors.CodeReconcile, apperrors.KindInvariant, "telemetry reconciliation mismatch")

// Sink persists log entries as they are recorded.
type Sink interface {
	Append(ctx context.Context, entry models.TelemetryLogEntry) error
}

// Source enumerates the usage a ledger has recorded.
type Source interface {
	EachUsage(fn func(chapterID, operation string, u models.TokenUsage))
}

// Aggregator is the single writer of the running total.
type Aggregator struct {
	mu    sync.Mutex
	total models.TokenUsage
	log   []models.TelemetryLogEntry
	sink  Sink
	now   func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSink forwards every recorded entry to s.
func WithSink(s Sink) Option {
	return func(a *Aggregator) { a.sink = s }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator with a zero running total.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Record appends a log entry for one call and advances the running total.
// Sink failures are logged and do not fail the call.
func (a *Aggregator) Record(ctx context.Context, u models.TokenUsage, operation, chapterID string) models.TelemetryLogEntry {
	a.mu.Lock()
	a.total = a.total.Add(u)
	entry := models.TelemetryLogEntry{
		Seq:             len(a.log) + 1,
		Timestamp:       a.now().UTC(),
		Operation:       operation,
		ChapterID:       chapterID,
		Usage:           u,
		CumulativeTotal: a.total,
	}
	a.log = append(a.log, entry)
	sink := a.sink
	a.mu.Unlock()

	logger.Debug(ctx, "usage recorded",
		"operation", operation,
		"chapter_id", chapterID,
		"tokens", u.TotalTokens,
		"cost", u.TotalCost,
		"cumulative_tokens", entry.CumulativeTotal.TotalTokens,
	)

	if sink != nil {
		if err := sink.Append(ctx, entry); err != nil {
			logger.Warn(ctx, "persist telemetry entry failed", "seq", entry.Seq, "error", err)
		}
	}
	return entry
}

// Total returns the running total.
func (a *Aggregator) Total() models.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Log returns a copy of the call log.
func (a *Aggregator) Log() []models.TelemetryLogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.log)
}

// Len returns the number of recorded calls.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.log)
}

// Reconcile recomputes the grand total from src and compares it with the
// running total: tokens exactly, costs within models.CostTolerance. It does
// not modify any state.
func (a *Aggregator) Reconcile(src Source) (models.TokenUsage, error) {
	var sum models.TokenUsage
	src.EachUsage(func(_, _ string, u models.TokenUsage) {
		sum = sum.Add(u)
	})

	total := a.Total()
	if !total.Matches(sum) {
		return sum, ErrReconcileMismatch.WithDetail(describeMismatch(total, sum))
	}
	return sum, nil
}

// VerifyChain checks that every cumulative snapshot equals the previous one
// plus the entry's usage.
func (a *Aggregator) VerifyChain() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var prev models.TokenUsage
	for _, e := range a.log {
		want := prev.Add(e.Usage)
		if !want.Matches(e.CumulativeTotal) {
			return apperrors.Invariantf("telemetry log entry %d: cumulative total does not chain", e.Seq)
		}
		prev = e.CumulativeTotal
	}
	if !prev.Matches(a.total) {
		return apperrors.Invariantf("telemetry log does not end at the running total")
	}
	return nil
}

func describeMismatch(total, sum models.TokenUsage) string {
	return fmt.Sprintf("running %d/%d/%d tokens $%.9f vs ledger %d/%d/%d tokens $%.9f",
		total.PromptTokens, total.CompletionTokens, total.TotalTokens, total.TotalCost,
		sum.PromptTokens, sum.CompletionTokens, sum.TotalTokens, sum.TotalCost)
}
