package tracker

import (
	"context"

	"github.com/pario-ai/scribe/pkg/models"
)

// RunSink persists telemetry log entries of one run.
type RunSink struct {
	tracker Tracker
	runID   string
}

// NewRunSink binds t to runID.
func NewRunSink(t Tracker, runID string) *RunSink {
	return &RunSink{tracker: t, runID: runID}
}

// Append stores e as a usage record.
func (s *RunSink) Append(ctx context.Context, e models.TelemetryLogEntry) error {
	return s.tracker.Record(ctx, models.UsageRecord{
		RunID:            s.runID,
		Seq:              e.Seq,
		ChapterID:        e.ChapterID,
		Operation:        e.Operation,
		Model:            e.Usage.Model,
		PromptTokens:     e.Usage.PromptTokens,
		CompletionTokens: e.Usage.CompletionTokens,
		TotalTokens:      e.Usage.TotalTokens,
		TotalCost:        e.Usage.TotalCost,
		CumulativeTokens: e.CumulativeTotal.TotalTokens,
		CumulativeCost:   e.CumulativeTotal.TotalCost,
		CreatedAt:        e.Timestamp,
	})
}
