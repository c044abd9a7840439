package models

import (
	"math"
	"time"
)

// MixedModel labels a usage aggregate that spans more than one model.
const MixedModel = "mixed"

// TokenUsage is the token count and cost of one or more LLM calls.
// TotalTokens is always PromptTokens+CompletionTokens and TotalCost is
// always InputCost+OutputCost.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	InputCost        float64 `json:"input_cost"`
	OutputCost       float64 `json:"output_cost"`
	TotalCost        float64 `json:"total_cost"`
	Model            string  `json:"model,omitempty"`
}

// NewTokenUsage builds a TokenUsage with derived totals.
func NewTokenUsage(model string, prompt, completion int, inputCost, outputCost float64) TokenUsage {
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		InputCost:        inputCost,
		OutputCost:       outputCost,
		TotalCost:        inputCost + outputCost,
		Model:            model,
	}
}

// Add returns the elementwise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	sum := TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		InputCost:        u.InputCost + o.InputCost,
		OutputCost:       u.OutputCost + o.OutputCost,
		TotalCost:        u.TotalCost + o.TotalCost,
	}
	switch {
	case u.Model == "":
		sum.Model = o.Model
	case o.Model == "" || o.Model == u.Model:
		sum.Model = u.Model
	default:
		sum.Model = MixedModel
	}
	return sum
}

// IsZero reports whether no tokens and no cost are recorded.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 &&
		u.InputCost == 0 && u.OutputCost == 0 && u.TotalCost == 0
}

// Consistent reports whether the derived totals match their parts.
func (u TokenUsage) Consistent() bool {
	return u.TotalTokens == u.PromptTokens+u.CompletionTokens &&
		CostsEqual(u.TotalCost, u.InputCost+u.OutputCost)
}

// Matches compares token counts exactly and costs within CostTolerance.
// The model label is not compared.
func (u TokenUsage) Matches(o TokenUsage) bool {
	return u.PromptTokens == o.PromptTokens &&
		u.CompletionTokens == o.CompletionTokens &&
		u.TotalTokens == o.TotalTokens &&
		CostsEqual(u.InputCost, o.InputCost) &&
		CostsEqual(u.OutputCost, o.OutputCost) &&
		CostsEqual(u.TotalCost, o.TotalCost)
}

// CostTolerance bounds float drift between cost sums computed in different orders.
const CostTolerance = 1e-9

// CostsEqual compares two costs with an absolute floor and a relative tolerance.
func CostsEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff <= CostTolerance {
		return true
	}
	return diff <= CostTolerance*math.Max(math.Abs(a), math.Abs(b))
}

// SumUsage adds up a list of usages.
func SumUsage(usages ...TokenUsage) TokenUsage {
	var total TokenUsage
	for _, u := range usages {
		total = total.Add(u)
	}
	return total
}

// TelemetryLogEntry is one append-only record of an LLM call. CumulativeTotal
// is the process-wide running total after Usage was applied.
type TelemetryLogEntry struct {
	Seq             int        `json:"seq"`
	Timestamp       time.Time  `json:"timestamp"`
	Operation       string     `json:"operation"`
	ChapterID       string     `json:"chapter_id"`
	Usage           TokenUsage `json:"usage"`
	CumulativeTotal TokenUsage `json:"cumulative_total"`
}

// UsageRecord is a persisted telemetry log entry.
type UsageRecord struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id"`
	Seq              int       `json:"seq"`
	ChapterID        string    `json:"chapter_id"`
	Operation        string    `json:"operation"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	TotalCost        float64   `json:"total_cost"`
	CumulativeTokens int       `json:"cumulative_tokens"`
	CumulativeCost   float64   `json:"cumulative_cost"`
	CreatedAt        time.Time `json:"created_at"`
}

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one generation run as persisted by the tracker.
type Run struct {
	ID           string     `json:"id"`
	Outline      string     `json:"outline"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ChapterCount int        `json:"chapter_count"`
	CallCount    int        `json:"call_count"`
	TotalTokens  int        `json:"total_tokens"`
	TotalCost    float64    `json:"total_cost"`
	Error        string     `json:"error,omitempty"`
}

// OperationSummary aggregates persisted usage for one chapter operation.
type OperationSummary struct {
	ChapterID        string  `json:"chapter_id"`
	Operation        string  `json:"operation"`
	Model            string  `json:"model"`
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost"`
}
