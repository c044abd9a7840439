package models

import "time"

// AuditEntry is one audited LLM call.
type AuditEntry struct {
	CallID           string    `json:"call_id"`
	RunID            string    `json:"run_id"`
	ChapterID        string    `json:"chapter_id"`
	Operation        string    `json:"operation"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Prompt           string    `json:"prompt,omitempty"`
	Response         string    `json:"response,omitempty"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	TotalCost        float64   `json:"total_cost"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Audit call statuses.
const (
	AuditStatusOK    = "ok"
	AuditStatusError = "error"
)

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"` // "prompts", "responses"
	ExcludeModels []string `yaml:"exclude_models"`
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	CallID    string
	RunID     string
	ChapterID string
	Operation string
	Model     string
	Since     time.Time
	Limit     int
}

// AuditStat holds aggregate audit counts for a model/day combination.
type AuditStat struct {
	Model  string
	Day    string
	Count  int
	Errors int
}
