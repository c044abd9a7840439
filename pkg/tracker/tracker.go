package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/scribe/pkg/models"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Tracker persists runs and their telemetry log.
type Tracker interface {
	// StartRun registers a new running run.
	StartRun(ctx context.Context, runID, outline string, startedAt time.Time) error
	// FinishRun marks a run completed, or failed when runErr is non-nil.
	FinishRun(ctx context.Context, runID string, chapters int, runErr error) error
	// Record stores one telemetry log entry and updates run counters.
	Record(ctx context.Context, rec models.UsageRecord) error
	// GetRun returns a single run.
	GetRun(ctx context.Context, runID string) (models.Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
	// RunLog returns the telemetry log of a run in sequence order.
	RunLog(ctx context.Context, runID string) ([]models.UsageRecord, error)
	// OperationSummary aggregates a run's usage per chapter and operation.
	OperationSummary(ctx context.Context, runID, chapterID string) ([]models.OperationSummary, error)
	// ChapterReport aggregates a run's usage per chapter.
	ChapterReport(ctx context.Context, runID string) ([]models.CostReport, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	outline TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	chapter_count INTEGER NOT NULL DEFAULT 0,
	call_count INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	total_cost REAL NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

const createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	chapter_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	total_cost REAL NOT NULL,
	cumulative_tokens INTEGER NOT NULL,
	cumulative_cost REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_usage_run_chapter ON usage_records(run_id, chapter_id);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runs table: %w", err)
	}

	if _, err := db.Exec(createUsageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// StartRun registers a new running run.
func (t *SQLiteTracker) StartRun(ctx context.Context, runID, outline string, startedAt time.Time) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO runs (id, outline, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, outline, models.RunRunning, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun marks a run completed, or failed when runErr is non-nil.
func (t *SQLiteTracker) FinishRun(ctx context.Context, runID string, chapters int, runErr error) error {
	status := models.RunCompleted
	msg := ""
	if runErr != nil {
		status = models.RunFailed
		msg = runErr.Error()
	}
	res, err := t.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, chapter_count = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), chapters, msg, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Record stores a usage record and updates run counters.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (run_id, seq, chapter_id, operation, model,
			prompt_tokens, completion_tokens, total_tokens, total_cost,
			cumulative_tokens, cumulative_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Seq, rec.ChapterID, rec.Operation, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.TotalCost,
		rec.CumulativeTokens, rec.CumulativeCost, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	_, err = t.db.ExecContext(ctx,
		`UPDATE runs SET call_count = call_count + 1, total_tokens = total_tokens + ?, total_cost = total_cost + ? WHERE id = ?`,
		rec.TotalTokens, rec.TotalCost, rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	return nil
}

const runColumns = `id, outline, status, started_at, finished_at, chapter_count, call_count, total_tokens, total_cost, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (models.Run, error) {
	var r models.Run
	var finished sql.NullTime
	if err := s.Scan(&r.ID, &r.Outline, &r.Status, &r.StartedAt, &finished,
		&r.ChapterCount, &r.CallCount, &r.TotalTokens, &r.TotalCost, &r.Error); err != nil {
		return models.Run{}, err
	}
	if finished.Valid {
		ft := finished.Time
		r.FinishedAt = &ft
	}
	return r, nil
}

// GetRun returns a single run.
func (t *SQLiteTracker) GetRun(ctx context.Context, runID string) (models.Run, error) {
	r, err := scanRun(t.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return models.Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (t *SQLiteTracker) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunLog returns the telemetry log of a run in sequence order.
func (t *SQLiteTracker) RunLog(ctx context.Context, runID string) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, run_id, seq, chapter_id, operation, model, prompt_tokens, completion_tokens,
			total_tokens, total_cost, cumulative_tokens, cumulative_cost, created_at
		 FROM usage_records WHERE run_id = ? ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.Seq, &r.ChapterID, &r.Operation, &r.Model,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.TotalCost,
			&r.CumulativeTokens, &r.CumulativeCost, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// OperationSummary aggregates usage per chapter and operation, optionally
// restricted to one chapter. Rows follow first-call order.
func (t *SQLiteTracker) OperationSummary(ctx context.Context, runID, chapterID string) ([]models.OperationSummary, error) {
	query := `SELECT chapter_id, operation,
			CASE WHEN COUNT(DISTINCT model) = 1 THEN MIN(model) ELSE ? END,
			COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), SUM(total_cost)
		 FROM usage_records WHERE run_id = ?`
	args := []any{models.MixedModel, runID}
	if chapterID != "" {
		query += ` AND chapter_id = ?`
		args = append(args, chapterID)
	}
	query += ` GROUP BY chapter_id, operation ORDER BY MIN(seq)`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("operation summary: %w", err)
	}
	defer rows.Close()

	var out []models.OperationSummary
	for rows.Next() {
		var s models.OperationSummary
		if err := rows.Scan(&s.ChapterID, &s.Operation, &s.Model, &s.Calls,
			&s.PromptTokens, &s.CompletionTokens, &s.TotalTokens, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan operation summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ChapterReport aggregates a run's usage per chapter in first-call order.
func (t *SQLiteTracker) ChapterReport(ctx context.Context, runID string) ([]models.CostReport, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT chapter_id, COUNT(DISTINCT operation), COUNT(*),
			SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), SUM(total_cost)
		 FROM usage_records WHERE run_id = ?
		 GROUP BY chapter_id ORDER BY MIN(seq)`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("chapter report: %w", err)
	}
	defer rows.Close()

	var out []models.CostReport
	for rows.Next() {
		var r models.CostReport
		if err := rows.Scan(&r.ChapterID, &r.Operations, &r.Calls,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.EstimatedCost); err != nil {
			return nil, fmt.Errorf("scan chapter report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
