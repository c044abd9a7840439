package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/scribe/pkg/models"
)

// Logger writes and queries audited LLM calls in a dedicated SQLite database.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	include map[string]bool
	exclude map[string]bool
}

// New opens the audit SQLite database, creates the schema and removes
// entries past the retention period.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}
	exc := make(map[string]bool)
	for _, v := range cfg.ExcludeModels {
		exc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		include: inc,
		exclude: exc,
	}

	if cfg.RetentionDays > 0 {
		if _, err := l.Cleanup(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
	}
	return l, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_log (
		call_id           TEXT PRIMARY KEY,
		run_id            TEXT NOT NULL,
		chapter_id        TEXT,
		operation         TEXT,
		provider          TEXT,
		model             TEXT NOT NULL,
		prompt            TEXT,
		response          TEXT,
		status            TEXT NOT NULL,
		error             TEXT,
		prompt_tokens     INTEGER,
		completion_tokens INTEGER,
		total_tokens      INTEGER,
		total_cost        REAL,
		latency_ms        INTEGER,
		created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_log(run_id, chapter_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_model ON audit_log(model)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Log inserts an audit entry, respecting include/exclude configuration.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if l.exclude[entry.Model] {
		return nil
	}

	prompt := entry.Prompt
	response := entry.Response
	if !l.include["prompts"] {
		prompt = ""
	}
	if !l.include["responses"] {
		response = ""
	}
	if l.cfg.MaxBodySize > 0 {
		prompt = truncate(prompt, l.cfg.MaxBodySize)
		response = truncate(response, l.cfg.MaxBodySize)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(call_id, run_id, chapter_id, operation, provider, model,
		 prompt, response, status, error,
		 prompt_tokens, completion_tokens, total_tokens, total_cost, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CallID, entry.RunID, entry.ChapterID, entry.Operation,
		entry.Provider, entry.Model,
		prompt, response, entry.Status, entry.Error,
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens,
		entry.TotalCost, entry.LatencyMs, createdAt.UTC(),
	)
	return err
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

const selectColumns = `call_id, run_id, chapter_id, operation, provider, model,
	prompt, response, status, error,
	prompt_tokens, completion_tokens, total_tokens, total_cost, latency_ms, created_at`

// defaultQueryLimit caps Query when opts.Limit is unset.
const defaultQueryLimit = 100

// where renders the non-empty filters of opts as a conjunction.
func where(opts models.AuditQueryOpts) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for _, f := range []struct {
		column, value string
	}{
		{"call_id", opts.CallID},
		{"run_id", opts.RunID},
		{"chapter_id", opts.ChapterID},
		{"operation", opts.Operation},
		{"model", opts.Model},
	} {
		if f.value != "" {
			clauses = append(clauses, f.column+" = ?")
			args = append(args, f.value)
		}
	}
	if !opts.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, opts.Since.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Query returns audit entries matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	cond, args := where(opts)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM audit_log"+cond+" ORDER BY created_at DESC, call_id LIMIT ?",
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (models.AuditEntry, error) {
	var (
		e models.AuditEntry
		// Columns left empty by Log come back NULL on older rows.
		chapterID, operation, provider, prompt, response, errText sql.NullString
	)
	err := rows.Scan(
		&e.CallID, &e.RunID, &chapterID, &operation, &provider, &e.Model,
		&prompt, &response, &e.Status, &errText,
		&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens,
		&e.TotalCost, &e.LatencyMs, &e.CreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("scan audit row: %w", err)
	}
	e.ChapterID = chapterID.String
	e.Operation = operation.String
	e.Provider = provider.String
	e.Prompt = prompt.String
	e.Response = response.String
	e.Error = errText.String
	return e, nil
}

// Stats returns call and error counts grouped by model and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT model, date(created_at) as day, count(*) as cnt,
		        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) as errs
		 FROM audit_log GROUP BY model, day ORDER BY day DESC, model`,
		models.AuditStatusError)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Model, &day, &s.Count, &s.Errors); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period. A
// retention of zero days keeps everything.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays).UTC()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (l *Logger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
