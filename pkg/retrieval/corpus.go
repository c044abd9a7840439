package retrieval

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pario-ai/scribe/pkg/logger"
)

const defaultCategory = "General"

// Row is one corpus entry with a unit-normalised embedding.
type Row struct {
	ID                string
	Text              string
	Embedding         []float64
	CategoryPrimary   string
	CategorySecondary string
}

// Corpus is an in-memory embedding matrix with row metadata.
type Corpus struct {
	Name  string
	Label string
	Rows  []Row
	// Options override the search options for this corpus.
	Options Options
	dim     int
}

// Dim returns the embedding dimension, or 0 for an empty corpus.
func (c *Corpus) Dim() int {
	return c.dim
}

// Len returns the number of rows.
func (c *Corpus) Len() int {
	return len(c.Rows)
}

// rawRow is the on-disk shape of a corpus entry.
type rawRow struct {
	ID        string    `json:"id"`
	Text      string    `json:"combined_text"`
	Embedding []float64 `json:"embedding"`
	Category1 string    `json:"Category_1"`
	Category2 string    `json:"Category_2"`
}

// NewCorpus builds a corpus, filling default ids and categories and checking
// that every embedding has the same dimension.
func NewCorpus(name, label string, rows []Row) (*Corpus, error) {
	c := &Corpus{Name: name, Label: label, Rows: make([]Row, 0, len(rows))}
	for i, r := range rows {
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("corpus %s: row %d has no embedding", name, i)
		}
		if c.dim == 0 {
			c.dim = len(r.Embedding)
		} else if len(r.Embedding) != c.dim {
			return nil, fmt.Errorf("corpus %s: row %d has dimension %d, expected %d", name, i, len(r.Embedding), c.dim)
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("doc_%d", i)
		}
		if r.CategoryPrimary == "" {
			r.CategoryPrimary = defaultCategory
		}
		if r.CategorySecondary == "" {
			r.CategorySecondary = defaultCategory
		}
		c.Rows = append(c.Rows, r)
	}
	return c, nil
}

// LoadCorpus reads a JSON array or JSON Lines corpus file. A missing file
// yields an empty corpus and a warning.
func LoadCorpus(ctx context.Context, name, label, path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn(ctx, "knowledge base not found", "corpus", name, "path", path)
		return &Corpus{Name: name, Label: label}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", name, err)
	}

	raws, err := decodeRows(data)
	if err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", name, err)
	}

	rows := make([]Row, len(raws))
	for i, r := range raws {
		rows[i] = Row{
			ID:                r.ID,
			Text:              r.Text,
			Embedding:         r.Embedding,
			CategoryPrimary:   r.Category1,
			CategorySecondary: r.Category2,
		}
	}
	c, err := NewCorpus(name, label, rows)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "knowledge base loaded", "corpus", name, "entries", c.Len(), "dim", c.Dim())
	return c, nil
}

func decodeRows(data []byte) ([]rawRow, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var rows []rawRow
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var rows []rawRow
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var r rawRow
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, r)
	}
	return rows, scanner.Err()
}
