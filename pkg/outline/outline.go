// Package outline loads and validates document outlines.
package outline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/models"
)

// Metadata defaults.
const (
	DefaultVersion = "1.0"
	DefaultAuthor  = "Document Generation System"
)

// Load reads a JSON or YAML outline, validates it and fills defaults.
func Load(path string) (*models.Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, apperrors.KindFatal, "outline not found")
		}
		return nil, fmt.Errorf("read outline: %w", err)
	}
	return Parse(data, filepath.Ext(path), time.Now())
}

// Parse decodes an outline. ext selects JSON (".json") or YAML (anything
// else); now dates outlines without a created date.
func Parse(data []byte, ext string, now time.Time) (*models.Outline, error) {
	var o models.Outline
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &o)
	} else {
		err = yaml.Unmarshal(data, &o)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOutlineInvalid, apperrors.KindFatal, "parse outline")
	}

	NormalizeIDs(&o)
	if err := Validate(&o); err != nil {
		return nil, err
	}
	ApplyDefaults(&o, now)
	return &o, nil
}

// NormalizeIDs trims surrounding whitespace from chapter ids. Validate,
// the ledger and the orchestrator all key on the normalized id.
func NormalizeIDs(o *models.Outline) {
	for i := range o.Chapters {
		o.Chapters[i].ID = strings.TrimSpace(o.Chapters[i].ID)
	}
}

// Validate checks that the outline has chapters with unique dotted numeric
// ids and headings. Ids are checked as stored; run NormalizeIDs first.
func Validate(o *models.Outline) error {
	if len(o.Chapters) == 0 {
		return apperrors.ErrOutlineInvalid.WithDetail("table_of_contents is empty")
	}
	seen := make(map[string]bool, len(o.Chapters))
	for i, c := range o.Chapters {
		if c.ID == "" {
			return apperrors.ErrOutlineInvalid.WithDetail(fmt.Sprintf("chapter %d has no id", i))
		}
		if err := checkID(c.ID); err != nil {
			return err
		}
		if seen[c.ID] {
			return apperrors.ErrOutlineInvalid.WithDetail(fmt.Sprintf("duplicate chapter id %q", c.ID))
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.HeadingLabel) == "" {
			return apperrors.ErrOutlineInvalid.WithDetail(fmt.Sprintf("chapter %q has no heading_label", c.ID))
		}
		if c.Level < 0 || c.TargetWordCount < 0 {
			return apperrors.ErrOutlineInvalid.WithDetail(fmt.Sprintf("chapter %q has a negative level or word count", c.ID))
		}
	}
	return nil
}

// checkID accepts ids like "2" or "2.10": dot-separated runs of ASCII digits.
func checkID(id string) error {
	for _, part := range strings.Split(id, ".") {
		if part == "" {
			return apperrors.ErrOutlineInvalid.WithDetail(fmt.Sprintf("chapter id %q has an empty component", id))
		}
		if strings.TrimLeft(part, "0123456789") != "" {
			return apperrors.ErrOutlineInvalid.WithDetail(fmt.Sprintf("chapter id %q component %q is not numeric", id, part))
		}
	}
	return nil
}

// ApplyDefaults fills missing metadata and the default tone. Chapter level
// and word count defaults are applied on read by ChapterSpec.
func ApplyDefaults(o *models.Outline, now time.Time) {
	if o.Metadata.Version == "" {
		o.Metadata.Version = DefaultVersion
	}
	if o.Metadata.CreatedDate == "" {
		o.Metadata.CreatedDate = now.Format("2006-01-02")
	}
	if o.Metadata.Author == "" {
		o.Metadata.Author = DefaultAuthor
	}
	o.Style.Tone = o.Style.ToneOrDefault()
}
