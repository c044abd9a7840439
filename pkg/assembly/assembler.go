package assembly

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Renderer converts the markdown document into another format and returns
// the output path.
type Renderer interface {
	Render(ctx context.Context, markdownPath string) (string, error)
}

// Files lists what Write produced. Rendered is empty when rendering was
// disabled or failed.
type Files struct {
	Markdown    string
	TokenReport string
	Metadata    string
	Rendered    string
}

// Assembler writes the output files of a run into a directory.
type Assembler struct {
	dir      string
	renderer Renderer
	now      func() time.Time
}

// New creates an Assembler writing into dir. renderer may be nil.
func New(dir string, renderer Renderer) *Assembler {
	return &Assembler{dir: dir, renderer: renderer, now: time.Now}
}

// Write persists the document, the token report and the metadata report.
// Rendering failures are logged and do not fail the write.
func (a *Assembler) Write(ctx context.Context, doc Document) (Files, error) {
	ctx, span := tracer.Start(ctx, "assembly.Write")
	defer span.End()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create output dir: %w", err)
	}
	now := a.now()
	ts := now.Format("20060102_150405")

	files := Files{
		Markdown:    filepath.Join(a.dir, "generated_document_"+ts+".md"),
		TokenReport: filepath.Join(a.dir, "token_report_"+ts+".txt"),
		Metadata:    filepath.Join(a.dir, "document_metadata_"+ts+".md"),
	}
	outputs := []struct {
		path, body string
	}{
		{files.Markdown, Render(doc.Chapters)},
		{files.TokenReport, TokenReport(doc)},
		{files.Metadata, MetadataReport(doc, now)},
	}
	for _, o := range outputs {
		if err := os.WriteFile(o.path, []byte(o.body), 0o644); err != nil {
			span.RecordError(err)
			return Files{}, fmt.Errorf("write %s: %w", filepath.Base(o.path), err)
		}
		logger.Info(ctx, "output written", "path", o.path, "bytes", len(o.body))
	}

	if a.renderer != nil {
		out, err := a.renderer.Render(ctx, files.Markdown)
		if err != nil {
			logger.Error(ctx, "document render failed, markdown is still available", err)
		} else {
			files.Rendered = out
			logger.Info(ctx, "document rendered", "path", out)
		}
	}
	return files, nil
}
