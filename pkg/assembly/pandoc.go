package assembly

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/logger"
)

// Pandoc renders markdown with the pandoc binary.
type Pandoc struct {
	Command      string
	Format       string
	ReferenceDoc string
}

// Render converts markdownPath next to itself. A missing reference document
// is skipped with a warning.
func (p Pandoc) Render(ctx context.Context, markdownPath string) (string, error) {
	cmdName := p.Command
	if cmdName == "" {
		cmdName = "pandoc"
	}
	format := p.Format
	if format == "" {
		format = "docx"
	}
	out := strings.TrimSuffix(markdownPath, ".md") + "." + format

	args := []string{markdownPath, "-t", format, "-o", out}
	if p.ReferenceDoc != "" {
		if _, err := os.Stat(p.ReferenceDoc); err != nil {
			logger.Warn(ctx, "reference document not found, rendering without template", "path", p.ReferenceDoc)
		} else {
			args = append(args, "--reference-doc="+p.ReferenceDoc)
		}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdName, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		return "", apperrors.Wrap(fmt.Errorf("%s: %w: %s", cmdName, err, detail),
			apperrors.CodeRenderFailed, apperrors.KindDegraded, "render "+format)
	}
	return out, nil
}
