package assembly

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/scribe/pkg/models"
)

func TestOrderNumeric(t *testing.T) {
	got := Order([]string{"1", "2.9", "2.10", "2.2"})
	want := []string{"1", "2.2", "2.9", "2.10"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrderPrefixAndText(t *testing.T) {
	got := Order([]string{"2.1", "2", "A", "1.b", "1.1", "10"})
	want := []string{"1.1", "1.b", "2", "2.1", "10", "A"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrderSignedComponentsAreText(t *testing.T) {
	got := Order([]string{"+1", "2", "-1", "1"})
	want := []string{"1", "2", "+1", "-1"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCompareIDsLargeComponents(t *testing.T) {
	if c := CompareIDs("1.18446744073709551615", "1.2"); c <= 0 {
		t.Errorf("expected larger component to sort after, got %d", c)
	}
	if c := CompareIDs("3", "3"); c != 0 {
		t.Errorf("expected equal ids to compare 0, got %d", c)
	}
}

func chapterOf(id, heading string, level int, text string, tokens int) models.CompletedChapter {
	u := models.NewTokenUsage("gpt-4o", tokens, 0, float64(tokens)*0.001, 0)
	return models.CompletedChapter{
		Spec:         models.ChapterSpec{ID: id, HeadingLabel: heading, Level: level},
		DraftText:    text,
		Usage:        map[string]models.TokenUsage{"writer": u},
		Operations:   []string{"writer"},
		TokenSummary: u,
		Reviews:      1,
	}
}

func TestRender(t *testing.T) {
	doc := Render([]models.CompletedChapter{
		chapterOf("1.1", "Background", 2, "Body B.", 1),
		chapterOf("1", "Intro", 0, "Body A.", 1),
	})
	want := "# Intro\n\nBody A.\n\n## Background\n\nBody B.\n"
	if doc != want {
		t.Errorf("expected %q, got %q", want, doc)
	}
}

func TestSummarize(t *testing.T) {
	c1 := chapterOf("1", "A", 1, "x", 1000)
	c2 := chapterOf("2", "B", 1, "y", 3000)
	c2.ForcedAccept = true
	s := Summarize(Document{
		OutlineChapters: 3,
		Chapters:        []models.CompletedChapter{c1, c2},
		Total:           c1.TokenSummary.Add(c2.TokenSummary),
	})
	if s.CompletedChapters != 2 || s.OutlineChapters != 3 || s.ForcedAccepts != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.AverageTokensPerChapter != 2000 {
		t.Errorf("expected 2000 tokens per chapter, got %f", s.AverageTokensPerChapter)
	}
	if empty := Summarize(Document{}); empty.AverageCostPerChapter != 0 {
		t.Errorf("expected zero average without chapters, got %f", empty.AverageCostPerChapter)
	}
}

func TestTokenReport(t *testing.T) {
	c := chapterOf("1", "Intro", 1, "x", 12345)
	doc := Document{
		Chapters: []models.CompletedChapter{c},
		Usage: []ChapterUsage{
			{ID: "1", Heading: "Intro", Operations: []string{"writer"}, Usage: c.Usage},
			{ID: "2", Heading: "Pending", Operations: nil},
		},
		Total: c.TokenSummary,
	}
	r := TokenReport(doc)
	if !strings.Contains(r, "  - Tokens: 12,345 (prompt: 12,345, completion: 0)") {
		t.Errorf("expected formatted token line, got:\n%s", r)
	}
	if strings.Count(r, "CHAPTER TOTAL:") != 1 {
		t.Error("expected a chapter total only for completed chapters")
	}
	if !strings.Contains(r, "TOTAL COST: $12.345000") {
		t.Error("expected overall cost")
	}
}

func TestMetadataReport(t *testing.T) {
	doc := Document{
		Title:    "PD Add-on",
		Metadata: models.OutlineMetadata{Version: "1.0", Author: "Risk"},
	}
	r := MetadataReport(doc, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	if !strings.Contains(r, "*Generated on: 2026-03-04 05:06:07*") {
		t.Error("expected generation time")
	}
	if !strings.Contains(r, "- **Average Cost per Chapter**: N/A") {
		t.Error("expected N/A average without chapters")
	}
	if !strings.Contains(r, "- **Author**: Risk") {
		t.Error("expected outline metadata")
	}
}

type fakeRenderer struct {
	err error
	got string
}

func (f *fakeRenderer) Render(_ context.Context, path string) (string, error) {
	f.got = path
	if f.err != nil {
		return "", f.err
	}
	return strings.TrimSuffix(path, ".md") + ".docx", nil
}

func TestAssemblerWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := &fakeRenderer{}
	a := New(dir, r)
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	files, err := a.Write(context.Background(), Document{
		Chapters: []models.CompletedChapter{chapterOf("1", "Intro", 1, "Hello.", 10)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(files.Markdown) != "generated_document_20260102_030405.md" {
		t.Errorf("unexpected markdown name %s", files.Markdown)
	}
	data, err := os.ReadFile(files.Markdown)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# Intro\n\nHello.\n" {
		t.Errorf("unexpected document %q", data)
	}
	for _, p := range []string{files.TokenReport, files.Metadata} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if r.got != files.Markdown || files.Rendered == "" {
		t.Errorf("expected renderer called with markdown, got %q", r.got)
	}
}

func TestAssemblerRenderFailureIsNonFatal(t *testing.T) {
	a := New(t.TempDir(), &fakeRenderer{err: errors.New("pandoc missing")})
	files, err := a.Write(context.Background(), Document{})
	if err != nil {
		t.Fatalf("expected render failure to be non-fatal, got %v", err)
	}
	if files.Rendered != "" {
		t.Errorf("expected no rendered file, got %s", files.Rendered)
	}
}

func TestPandocMissingBinary(t *testing.T) {
	p := Pandoc{Command: filepath.Join(t.TempDir(), "no-such-pandoc")}
	if _, err := p.Render(context.Background(), "doc.md"); err == nil {
		t.Error("expected error for missing binary")
	}
}
