// Package assembly orders accepted chapters, renders the final document and
// writes the run's output files.
package assembly

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/pario-ai/scribe/pkg/models"
)

// CompareIDs orders dotted chapter ids component by component. Numeric
// components (digits only) compare as numbers and sort before non-numeric
// ones, which compare as strings. A prefix sorts before its extensions.
func CompareIDs(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if c := compareComponent(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(pa), len(pb))
}

func compareComponent(a, b string) int {
	na, okA := numeric(a)
	nb, okB := numeric(b)
	switch {
	case okA && okB:
		return cmp.Compare(na, nb)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// numeric parses a component made only of ASCII digits. Signs, spaces and
// values overflowing uint64 are not numeric.
func numeric(s string) (uint64, bool) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

// Order returns ids sorted by CompareIDs.
func Order(ids []string) []string {
	out := slices.Clone(ids)
	slices.SortStableFunc(out, CompareIDs)
	return out
}

// Sort returns chapters ordered by id.
func Sort(chapters []models.CompletedChapter) []models.CompletedChapter {
	out := slices.Clone(chapters)
	slices.SortStableFunc(out, func(a, b models.CompletedChapter) int {
		return CompareIDs(a.Spec.ID, b.Spec.ID)
	})
	return out
}

// Render builds the markdown document: each chapter as a heading of its
// level, a blank line, the text and a blank line, in id order.
func Render(chapters []models.CompletedChapter) string {
	var lines []string
	for _, c := range Sort(chapters) {
		heading := strings.Repeat("#", c.Spec.HeadingLevel()) + " " + c.Spec.HeadingLabel
		lines = append(lines, heading, "", c.DraftText, "")
	}
	return strings.Join(lines, "\n")
}
