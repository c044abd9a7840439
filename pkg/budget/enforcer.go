// Package budget guards LLM calls against run and per-chapter token and
// cost limits.
package budget

import (
	"context"
	"fmt"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/models"
)

// RunUsage reports the running total of a run.
type RunUsage interface {
	Total() models.TokenUsage
}

// ChapterUsage reports the accumulated usage of one chapter.
type ChapterUsage interface {
	ChapterTotal(id string) models.TokenUsage
}

// Enforcer checks usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	run      RunUsage
	chapters ChapterUsage
}

// New creates an Enforcer with the given policies and usage sources.
func New(policies []models.BudgetPolicy, run RunUsage, chapters ChapterUsage) *Enforcer {
	return &Enforcer{policies: policies, run: run, chapters: chapters}
}

// Check returns ErrBudgetExceeded if the run or chapterID has reached any
// policy limit. It is called before every LLM call.
func (e *Enforcer) Check(ctx context.Context, chapterID string) error {
	if e == nil {
		return nil
	}
	for _, s := range e.Status(chapterID) {
		p := s.Policy
		if p.MaxTokens > 0 && s.UsedTokens >= p.MaxTokens {
			logger.Warn(ctx, "token budget exhausted", "scope", p.Scope, "subject", s.Subject,
				"used", s.UsedTokens, "limit", p.MaxTokens)
			return apperrors.ErrBudgetExceeded.WithDetail(
				fmt.Sprintf("%s %s used %d of %d tokens", p.Scope, s.Subject, s.UsedTokens, p.MaxTokens))
		}
		if p.MaxCost > 0 && s.UsedCost >= p.MaxCost {
			logger.Warn(ctx, "cost budget exhausted", "scope", p.Scope, "subject", s.Subject,
				"used", s.UsedCost, "limit", p.MaxCost)
			return apperrors.ErrBudgetExceeded.WithDetail(
				fmt.Sprintf("%s %s spent $%.4f of $%.4f", p.Scope, s.Subject, s.UsedCost, p.MaxCost))
		}
	}
	return nil
}

// Status returns usage against every policy for the run and chapterID.
func (e *Enforcer) Status(chapterID string) []models.BudgetStatus {
	if e == nil {
		return nil
	}
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		var used models.TokenUsage
		subject := "run"
		switch p.Scope {
		case models.BudgetChapter:
			if e.chapters == nil || chapterID == "" {
				continue
			}
			used = e.chapters.ChapterTotal(chapterID)
			subject = chapterID
		default:
			if e.run == nil {
				continue
			}
			used = e.run.Total()
		}

		s := models.BudgetStatus{
			Policy:     p,
			Subject:    subject,
			UsedTokens: int64(used.TotalTokens),
			UsedCost:   used.TotalCost,
		}
		if p.MaxTokens > 0 {
			s.RemainingTokens = max(p.MaxTokens-s.UsedTokens, 0)
		}
		if p.MaxCost > 0 {
			s.RemainingCost = max(p.MaxCost-s.UsedCost, 0)
		}
		statuses = append(statuses, s)
	}
	return statuses
}
