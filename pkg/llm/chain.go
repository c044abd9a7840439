package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pario-ai/scribe/pkg/config"
	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/metrics"
	"github.com/pario-ai/scribe/pkg/pricing"
	"github.com/pario-ai/scribe/pkg/router"
	"github.com/pario-ai/scribe/pkg/tracer"
)

// Chain invokes the routes of one pipeline stage in order. Transient
// failures are retried on the same route with exponential backoff; other
// failures and exhausted retries fall through to the next route.
type Chain struct {
	stage   string
	router  *router.Router
	models  ModelSource
	pricing *pricing.Table
	retry   config.RetryConfig
	sleep   func(context.Context, time.Duration) error
}

// NewChain creates a Chain for stage.
func NewChain(stage string, r *router.Router, m ModelSource, p *pricing.Table, retry config.RetryConfig) *Chain {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Chain{stage: stage, router: r, models: m, pricing: p, retry: retry, sleep: sleepCtx}
}

// Invoke sends prompt as a single user message and prices the reported usage
// for the model that served it.
func (c *Chain) Invoke(ctx context.Context, prompt string) (Response, error) {
	routes, err := c.router.ForStage(c.stage)
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, apperrors.KindFatal, "resolve routes for "+c.stage)
	}

	var lastErr error
	for _, route := range routes {
		for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
			resp, err := c.call(ctx, route, prompt)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return Response{}, apperrors.Wrap(ctx.Err(), apperrors.CodeLLMCallFailed, apperrors.KindFatal, c.stage+" call cancelled")
			}
			if !IsRetryable(err) || attempt == c.retry.MaxAttempts {
				logger.Warn(ctx, "llm route failed, trying next",
					"provider", route.Provider.Name, "model", route.Model, "attempt", attempt, "error", err)
				break
			}
			wait := c.backoff(attempt)
			logger.Warn(ctx, "llm call failed, retrying",
				"provider", route.Provider.Name, "model", route.Model, "attempt", attempt, "backoff", wait, "error", err)
			if err := c.sleep(ctx, wait); err != nil {
				return Response{}, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, apperrors.KindFatal, c.stage+" call cancelled")
			}
		}
	}
	return Response{}, apperrors.Wrap(lastErr, apperrors.CodeLLMCallFailed, apperrors.KindFatal, "all routes failed for "+c.stage)
}

func (c *Chain) call(ctx context.Context, route router.Route, prompt string) (Response, error) {
	ctx, span := tracer.Start(ctx, "llm.Generate", trace.WithAttributes(
		attribute.String("llm.stage", c.stage),
		attribute.String("llm.provider", route.Provider.Name),
		attribute.String("llm.model", route.Model),
	))
	defer span.End()

	start := time.Now()
	m, err := c.models.Model(ctx, route)
	if err != nil {
		span.RecordError(err)
		return Response{}, err
	}

	msg, err := m.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	metrics.ObserveLLMCall(route.Provider.Name, route.Model, c.stage, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return Response{}, err
	}
	if msg == nil {
		err := errors.New("empty response message")
		span.RecordError(err)
		return Response{}, err
	}

	var prompted, completed int
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		prompted = msg.ResponseMeta.Usage.PromptTokens
		completed = msg.ResponseMeta.Usage.CompletionTokens
	} else {
		logger.Warn(ctx, "llm response carried no usage", "provider", route.Provider.Name, "model", route.Model)
	}
	usage := c.pricing.Cost(ctx, route.Model, prompted, completed)
	metrics.ObserveUsage(usage.Model, c.stage, usage.PromptTokens, usage.CompletionTokens, usage.TotalCost)

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", usage.PromptTokens),
		attribute.Int("llm.completion_tokens", usage.CompletionTokens),
	)
	return Response{
		Text:     msg.Content,
		Usage:    usage,
		Provider: route.Provider.Name,
		Model:    route.Model,
	}, nil
}

func (c *Chain) backoff(attempt int) time.Duration {
	d := c.retry.InitialBackoff
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.retry.MaxBackoff > 0 && d >= c.retry.MaxBackoff {
			return c.retry.MaxBackoff
		}
	}
	if c.retry.MaxBackoff > 0 && d > c.retry.MaxBackoff {
		return c.retry.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRetryable reports whether err looks transient: rate limits, timeouts,
// server errors and dropped connections.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return true
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return true
	case strings.Contains(msg, "overloaded"):
		return true
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "eof"):
		return true
	default:
		return false
	}
}
