// Package metrics exposes Prometheus instruments for generation runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scribe"

var (
	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"provider", "model", "operation", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for LLM calls",
		},
		[]string{"model", "type"}, // type: prompt/completion
	)

	LLMCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_total",
			Help:      "Estimated LLM spend",
		},
		[]string{"model", "operation"},
	)

	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "Knowledge base search duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"corpus"},
	)

	RetrievalResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Results returned per knowledge base search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20},
		},
		[]string{"corpus"},
	)

	WebSearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websearch",
			Name:      "queries_total",
			Help:      "Web search sub-queries by outcome",
		},
		[]string{"status"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Web search cache lookups",
		},
		[]string{"backend", "result"}, // result: hit/miss
	)

	ChapterReviews = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chapter",
			Name:      "reviews",
			Help:      "Review passes needed per accepted chapter",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		},
	)

	ChaptersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chapter",
			Name:      "completed_total",
			Help:      "Chapters completed by outcome",
		},
		[]string{"outcome"}, // accepted/forced
	)
)

// ObserveLLMCall records the outcome of one LLM call.
func ObserveLLMCall(provider, model, operation string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	LLMCallTotal.WithLabelValues(provider, model, operation, status).Inc()
	LLMCallDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// ObserveUsage records token and cost counters.
func ObserveUsage(model, operation string, prompt, completion int, cost float64) {
	LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(prompt))
	LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(completion))
	LLMCostTotal.WithLabelValues(model, operation).Add(cost)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
