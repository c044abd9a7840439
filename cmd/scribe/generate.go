package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/metrics"
	"github.com/pario-ai/scribe/pkg/outline"
	"github.com/pario-ai/scribe/pkg/tracer"
	"github.com/pario-ai/scribe/pkg/tracker"
)

func newGenerateCmd(flags *rootFlags) *cobra.Command {
	var (
		outlinePath string
		outputDir   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a document from an outline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if outlinePath != "" {
				cfg.Outline = outlinePath
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := tracer.Init(ctx, cfg.Tracing)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			if cfg.Metrics.Enabled {
				go func() {
					if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
						logger.Error(ctx, "metrics server stopped", err)
					}
				}()
			}

			doc, err := outline.Load(cfg.Outline)
			if err != nil {
				return err
			}
			if cfg.Style.Tone != "" {
				doc.Style.Tone = cfg.Style.Tone
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			runID := uuid.NewString()
			p, err := buildPipeline(ctx, cfg, tr, runID)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := tr.StartRun(ctx, runID, cfg.Outline, time.Now()); err != nil {
				return fmt.Errorf("start run: %w", err)
			}

			res, runErr := p.orch.Run(ctx, doc)
			chapters := 0
			if res != nil {
				chapters = len(res.Chapters)
			}
			// The run context may already be cancelled.
			if err := tr.FinishRun(context.Background(), runID, chapters, runErr); err != nil {
				logger.Error(ctx, "failed to persist run outcome", err)
			}

			if res != nil {
				statuses := p.budget.Status("")
				fmt.Fprint(os.Stdout, renderSummary(res, statuses, runErr))
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&outlinePath, "outline", "o", "", "outline file (JSON or YAML), overrides config")
	cmd.Flags().StringVar(&outputDir, "output", "", "output directory, overrides config")
	return cmd
}
