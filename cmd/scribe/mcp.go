package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/scribe/pkg/logger"
	"github.com/pario-ai/scribe/pkg/mcp"
	"github.com/pario-ai/scribe/pkg/tracker"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve run history over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			var cache mcp.CacheStatter
			store, err := openCache(ctx, cfg)
			if err != nil {
				logger.Warn(ctx, "cache unavailable for mcp", "error", err)
			} else if store != nil {
				defer func() { _ = store.Close() }()
				cache = store
			}

			var auditor mcp.AuditSearcher
			if cfg.Audit.Enabled {
				l, err := openAuditLogger(cfg)
				if err != nil {
					return err
				}
				defer func() { _ = l.Close() }()
				auditor = l
			}

			logger.Info(ctx, "mcp server listening on stdio", "version", version)
			return mcp.New(tr, cache, auditor, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
