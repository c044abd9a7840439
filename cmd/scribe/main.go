package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pario-ai/scribe/pkg/config"
	"github.com/pario-ai/scribe/pkg/logger"
)

var version = "dev"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	_ = godotenv.Load()

	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "scribe",
		Short:         "Scribe - outline-driven document generation with token accounting",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "scribe.yaml", "path to config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		newGenerateCmd(flags),
		newRunsCmd(flags),
		newReportCmd(flags),
		newCacheCmd(flags),
		newAuditCmd(flags),
		newMCPCmd(flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config file and initialises the logger. A missing default
// config file falls back to defaults; an explicit one must exist.
func (f *rootFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(f.configPath); err == nil || cmd.Flags().Changed("config") {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if f.logLevel != "" {
		level = f.logLevel
	}
	if f.logFormat != "" {
		format = f.logFormat
	}
	logger.Init(level, format, os.Stderr)
	return cfg, nil
}
