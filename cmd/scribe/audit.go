package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/scribe/pkg/audit"
	"github.com/pario-ai/scribe/pkg/models"
)

func newAuditCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the LLM call audit log",
	}
	cmd.AddCommand(
		newAuditSearchCmd(flags),
		newAuditShowCmd(flags),
		newAuditStatsCmd(flags),
		newAuditCleanupCmd(flags),
	)
	return cmd
}

// auditRunE opens the audit log for the duration of fn. The log is read
// even when auditing is disabled for new runs, so past runs stay queryable.
func auditRunE(flags *rootFlags, fn func(ctx context.Context, l *audit.Logger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.load(cmd)
		if err != nil {
			return err
		}
		l, err := openAuditLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = l.Close() }()
		return fn(cmd.Context(), l)
	}
}

func newAuditSearchCmd(flags *rootFlags) *cobra.Command {
	var (
		opts  models.AuditQueryOpts
		since string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		PreRunE: func(*cobra.Command, []string) error {
			if since == "" {
				return nil
			}
			t, err := time.Parse(dateLayout, since)
			if err != nil {
				return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
			}
			opts.Since = t
			return nil
		},
		RunE: auditRunE(flags, func(ctx context.Context, l *audit.Logger) error {
			entries, err := l.Query(ctx, opts)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No audit entries found.")
				return nil
			}
			return printAuditEntries(os.Stdout, entries)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&opts.RunID, "run", "", "filter by run ID")
	f.StringVar(&opts.ChapterID, "chapter", "", "filter by chapter ID")
	f.StringVar(&opts.Operation, "operation", "", "filter by operation key, e.g. writer_rewrite")
	f.StringVar(&opts.Model, "model", "", "filter by model")
	f.StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	f.IntVar(&opts.Limit, "limit", 50, "max entries to return")
	return cmd
}

const dateLayout = "2006-01-02"

func printAuditEntries(out io.Writer, entries []models.AuditEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CALL ID\tRUN\tCHAPTER\tOPERATION\tMODEL\tSTATUS\tLATENCY\tTOKENS\tTIME")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\t%d\t%s\n",
			e.CallID, shortID(e.RunID), e.ChapterID, e.Operation, e.Model, e.Status,
			e.LatencyMs, e.TotalTokens, e.CreatedAt.Format(timeLayout))
	}
	return w.Flush()
}

func newAuditShowCmd(flags *rootFlags) *cobra.Command {
	var callID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a single audited call with its prompt and response",
		RunE: auditRunE(flags, func(ctx context.Context, l *audit.Logger) error {
			entries, err := l.Query(ctx, models.AuditQueryOpts{CallID: callID, Limit: 1})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no audited call with ID %q", callID)
			}
			printAuditCall(os.Stdout, entries[0])
			return nil
		}),
	}
	cmd.Flags().StringVar(&callID, "call-id", "", "call ID to show")
	_ = cmd.MarkFlagRequired("call-id")
	return cmd
}

func printAuditCall(out io.Writer, e models.AuditEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(w, "%s:\t%s\n", k, v) }
	row("Call ID", e.CallID)
	row("Run", e.RunID)
	row("Chapter", e.ChapterID)
	row("Operation", e.Operation)
	row("Route", e.Provider+"/"+e.Model)
	row("Status", e.Status)
	if e.Error != "" {
		row("Error", e.Error)
	}
	row("Latency", fmt.Sprintf("%dms", e.LatencyMs))
	row("Tokens", fmt.Sprintf("%d prompt / %d completion / %d total", e.PromptTokens, e.CompletionTokens, e.TotalTokens))
	row("Cost", fmt.Sprintf("$%.6f", e.TotalCost))
	row("Time", e.CreatedAt.Format(time.RFC3339))
	_ = w.Flush()

	if e.Prompt != "" {
		fmt.Fprintf(out, "\n--- Prompt ---\n%s\n", e.Prompt)
	}
	if e.Response != "" {
		fmt.Fprintf(out, "\n--- Response ---\n%s\n", e.Response)
	}
}

func newAuditStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audited calls and errors per model and day",
		RunE: auditRunE(flags, func(ctx context.Context, l *audit.Logger) error {
			stats, err := l.Stats(ctx)
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Println("No audited calls yet.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tMODEL\tCALLS\tERRORS")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Day, s.Model, s.Count, s.Errors)
			}
			return w.Flush()
		}),
	}
}

func newAuditCleanupCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: auditRunE(flags, func(ctx context.Context, l *audit.Logger) error {
			deleted, err := l.Cleanup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", deleted)
			return nil
		}),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
