package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/scribe/pkg/tracker"
)

const timeLayout = "2006-01-02T15:04:05"

func newRunsCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent generation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			runs, err := tr.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tSTARTED\tCHAPTERS\tCALLS\tTOKENS\tCOST")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t$%.4f\n",
					r.ID, r.Status, r.StartedAt.Format(timeLayout), r.ChapterCount, r.CallCount, r.TotalTokens, r.TotalCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	return cmd
}

func newReportCmd(flags *rootFlags) *cobra.Command {
	var (
		runID     string
		chapterID string
		showLog   bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show token usage of a run per chapter, per operation or as a log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			ctx := context.Background()
			if runID == "" {
				runs, err := tr.ListRuns(ctx, 1)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Println("No runs found.")
					return nil
				}
				runID = runs[0].ID
			}
			run, err := tr.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s (%s), %d tokens, $%.4f\n", run.ID, run.Status, run.TotalTokens, run.TotalCost)
			if run.Error != "" {
				fmt.Printf("Error: %s\n", run.Error)
			}
			fmt.Println()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

			// Telemetry log view
			if showLog {
				records, err := tr.RunLog(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "#\tTIME\tCHAPTER\tOPERATION\tMODEL\tTOKENS\tCOST\tCUMULATIVE TOKENS\tCUMULATIVE COST")
				for _, r := range records {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t$%.6f\t%d\t$%.6f\n",
						r.Seq, r.CreatedAt.Format(timeLayout), r.ChapterID, r.Operation, r.Model,
						r.TotalTokens, r.TotalCost, r.CumulativeTokens, r.CumulativeCost)
				}
				return w.Flush()
			}

			// Per-operation view
			if chapterID != "" || cmd.Flags().Changed("operations") {
				ops, err := tr.OperationSummary(ctx, runID, chapterID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "CHAPTER\tOPERATION\tMODEL\tCALLS\tPROMPT\tCOMPLETION\tTOTAL\tCOST")
				for _, o := range ops {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t$%.6f\n",
						o.ChapterID, o.Operation, o.Model, o.Calls,
						o.PromptTokens, o.CompletionTokens, o.TotalTokens, o.TotalCost)
				}
				return w.Flush()
			}

			reports, err := tr.ChapterReport(ctx, runID)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "CHAPTER\tOPERATIONS\tCALLS\tPROMPT\tCOMPLETION\tTOTAL\tCOST")
			for _, r := range reports {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t$%.6f\n",
					r.ChapterID, r.Operations, r.Calls, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.EstimatedCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (defaults to the most recent run)")
	cmd.Flags().StringVar(&chapterID, "chapter", "", "show per-operation usage of one chapter")
	cmd.Flags().Bool("operations", false, "show per-operation usage of every chapter")
	cmd.Flags().BoolVar(&showLog, "log", false, "show the ordered telemetry log")
	return cmd
}
