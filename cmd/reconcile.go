package cmd

import (
	"listing-harvester/feature/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reconcileRunID string

// reconcileCmd joins the jobs of a run to its companies.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Join the jobs of a run to their companies",
	Long: `Loads the companies and jobs artifacts of a run, joins every job to its
company, normalizes experience and salary fields and writes the unified
artifact.

Jobs whose company is missing are kept with empty company fields and
reported as warnings.

Examples:
  # Newest run
  reconcile

  # Specific run
  reconcile --run 20261016T101500Z-1a2b3c4d`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileRunID, "run", "latest", "Run id to reconcile")
	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	runID, err := a.runID(ctx, reconcileRunID)
	if err != nil {
		return err
	}
	svc, err := a.pipeline(false)
	if err != nil {
		return err
	}

	a.log.Info("Starting reconciliation", zap.String("run_id", runID))
	report, err := svc.Reconcile(ctx, runID)
	if err != nil {
		return err
	}
	printReconcileReport(a.log, report)
	return nil
}

// printReconcileReport prints a formatted reconciliation report using logger.
func printReconcileReport(l *zap.Logger, r *pipeline.ReconcileReport) {
	s := r.Summary
	l.Info("Reconciliation report",
		zap.String("run_id", r.RunID),
		zap.Int("companies", s.Parents),
		zap.Int("jobs", s.Children),
		zap.Int("records", r.Records),
		zap.Int("matched", s.Matched),
		zap.Int("unmatched", s.Unmatched),
		zap.Int("normalized", s.Normalized),
		zap.Int("duplicates", s.Duplicates),
	)

	// Show sample of warnings (max 5 for logger)
	maxShow := min(len(s.Warnings), 5)
	for _, w := range s.Warnings[:maxShow] {
		l.Info("Sample warning",
			zap.String("kind", string(w.Kind)),
			zap.String("key", string(w.Key)),
			zap.String("message", w.Message),
		)
	}
	if len(s.Warnings) > maxShow {
		l.Info("Additional warnings not shown", zap.Int("count", len(s.Warnings)-maxShow))
	}
}
