package cmd

import (
	"listing-harvester/feature/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var harvestRunID string

// harvestCmd fetches every company not yet settled in the checkpoint.
var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Fetch companies and job postings into a run dataset",
	Long: `Acquires a session, enumerates hiring companies and fetches each one
that the checkpoint does not mark as succeeded. Progress is recorded per
company, so an interrupted harvest resumes where it stopped.

The records stored so far are exported as the companies and jobs artifacts
of the run, also after an interruption.

Examples:
  # New run
  harvest

  # Resume into an existing run id
  harvest --run 20261016T101500Z-1a2b3c4d`,
	RunE: runHarvest,
}

func init() {
	harvestCmd.Flags().StringVar(&harvestRunID, "run", "", "Run id to write (default: a new id)")
	RootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.pipeline(false)
	if err != nil {
		return err
	}

	report, err := svc.Harvest(ctx, harvestRunID)
	printHarvestReport(a.log, report)
	return err
}

// printHarvestReport logs the harvest outcome and a sample of failed keys.
func printHarvestReport(l *zap.Logger, r *pipeline.HarvestReport) {
	if r == nil {
		return
	}
	s := r.Summary
	l.Info("Harvest report",
		zap.String("run_id", r.RunID),
		zap.Int("keys", r.Keys),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
		zap.Int("pending", s.Pending),
		zap.Int("attempts", s.Attempts),
		zap.Bool("interrupted", s.Interrupted),
		zap.Int("companies", r.Parents),
		zap.Int("jobs", r.Children),
	)

	maxShow := min(len(s.FailedKeys), 5)
	for _, k := range s.FailedKeys[:maxShow] {
		l.Info("Failed key", zap.String("key", string(k)))
	}
	if len(s.FailedKeys) > maxShow {
		l.Info("Additional failed keys not shown", zap.Int("count", len(s.FailedKeys)-maxShow))
	}
}
