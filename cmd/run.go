package cmd

import (
	"listing-harvester/feature/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runRunID     string
	runMode      string
	runBatchSize int
	runSkipSync  bool
)

// runCmd executes every stage under one run id.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest, reconcile and sync in one go",
	Long: `Runs harvest, reconcile and sync under a single run id.

Reconcile and sync are skipped when the harvest is interrupted or the
session cannot be acquired. Companies that failed permanently do not stop
the run; they are listed in the harvest report.`,
	RunE: runAll,
}

func init() {
	runCmd.Flags().StringVar(&runRunID, "run", "", "Run id to write (default: a new id)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Sync mode: truncate or upsert (default: configured mode)")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "Records per transaction (default: configured size)")
	runCmd.Flags().BoolVar(&runSkipSync, "skip-sync", false, "Stop after reconcile")
	RootCmd.AddCommand(runCmd)
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.pipeline(!runSkipSync)
	if err != nil {
		return err
	}

	report, err := svc.Run(ctx, runRunID, pipeline.SyncOverrides{Mode: runMode, BatchSize: runBatchSize})
	printHarvestReport(a.log, report.Harvest)
	if report.Reconcile != nil {
		printReconcileReport(a.log, report.Reconcile)
	}
	printSyncReport(a.log, report.Sync)
	if err != nil {
		return err
	}
	a.log.Info("Run finished", zap.String("run_id", report.RunID))
	return nil
}
