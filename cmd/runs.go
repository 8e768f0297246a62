package cmd

import (
	"fmt"
	"os"

	"listing-harvester/core/dataset"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runsJSON bool
	runsKeep int
)

// runsCmd is the parent command for run artifact operations.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List or prune run artifacts",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE:  runRunsList,
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest runs",
	Long: `Deletes the artifacts of every run except the newest --keep runs.

Examples:
  runs prune --keep 5 --yes`,
	RunE: runRunsPrune,
}

func init() {
	runsListCmd.Flags().BoolVar(&runsJSON, "json", false, "Print manifests as JSON")
	runsPruneCmd.Flags().IntVar(&runsKeep, "keep", 10, "Number of newest runs to keep")
	runsPruneCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")

	runsCmd.AddCommand(runsListCmd, runsPruneCmd)
	RootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ids, err := a.artifacts.Runs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	manifests := make([]dataset.Manifest, 0, len(ids))
	for _, id := range ids {
		m, err := a.artifacts.Manifest(ctx, id)
		if err != nil {
			a.log.Warn("Run manifest unreadable", zap.String("run_id", id), zap.Error(err))
			continue
		}
		manifests = append(manifests, m)
	}

	if runsJSON {
		return dataset.EncodeJSON(os.Stdout, manifests)
	}
	for _, m := range manifests {
		a.log.Info("Run",
			zap.String("run_id", m.RunID),
			zap.Time("created_at", m.CreatedAt),
			zap.Int("companies", m.Parents),
			zap.Int("jobs", m.Children),
		)
	}
	if len(manifests) == 0 {
		a.log.Info("No runs found")
	}
	return nil
}

func runRunsPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if runsKeep < 0 {
		return fmt.Errorf("--keep must not be negative")
	}
	if !confirmDestructiveAction() {
		a.log.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	deleted, err := a.artifacts.Prune(ctx, runsKeep)
	for _, id := range deleted {
		a.log.Info("Run deleted", zap.String("run_id", id))
	}
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	a.log.Info("Prune complete", zap.Int("deleted", len(deleted)), zap.Int("kept", runsKeep))
	return nil
}
