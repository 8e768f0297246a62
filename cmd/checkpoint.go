package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/dataset"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	checkpointStatus string
	checkpointJSON   bool
	yesConfirm       bool
)

// checkpointCmd is the parent command for checkpoint operations.
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or clear harvest progress",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show per-status counts and entries",
	Long: `Shows how many companies are pending, succeeded or failed.

Examples:
  checkpoint show
  checkpoint show --status failed-permanent
  checkpoint show --json`,
	RunE: runCheckpointShow,
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget all progress so the next harvest fetches everything",
	RunE:  runCheckpointReset,
}

func init() {
	checkpointShowCmd.Flags().StringVar(&checkpointStatus, "status", "", "Only list entries with this status")
	checkpointShowCmd.Flags().BoolVar(&checkpointJSON, "json", false, "Print entries as JSON")
	checkpointResetCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")

	checkpointCmd.AddCommand(checkpointShowCmd, checkpointResetCmd)
	RootCmd.AddCommand(checkpointCmd)
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	status := checkpoint.Status(checkpointStatus)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", checkpointStatus)
	}

	entries, err := a.checkpoint.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var list []checkpoint.Entry
	for _, e := range entries {
		if status == "" || e.Status == status {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })

	if checkpointJSON {
		return dataset.EncodeJSON(os.Stdout, list)
	}

	counts := checkpoint.Counts(entries)
	a.log.Info("Checkpoint",
		zap.String("backend", a.cfg.Checkpoint.Backend),
		zap.Int("total", len(entries)),
		zap.Int("pending", counts[checkpoint.StatusPending]),
		zap.Int("succeeded", counts[checkpoint.StatusSucceeded]),
		zap.Int("failed", counts[checkpoint.StatusFailed]),
	)
	if status != "" {
		for _, e := range list {
			a.log.Info("Entry",
				zap.String("key", string(e.Key)),
				zap.Int("attempts", e.Attempts),
				zap.Time("last_attempt", e.LastAttempt),
			)
		}
	}
	return nil
}

func runCheckpointReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, ok := a.checkpoint.(checkpoint.Resetter)
	if !ok {
		return fmt.Errorf("checkpoint backend %q cannot be reset", a.cfg.Checkpoint.Backend)
	}
	if !confirmDestructiveAction() {
		a.log.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}
	if err := r.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	a.log.Info("Checkpoint reset", zap.String("backend", a.cfg.Checkpoint.Backend))
	return nil
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm destructive actions: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
