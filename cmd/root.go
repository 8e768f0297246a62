package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"listing-harvester/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "listing-harvester",
	Short: "Resumable harvester of hiring companies and job postings",
	Long: `listing-harvester fetches hiring companies and their job postings,
keeps per-company progress in a checkpoint so interrupted runs resume,
joins jobs to companies and loads the result into a relational database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Use the application's standard logger for error reporting
		// We default to console format to match user expectations (CLI tool)
		// We use "debug" level configuration to get ISO8601 timestamps (DevConfig) instead of Epoch (ProdConfig)
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			// Absolute fallback if logger creation fails (rare)
			fmt.Println(err)
		}
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM. A harvest drains its
// in-flight fetches before returning.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
