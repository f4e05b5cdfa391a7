package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gatekeep-go/internal/logs"
)

var (
	logLevel string
	logDir   string

	version = "v0.1.0" // This will be injected by -ldflags during build
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "gatekeep",
		Short:   "Gatekeep - workflow requirement gates for coding agents",
		Long: `Gatekeep enforces configured workflow requirements on a coding agent
by evaluating the agent's hook events against durable per-branch state.

The hook subcommand is wired into the agent's hook configuration; the
remaining subcommands manage requirement state from the terminal.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")

	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(satisfyCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// commandLogger builds the console logger for management commands. A
// setup failure degrades to a no-op logger rather than killing the
// command.
func commandLogger() *zap.Logger {
	logger, err := logs.SetupCommandLogger(logLevel)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
