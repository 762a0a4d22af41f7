// Package main is the schedbot CLI: the bot daemon plus one-shot
// maintenance commands over the same config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "schedbot",
		Short:         "Telegram bot that keeps event staff up to date with their schedule",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to config file (YAML or JSON)")

	rootCmd.AddCommand(
		newRunCmd(),
		newSyncCmd(),
		newScheduleCmd(),
		newExportCmd(),
	)
	return rootCmd
}
