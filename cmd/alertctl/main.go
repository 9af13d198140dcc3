// Package main is the operator CLI for the storm alert service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-alert-service/internal/config"
	"github.com/spf13/cobra"
)

var output string

var rootCmd = &cobra.Command{
	Use:   "alertctl",
	Short: "Operator tools for the storm alert service",
	Long: `alertctl runs one-off maintenance tasks against the same environment
as alertd.

Examples:
  # Re-send webhook payloads that failed delivery
  alertctl replay

  # Purge expired alerts and stale map images once
  alertctl cleanup

  # Show the map extent derived for each active alert
  alertctl bounds --counties counties.geojson`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
