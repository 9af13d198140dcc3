package main

import (
	"fmt"

	"github.com/couchcryptid/storm-alert-service/internal/adapter/discord"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/spf13/cobra"
)

var replayDryRun bool

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-send failed webhook payloads",
	Long: `Replay posts every failure dump in FAILURE_DUMP_PATH to DISCORD_WEBHOOK.
Dumps that are delivered are removed; the rest stay for the next attempt.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "list dumps without sending")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg)

	d := discord.NewDispatcher(discord.Options{
		WebhookURL:    cfg.WebhookURL,
		DumpDir:       cfg.FailureDumpPath,
		RetryWait:     cfg.WebhookRetryWait,
		RatePerMinute: cfg.WebhookRatePerMinute,
	}, logger)

	out := cmd.OutOrStdout()
	if replayDryRun {
		dumps, err := d.Dumps()
		if err != nil {
			return err
		}
		for _, path := range dumps {
			fmt.Fprintln(out, path)
		}
		fmt.Fprintf(out, "%d dump(s) pending\n", len(dumps))
		return nil
	}

	res, err := d.Replay(cmd.Context())
	if err != nil {
		return err
	}
	if output == "json" {
		return writeJSON(out, res)
	}
	for _, path := range res.Delivered {
		fmt.Fprintf(out, "delivered  %s\n", path)
	}
	for _, path := range res.Failed {
		fmt.Fprintf(out, "failed     %s\n", path)
	}
	fmt.Fprintf(out, "%d delivered, %d failed\n", len(res.Delivered), len(res.Failed))
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d dump(s) could not be delivered", len(res.Failed))
	}
	return nil
}
