package main

import (
	"context"
	"fmt"

	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/pipeline"
	"github.com/couchcryptid/storm-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var (
	cleanupRecords   bool
	cleanupArtifacts bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge expired alerts and stale map images once",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupRecords, "records", true, "delete expired alert records")
	cleanupCmd.Flags().BoolVar(&cleanupArtifacts, "artifacts", true, "delete map images past retention")
}

type cleanupResult struct {
	Records   int64 `json:"records"`
	Artifacts int   `json:"artifacts"`
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg)
	ctx := cmd.Context()

	st, err := store.Open(ctx, store.Options{
		Backend:         cfg.StoreBackend,
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		MongoCollection: cfg.MongoCollection,
		RedisURI:        cfg.RedisURI,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		_ = st.Close(closeCtx)
	}()

	h := pipeline.NewHousekeeper(st, cfg.ImageSavePath, cfg.ImageRetention, clockwork.NewRealClock(), logger, observability.NewMetrics())

	var res cleanupResult
	if cleanupRecords {
		if res.Records, err = h.CleanRecords(ctx); err != nil {
			return err
		}
	}
	if cleanupArtifacts {
		if res.Artifacts, err = h.CleanArtifacts(ctx); err != nil {
			return err
		}
	}

	if output == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired record(s), %d image(s)\n", res.Records, res.Artifacts)
	return nil
}
