package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/adapter/counties"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/discord"
	httpadapter "github.com/couchcryptid/storm-alert-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/nws"
	"github.com/couchcryptid/storm-alert-service/internal/config"
	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/pipeline"
	"github.com/couchcryptid/storm-alert-service/internal/scheduler"
	"github.com/couchcryptid/storm-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	rules, err := domain.CompileRuleSet(cfg.Rules.Filters)
	if err != nil {
		logger.Error("invalid filter rules", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Backend:         cfg.StoreBackend,
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		MongoCollection: cfg.MongoCollection,
		RedisURI:        cfg.RedisURI,
	})
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "backend", cfg.StoreBackend)

	feed := nws.NewClient(nws.Options{
		BaseURL:   cfg.NWSBaseURL,
		UserAgent: cfg.NWSUserAgent,
		From:      cfg.NWSFrom,
		Severity:  cfg.NWSSeverity,
		Timeout:   cfg.NWSTimeout,
		RetryMax:  cfg.NWSRetryMax,
	}, logger)

	dispatcher := discord.NewDispatcher(discord.Options{
		WebhookURL:    cfg.WebhookURL,
		DumpDir:       cfg.FailureDumpPath,
		RetryWait:     cfg.WebhookRetryWait,
		RatePerMinute: cfg.WebhookRatePerMinute,
		Payload: domain.PayloadOptions{
			ImageBaseURL:       cfg.ImageServerURL,
			NoInstructionColor: cfg.Rules.NoInstructionColor,
		},
	}, logger)

	var opts []pipeline.Option
	if cfg.CountiesFile != "" {
		lookup, err := counties.LoadFile(cfg.CountiesFile, counties.DefaultProperty)
		if err != nil {
			logger.Error("failed to load counties", "file", cfg.CountiesFile, "error", err)
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithCounties(lookup))
		logger.Info("county boundaries loaded", "counties", lookup.Len())
	} else {
		logger.Warn("COUNTIES_FILE not set, county-coded alerts will be skipped")
	}

	if cfg.MapboxEnabled {
		renderer := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxStyle, cfg.ImageSavePath, cfg.MapboxTimeout, metrics, logger)
		opts = append(opts, pipeline.WithRenderer(renderer))
		logger.Info("map rendering enabled", "style", cfg.MapboxStyle, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("map rendering disabled")
	}

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info("notification events enabled", "topic", cfg.KafkaTopic)
	}

	poller := pipeline.NewPoller(feed, st, dispatcher, pipeline.PollerConfig{
		Rules:        rules,
		Colors:       cfg.Rules.Colors,
		ExpiredColor: cfg.Rules.ExpiredColor,
		DefaultColor: cfg.Rules.DefaultColor,
		ZoomFactor:   cfg.MapZoomFactor,
	}, logger, metrics, opts...)
	housekeeper := pipeline.NewHousekeeper(st, cfg.ImageSavePath, cfg.ImageRetention, clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:  cfg.HTTPAddr,
		Ready: poller,
		Status: func(ctx context.Context) (any, error) {
			return poller.Status(ctx)
		},
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Prime, clean once, then hand over to the schedule.
	g.Go(func() error {
		if n, err := poller.Prime(gctx); err != nil {
			logger.Warn("initial population failed", "error", err)
		} else {
			logger.Info("initial population complete", "inserted", n)
		}
		if _, err := housekeeper.CleanRecords(gctx); err != nil {
			logger.Error("initial record cleanup failed", "error", err)
		}
		if _, err := housekeeper.CleanArtifacts(gctx); err != nil {
			logger.Error("initial artifact cleanup failed", "error", err)
		}

		sched := scheduler.New(gctx, logger, metrics)
		jobs := []struct {
			name     string
			interval time.Duration
			job      scheduler.Job
		}{
			{"poll", cfg.PollInterval, func(ctx context.Context) { poller.Poll(ctx) }},
			{"clean_records", cfg.RecordCleanupInterval, func(ctx context.Context) {
				if _, err := housekeeper.CleanRecords(ctx); err != nil {
					logger.Error("record cleanup failed", "error", err)
				}
			}},
			{"clean_artifacts", cfg.ArtifactCleanupInterval, func(ctx context.Context) {
				if _, err := housekeeper.CleanArtifacts(ctx); err != nil {
					logger.Error("artifact cleanup failed", "error", err)
				}
			}},
		}
		for _, j := range jobs {
			if err := sched.Every(j.name, j.interval, j.job); err != nil {
				return err
			}
		}
		sched.Start()

		<-gctx.Done()
		logger.Info("scheduler stopping")
		select {
		case <-sched.Stop().Done():
		case <-time.After(cfg.ShutdownTimeout):
			logger.Warn("in-flight jobs still running at shutdown timeout")
		}
		return nil
	})

	// Drain HTTP on shutdown.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := st.Close(closeCtx); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
