package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
)

// DefaultRetention is how long rendered images are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Housekeeper removes expired store records and old rendered images.
type Housekeeper struct {
	store     store.AlertStore
	imageDir  string
	retention time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewHousekeeper creates a Housekeeper. A zero retention uses DefaultRetention.
func NewHousekeeper(s store.AlertStore, imageDir string, retention time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Housekeeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Housekeeper{
		store:     s,
		imageDir:  imageDir,
		retention: retention,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CleanRecords deletes records whose expiry is before now.
func (h *Housekeeper) CleanRecords(ctx context.Context) (int64, error) {
	n, err := h.store.DeleteExpired(ctx, h.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("clean records: %w", err)
	}
	h.metrics.RecordsCleaned.Add(float64(n))
	if count, err := h.store.Count(ctx); err == nil {
		h.metrics.StoredAlerts.Set(float64(count))
	}
	if n > 0 {
		h.logger.Info("expired records removed", "count", n)
	}
	return n, nil
}

// CleanArtifacts deletes *.png files in the image directory last modified
// more than the retention window ago. A missing directory is not an error.
func (h *Housekeeper) CleanArtifacts(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(h.imageDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("clean artifacts: %w", err)
	}

	cutoff := h.clock.Now().Add(-h.retention)
	var removed int
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ".png" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(h.imageDir, e.Name())
		if err := os.Remove(path); err != nil {
			h.logger.Warn("remove artifact failed", "path", path, "error", err)
			continue
		}
		removed++
	}

	h.metrics.ArtifactsCleaned.Add(float64(removed))
	if removed > 0 {
		h.logger.Info("old artifacts removed", "count", removed)
	}
	return removed, nil
}
