// Package pipeline runs the poll cycle and the housekeeping jobs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/store"
)

// FeedSource returns the current set of active alerts.
type FeedSource interface {
	Active(ctx context.Context) ([]domain.Feature, error)
}

// Notifier delivers one alert and returns the final HTTP status.
type Notifier interface {
	Deliver(ctx context.Context, alert domain.Alert, image string, color int) (int, error)
}

// EventPublisher records a notification for downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.NotificationEvent) error
}

// PollerConfig holds the per-deployment policy of the poll cycle.
type PollerConfig struct {
	Rules        domain.RuleSet
	Colors       domain.ColorTable
	ExpiredColor int
	DefaultColor int
	ZoomFactor   float64
}

// Poller runs one fetch, dedup, filter, render and deliver cycle per call.
// Concurrent calls are safe: the store's unique insert decides which run
// handles a given alert.
type Poller struct {
	feed      FeedSource
	store     store.AlertStore
	counties  domain.CountyLookup
	renderer  domain.Renderer
	notifier  Notifier
	publisher EventPublisher
	cfg       PollerConfig
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu     sync.Mutex
	status Status
}

// Status is a snapshot of poller progress.
type Status struct {
	Ready         bool      `json:"ready"`
	LastPoll      time.Time `json:"last_poll,omitzero"`
	LastFetched   int       `json:"last_fetched"`
	LastProcessed int       `json:"last_processed"`
	StoredAlerts  int64     `json:"stored_alerts"`
}

// Option configures optional Poller collaborators.
type Option func(*Poller)

// WithRenderer enables map rendering. Without it notifications carry no image.
func WithRenderer(r domain.Renderer) Option {
	return func(p *Poller) { p.renderer = r }
}

// WithCounties sets the lookup used for county-coded alerts.
func WithCounties(c domain.CountyLookup) Option {
	return func(p *Poller) { p.counties = c }
}

// WithPublisher enables the notification event stream.
func WithPublisher(pub EventPublisher) Option {
	return func(p *Poller) { p.publisher = pub }
}

// NewPoller creates a Poller.
func NewPoller(feed FeedSource, s store.AlertStore, n Notifier, cfg PollerConfig, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Poller {
	if cfg.ZoomFactor == 0 {
		cfg.ZoomFactor = domain.DefaultZoom
	}
	p := &Poller{
		feed:     feed,
		store:    s,
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once Prime or Poll has fetched the feed.
func (p *Poller) CheckReadiness(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.status.Ready {
		return errors.New("feed not fetched yet")
	}
	return nil
}

// Status returns the latest poll snapshot along with the current store size.
func (p *Poller) Status(ctx context.Context) (Status, error) {
	n, err := p.store.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.StoredAlerts = n
	return s, nil
}

// Prime stores every current alert without notifying, so a fresh store does
// not announce alerts that were already active before start-up.
func (p *Poller) Prime(ctx context.Context) (int, error) {
	features, err := p.feed.Active(ctx)
	if err != nil {
		p.metrics.FeedErrors.Inc()
		return 0, err
	}

	var inserted int
	for _, f := range features {
		res, err := p.store.TryInsert(ctx, f)
		if err != nil {
			p.logger.Error("prime insert failed", "alert_id", f.ID, "error", err)
			continue
		}
		p.metrics.Inserts.WithLabelValues(res.Outcome.String()).Inc()
		if res.Outcome == store.Inserted {
			inserted++
		}
	}
	p.mu.Lock()
	p.status.Ready = true
	p.mu.Unlock()

	p.logger.Info("store primed", "fetched", len(features), "inserted", inserted)
	return inserted, nil
}

// Poll runs one cycle and returns the number of new alerts processed,
// including those the filter rejected. Feed failures yield zero.
func (p *Poller) Poll(ctx context.Context) int {
	start := time.Now()
	defer func() { p.metrics.PollDuration.Observe(time.Since(start).Seconds()) }()

	features, err := p.feed.Active(ctx)
	if err != nil {
		p.logger.Error("fetch alerts failed", "error", err)
		p.metrics.FeedErrors.Inc()
		return 0
	}
	p.metrics.AlertsFetched.Add(float64(len(features)))

	var processed int
	for _, f := range features {
		res, err := p.store.TryInsert(ctx, f)
		if err != nil {
			p.logger.Error("store insert failed", "alert_id", f.ID, "error", err)
			continue
		}
		p.metrics.Inserts.WithLabelValues(res.Outcome.String()).Inc()

		switch res.Outcome {
		case store.Rejected:
			p.logger.Debug("alert rejected", "alert_id", f.ID, "reason", res.Reason)
		case store.Inserted:
			if p.handle(ctx, res.Alert) {
				processed++
				p.metrics.Processed.Inc()
			}
		}
	}

	p.metrics.Polls.Inc()
	p.mu.Lock()
	p.status.Ready = true
	p.status.LastPoll = domain.Now()
	p.status.LastFetched = len(features)
	p.status.LastProcessed = processed
	p.mu.Unlock()

	if processed > 0 {
		p.logger.Info("poll complete", "fetched", len(features), "processed", processed)
	}
	return processed
}

// handle takes a newly stored alert through filter, bounds, render and
// delivery. It reports whether the alert counts as processed.
func (p *Poller) handle(ctx context.Context, alert domain.Alert) bool {
	log := p.logger.With("alert_id", alert.ID, "event", alert.Event)

	if !p.cfg.Rules.Matches(alert) {
		log.Debug("alert filtered")
		p.metrics.Filtered.Inc()
		return true
	}

	bounds := domain.DeriveBounds(alert, p.counties)
	if !bounds.Valid() {
		log.Warn("no bounds for alert, skipping", "same_codes", alert.SAMECodes)
		p.metrics.Skipped.WithLabelValues("invalid_bounds").Inc()
		return false
	}
	bounds = bounds.Zoom(p.cfg.ZoomFactor)

	color := domain.ResolveColor(alert, p.cfg.Colors, p.cfg.ExpiredColor, p.cfg.DefaultColor)

	var image string
	if p.renderer != nil {
		var err error
		image, err = p.renderer.Render(ctx, domain.RenderRequest{
			Alert:  alert,
			Bounds: bounds,
			Color:  color,
			Areas:  domain.CountyRings(alert, p.counties),
		})
		if err != nil {
			log.Warn("render failed, skipping", "error", err)
			p.metrics.Skipped.WithLabelValues("render_error").Inc()
			return false
		}
	}

	status, err := p.notifier.Deliver(ctx, alert, image, color)
	if err != nil {
		log.Error("notification failed", "status", status, "error", err)
		p.metrics.Notifications.WithLabelValues("failure").Inc()
	} else {
		log.Info("notification sent", "status", status, "image", image)
		p.metrics.Notifications.WithLabelValues("success").Inc()
	}

	p.publish(ctx, domain.NotificationEvent{
		AlertID:    alert.ID,
		Event:      alert.Event,
		Severity:   alert.Severity,
		AreaDesc:   alert.AreaDesc,
		Bounds:     bounds,
		Image:      image,
		Color:      color,
		StatusCode: status,
		Expires:    alert.Expires,
		NotifiedAt: domain.Now(),
	})
	return true
}

func (p *Poller) publish(ctx context.Context, event domain.NotificationEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publish notification event failed", "alert_id", event.AlertID, "error", err)
		p.metrics.PublishErrors.Inc()
		return
	}
	p.metrics.Published.Inc()
}
