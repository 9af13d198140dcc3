package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/adapter/discord"
	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/couchcryptid/storm-alert-service/internal/pipeline"
	"github.com/couchcryptid/storm-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

// --- fakes ---

type fakeFeed struct {
	mu       sync.Mutex
	features []domain.Feature
	err      error
}

func (f *fakeFeed) Active(_ context.Context) ([]domain.Feature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.features, f.err
}

type delivery struct {
	alert domain.Alert
	image string
	color int
}

type fakeNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	status     int
	err        error
}

func (n *fakeNotifier) Deliver(_ context.Context, alert domain.Alert, image string, color int) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, delivery{alert: alert, image: image, color: color})
	if n.status == 0 {
		return http.StatusNoContent, n.err
	}
	return n.status, n.err
}

type fakeRenderer struct {
	requests []domain.RenderRequest
	err      error
}

func (r *fakeRenderer) Render(_ context.Context, req domain.RenderRequest) (string, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return "", r.err
	}
	return "rendered.png", nil
}

type fakePublisher struct {
	events []domain.NotificationEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e domain.NotificationEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type countyMap map[string]domain.Bounds

func (m countyMap) CountyBounds(fips string) (domain.Bounds, bool) {
	b, ok := m[fips]
	return b, ok
}

// CountyRings outlines each county as its bounding rectangle.
func (m countyMap) CountyRings(fips string) ([][]domain.Coordinate, bool) {
	b, ok := m[fips]
	if !ok {
		return nil, false
	}
	return [][]domain.Coordinate{{
		{b.West, b.South}, {b.East, b.South}, {b.East, b.North}, {b.West, b.North}, {b.West, b.South},
	}}, true
}

// --- fixtures ---

func polygonFeature(id, event string) domain.Feature {
	ts := testNow.Add(-5 * time.Minute).Format(time.RFC3339)
	instruction := "Take shelter now."
	return domain.Feature{
		ID: id,
		Geometry: &domain.FeatureGeometry{
			Type:        "Polygon",
			Coordinates: json.RawMessage(`[[[-97.9,30.1],[-97.5,30.1],[-97.5,30.4],[-97.9,30.4],[-97.9,30.1]]]`),
		},
		Properties: domain.FeatureProperties{
			Event:       event,
			MessageType: "Alert",
			Severity:    "Extreme",
			AreaDesc:    "Travis, TX",
			Headline:    event + " issued June 15 at 1:25PM CDT",
			Description: "At 125 PM CDT, a confirmed tornado was located\nnear Austin.",
			Instruction: &instruction,
			Sent:        ts,
			Effective:   ts,
			Onset:       ts,
			Expires:     testNow.Add(45 * time.Minute).Format(time.RFC3339),
		},
	}
}

func countyFeature(id, event string, same ...string) domain.Feature {
	f := polygonFeature(id, event)
	f.Geometry = nil
	f.Properties.Geocode.SAME = same
	return f
}

type harness struct {
	feed      *fakeFeed
	store     *store.Memory
	notifier  *fakeNotifier
	renderer  *fakeRenderer
	publisher *fakePublisher
	metrics   *observability.Metrics
	poller    *pipeline.Poller
}

func newHarness(t *testing.T, rules []domain.RuleConfig) *harness {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(testNow))
	t.Cleanup(func() { domain.SetClock(nil) })

	rs, err := domain.CompileRuleSet(rules)
	require.NoError(t, err)

	h := &harness{
		feed:      &fakeFeed{},
		store:     store.NewMemory(),
		notifier:  &fakeNotifier{},
		renderer:  &fakeRenderer{},
		publisher: &fakePublisher{},
		metrics:   observability.NewMetricsForTesting(),
	}
	counties := countyMap{"48453": {North: 30.63, South: 30.02, East: -97.37, West: -98.17}}
	h.poller = pipeline.NewPoller(h.feed, h.store, h.notifier, pipeline.PollerConfig{
		Rules:        rs,
		Colors:       domain.DefaultColorTable(),
		ExpiredColor: domain.ColorExpired,
		DefaultColor: domain.ColorDefault,
		ZoomFactor:   domain.DefaultZoom,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics,
		pipeline.WithRenderer(h.renderer),
		pipeline.WithCounties(counties),
		pipeline.WithPublisher(h.publisher),
	)
	return h
}

func defaultRules() []domain.RuleConfig {
	return []domain.RuleConfig{{"event": {"Tornado", "Thunderstorm", "Flash Flood"}}}
}

func storeCount(t *testing.T, s store.AlertStore) int64 {
	t.Helper()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	return n
}

// --- tests ---

func TestPoll_TornadoWarningEndToEnd(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{polygonFeature("urn:tor", "Tornado Warning")}

	processed := h.poller.Poll(context.Background())

	assert.Equal(t, 1, processed)
	assert.Equal(t, int64(1), storeCount(t, h.store))

	require.Len(t, h.renderer.requests, 1)
	req := h.renderer.requests[0]
	assert.True(t, req.Bounds.Valid())
	assert.Nil(t, req.Areas)
	// Polygon extent zoomed out by 0.7 about its center.
	lon, lat := req.Bounds.Center()
	assert.InDelta(t, -97.7, lon, 1e-9)
	assert.InDelta(t, 30.25, lat, 1e-9)
	assert.InDelta(t, 0.4/0.7, req.Bounds.East-req.Bounds.West, 1e-9)
	assert.Equal(t, 0xff00ff, req.Color)

	require.Len(t, h.notifier.deliveries, 1)
	d := h.notifier.deliveries[0]
	assert.Equal(t, "TORNADO WARNING", domain.Title(d.alert))
	assert.Equal(t, "rendered.png", d.image)
	assert.Equal(t, 0xff00ff, d.color)

	require.Len(t, h.publisher.events, 1)
	ev := h.publisher.events[0]
	assert.Equal(t, "urn:tor", ev.AlertID)
	assert.Equal(t, http.StatusNoContent, ev.StatusCode)
	assert.Equal(t, testNow, ev.NotifiedAt)

	assert.NoError(t, h.poller.CheckReadiness(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("success")))
}

func TestPoll_DuplicateIsNotRenotified(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{polygonFeature("urn:tor", "Tornado Warning")}

	assert.Equal(t, 1, h.poller.Poll(context.Background()))
	assert.Equal(t, 0, h.poller.Poll(context.Background()))

	assert.Len(t, h.notifier.deliveries, 1)
	assert.Equal(t, int64(1), storeCount(t, h.store))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Inserts.WithLabelValues("already_exists")))
}

func TestPoll_FilteredAlertCountsButIsNotDelivered(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{
		polygonFeature("urn:heat", "Excessive Heat Warning"),
		polygonFeature("urn:ffw", "Flash Flood Warning"),
	}

	processed := h.poller.Poll(context.Background())

	assert.Equal(t, 2, processed)
	require.Len(t, h.notifier.deliveries, 1)
	assert.Equal(t, "Flash Flood Warning", h.notifier.deliveries[0].alert.Event)
	assert.Equal(t, int64(2), storeCount(t, h.store))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Filtered))
}

func TestPoll_CountyAlertUsesCountyExtent(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{countyFeature("urn:svr", "Severe Thunderstorm Watch", "048453")}

	assert.Equal(t, 1, h.poller.Poll(context.Background()))

	require.Len(t, h.renderer.requests, 1)
	req := h.renderer.requests[0]
	lon, lat := req.Bounds.Center()
	assert.InDelta(t, -97.77, lon, 1e-9)
	assert.InDelta(t, 30.325, lat, 1e-9)
	assert.Equal(t, 0xe8e800, h.notifier.deliveries[0].color)

	// The county outline travels with the request so the map can fill it.
	require.Len(t, req.Areas, 1)
	assert.Equal(t, domain.Coordinate{-98.17, 30.02}, req.Areas[0][0])
	assert.Equal(t, domain.Coordinate{-97.37, 30.63}, req.Areas[0][2])
}

func TestPoll_InvalidBoundsSkipsAlert(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{countyFeature("urn:unknown", "Tornado Watch", "099999")}

	processed := h.poller.Poll(context.Background())

	assert.Equal(t, 0, processed)
	assert.Empty(t, h.renderer.requests)
	assert.Empty(t, h.notifier.deliveries)
	// Still stored, so it is not retried next cycle.
	assert.Equal(t, int64(1), storeCount(t, h.store))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Skipped.WithLabelValues("invalid_bounds")))
}

func TestPoll_RenderFailureSkipsAlert(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.renderer.err = errors.New("mapbox down")
	h.feed.features = []domain.Feature{polygonFeature("urn:tor", "Tornado Warning")}

	assert.Equal(t, 0, h.poller.Poll(context.Background()))
	assert.Empty(t, h.notifier.deliveries)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Skipped.WithLabelValues("render_error")))
}

func TestPoll_DeliveryFailureStillCounts(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.notifier.status = http.StatusInternalServerError
	h.notifier.err = errors.New("deliver webhook: unexpected status 500")
	h.feed.features = []domain.Feature{polygonFeature("urn:tor", "Tornado Warning")}

	assert.Equal(t, 1, h.poller.Poll(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("failure")))
	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, http.StatusInternalServerError, h.publisher.events[0].StatusCode)
}

func TestPoll_FeedErrorYieldsZero(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.err = errors.New("connection refused")

	assert.Equal(t, 0, h.poller.Poll(context.Background()))
	assert.Equal(t, int64(0), storeCount(t, h.store))
	assert.Error(t, h.poller.CheckReadiness(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FeedErrors))
}

func TestPoll_ExpiredAndMalformedAreRejected(t *testing.T) {
	h := newHarness(t, defaultRules())
	expired := polygonFeature("urn:old", "Tornado Warning")
	expired.Properties.Expires = testNow.Add(-time.Minute).Format(time.RFC3339)
	malformed := polygonFeature("urn:bad", "Tornado Warning")
	malformed.Properties.Sent = "yesterday"
	h.feed.features = []domain.Feature{expired, malformed}

	assert.Equal(t, 0, h.poller.Poll(context.Background()))
	assert.Empty(t, h.notifier.deliveries)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.Inserts.WithLabelValues("rejected")))
}

func TestPoll_NoRendererDeliversWithoutImage(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(testNow))
	t.Cleanup(func() { domain.SetClock(nil) })

	feed := &fakeFeed{features: []domain.Feature{polygonFeature("urn:tor", "Tornado Warning")}}
	notifier := &fakeNotifier{}
	p := pipeline.NewPoller(feed, store.NewMemory(), notifier, pipeline.PollerConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())

	assert.Equal(t, 1, p.Poll(context.Background()))
	require.Len(t, notifier.deliveries, 1)
	assert.Empty(t, notifier.deliveries[0].image)
}

func TestPoll_ConcurrentRunsNotifyOnce(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{
		polygonFeature("urn:a", "Tornado Warning"),
		polygonFeature("urn:b", "Flash Flood Warning"),
	}

	p := pipeline.NewPoller(h.feed, h.store, h.notifier, pipeline.PollerConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Poll(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, h.notifier.deliveries, 2)
}

func TestPrime_StoresWithoutNotifying(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{
		polygonFeature("urn:a", "Tornado Warning"),
		polygonFeature("urn:b", "Flash Flood Warning"),
	}

	n, err := h.poller.Prime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, h.notifier.deliveries)
	assert.NoError(t, h.poller.CheckReadiness(context.Background()))

	assert.Equal(t, 0, h.poller.Poll(context.Background()))
	assert.Empty(t, h.notifier.deliveries)
}

func TestPrime_FeedError(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.err = errors.New("timeout")

	_, err := h.poller.Prime(context.Background())
	require.Error(t, err)
	assert.Error(t, h.poller.CheckReadiness(context.Background()))
}

func TestStatus(t *testing.T) {
	h := newHarness(t, defaultRules())
	h.feed.features = []domain.Feature{polygonFeature("urn:tor", "Tornado Warning")}
	h.poller.Poll(context.Background())

	s, err := h.poller.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Ready)
	assert.Equal(t, testNow, s.LastPoll)
	assert.Equal(t, 1, s.LastFetched)
	assert.Equal(t, 1, s.LastProcessed)
	assert.Equal(t, int64(1), s.StoredAlerts)
}

func TestPoll_WebhookPayloadEndToEnd(t *testing.T) {
	var got domain.WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := newHarness(t, defaultRules())
	noInstruction := domain.ColorNoInstruction
	dispatcher := discord.NewDispatcher(discord.Options{
		WebhookURL: srv.URL,
		DumpDir:    t.TempDir(),
		RetryWait:  time.Millisecond,
		Payload: domain.PayloadOptions{
			ImageBaseURL:       "https://img.example.com",
			NoInstructionColor: &noInstruction,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rs, err := domain.CompileRuleSet(defaultRules())
	require.NoError(t, err)
	p := pipeline.NewPoller(h.feed, h.store, dispatcher, pipeline.PollerConfig{
		Rules:        rs,
		Colors:       domain.DefaultColorTable(),
		ExpiredColor: domain.ColorExpired,
		DefaultColor: domain.ColorDefault,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics, pipeline.WithRenderer(h.renderer))

	h.feed.features = []domain.Feature{polygonFeature("urn:tor", "Tornado Warning")}
	assert.Equal(t, 1, p.Poll(context.Background()))

	require.Len(t, got.Embeds, 1)
	e := got.Embeds[0]
	assert.Equal(t, "TORNADO WARNING", e.Title)
	assert.Equal(t, "urn:tor", e.URL)
	assert.Equal(t, 0xff00ff, e.Color)
	assert.Equal(t, "https://img.example.com/rendered.png", e.Image.URL)
	assert.Equal(t, "National Weather Service", e.Author.Name)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "Travis, TX", e.Fields[0].Value)
}
