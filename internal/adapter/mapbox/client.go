// Package mapbox renders alert maps with the Mapbox Static Images API.
package mapbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	// Images are 16:9; 1280 is the largest width the API serves.
	imageWidth  = 1280
	imageHeight = 720
	aspectRatio = float64(imageWidth) / float64(imageHeight)

	// maxURLLength is the API's request URL limit. Overlays that would
	// exceed it are dropped and only the framed base map is rendered.
	maxURLLength = 8192

	fillOpacity = 0.35
)

// Client implements domain.Renderer.
type Client struct {
	token      string
	style      string
	saveDir    string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox static image renderer that stores images in
// saveDir.
func NewClient(token, style, saveDir string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		style:   style,
		saveDir: saveDir,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/styles/v1",
		metrics: metrics,
		logger:  logger,
	}
}

// Render fetches a map framed on req.Bounds, stretched to 16:9, with the
// alert polygons (or the county outlines of a county-coded alert) filled in
// req.Color. It returns the saved file name.
func (c *Client) Render(ctx context.Context, req domain.RenderRequest) (string, error) {
	if !req.Bounds.Valid() {
		return "", fmt.Errorf("render %s: invalid bounds %s", req.Alert.ID, req.Bounds)
	}
	framed := req.Bounds.SetAspect(aspectRatio)

	start := time.Now()
	data, err := c.fetch(ctx, c.imageURL(req.Alert.ID, overlayRings(req), framed, req.Color))
	c.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.RenderRequests.WithLabelValues("error").Inc()
		return "", err
	}

	name := uuid.NewString() + ".png"
	if err := c.save(name, data); err != nil {
		c.metrics.RenderRequests.WithLabelValues("error").Inc()
		return "", err
	}
	c.metrics.RenderRequests.WithLabelValues("success").Inc()
	c.logger.Debug("map rendered", "alert_id", req.Alert.ID, "image", name, "bounds", framed.String())
	return name, nil
}

// overlayRings picks the shapes to draw: the alert's own polygons, falling
// back to the outlines of the counties it covers.
func overlayRings(req domain.RenderRequest) [][]domain.Coordinate {
	if len(req.Alert.Geometry) > 0 {
		return req.Alert.Geometry
	}
	return req.Areas
}

func (c *Client) imageURL(alertID string, rings [][]domain.Coordinate, b domain.Bounds, color int) string {
	ext := b.Extent()
	bbox := fmt.Sprintf("[%s,%s,%s,%s]",
		formatCoord(ext[0]), formatCoord(ext[2]), formatCoord(ext[1]), formatCoord(ext[3]))
	size := fmt.Sprintf("%dx%d", imageWidth, imageHeight)
	query := "?" + url.Values{"access_token": {c.token}}.Encode()

	base := fmt.Sprintf("%s/%s/static/", c.baseURL, c.style)
	plain := base + bbox + "/" + size + query

	overlay, err := polygonOverlay(rings, color)
	if err != nil || overlay == "" {
		return plain
	}
	withOverlay := base + "geojson(" + url.PathEscape(overlay) + ")/" + bbox + "/" + size + query
	if len(withOverlay) > maxURLLength {
		c.logger.Debug("overlay too large, rendering base map only", "alert_id", alertID, "url_length", len(withOverlay))
		return plain
	}
	return withOverlay
}

// polygonOverlay encodes rings as a simplestyle GeoJSON feature. No rings
// means no overlay.
func polygonOverlay(rings [][]domain.Coordinate, color int) (string, error) {
	if len(rings) == 0 {
		return "", nil
	}

	mp := make(orb.MultiPolygon, 0, len(rings))
	for _, ring := range rings {
		r := make(orb.Ring, len(ring))
		for i, pt := range ring {
			r[i] = orb.Point{pt.Lon(), pt.Lat()}
		}
		mp = append(mp, orb.Polygon{r})
	}

	hex := fmt.Sprintf("#%06x", color&0xffffff)
	f := geojson.NewFeature(mp)
	f.Properties["fill"] = hex
	f.Properties["fill-opacity"] = fillOpacity
	f.Properties["stroke"] = hex
	f.Properties["stroke-width"] = 2

	data, err := f.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode overlay: %w", err)
	}
	return string(data), nil
}

func (c *Client) fetch(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("static image request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) save(name string, data []byte) error {
	if err := os.MkdirAll(c.saveDir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.saveDir, name), data, 0o644); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}
