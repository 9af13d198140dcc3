// Package nws fetches active alerts from the National Weather Service API.
package nws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the public NWS API root.
const DefaultBaseURL = "https://api.weather.gov"

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	From      string
	Severity  string
	Timeout   time.Duration
	RetryMax  int
}

// Client retrieves the active-alert feed.
type Client struct {
	baseURL   string
	userAgent string
	from      string
	severity  string
	http      *retryablehttp.Client
}

// NewClient creates a feed client. Transient failures are retried by
// retryablehttp with its default exponential backoff.
func NewClient(opts Options, logger *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = logger

	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL:   base,
		userAgent: opts.UserAgent,
		from:      opts.From,
		severity:  opts.Severity,
		http:      rc,
	}
}

// Active returns the raw records of the current feed.
func (c *Client) Active(ctx context.Context) ([]domain.Feature, error) {
	u := c.baseURL + "/alerts/active"
	if c.severity != "" {
		u += "?" + url.Values{"severity": {c.severity}}.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.from != "" {
		req.Header.Set("From", c.from)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch active alerts: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nws API error: status %d: %s", resp.StatusCode, body)
	}

	feed, err := domain.DecodeFeed(body)
	if err != nil {
		return nil, err
	}
	return feed.Features, nil
}
