// Package discord delivers alert notifications to a Discord-compatible
// webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// MaxAttempts is the number of POSTs made before a payload is dumped.
	MaxAttempts = 3
	// DefaultRetryWait is the pause between attempts.
	DefaultRetryWait = 2 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	WebhookURL string
	// DumpDir receives error_<uuid>.txt files for payloads that could not
	// be delivered.
	DumpDir string
	// RetryWait defaults to DefaultRetryWait when zero.
	RetryWait time.Duration
	// RatePerMinute caps outgoing POSTs. Zero disables pacing.
	RatePerMinute int
	Payload       domain.PayloadOptions
	Timeout       time.Duration
}

// Dispatcher posts webhook payloads with a fixed retry policy.
type Dispatcher struct {
	webhookURL string
	dumpDir    string
	retryWait  time.Duration
	payload    domain.PayloadOptions
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options, logger *slog.Logger) *Dispatcher {
	wait := opts.RetryWait
	if wait == 0 {
		wait = DefaultRetryWait
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		webhookURL: opts.WebhookURL,
		dumpDir:    opts.DumpDir,
		retryWait:  wait,
		payload:    opts.Payload,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(opts.RatePerMinute),
		logger:     logger,
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Deliver builds the payload for alert and sends it. It returns the status
// code of the final attempt. A non-nil error means the payload was not
// accepted; the dump file has already been written in that case.
func (d *Dispatcher) Deliver(ctx context.Context, alert domain.Alert, image string, color int) (int, error) {
	return d.Send(ctx, domain.BuildPayload(alert, image, color, d.payload))
}

// Send posts an already built payload.
func (d *Dispatcher) Send(ctx context.Context, payload domain.WebhookPayload) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	return d.SendRaw(ctx, data)
}

// SendRaw posts a JSON body as is. Success is a 204 response; anything else
// is retried up to MaxAttempts times before the body is dumped to disk.
func (d *Dispatcher) SendRaw(ctx context.Context, body []byte) (int, error) {
	status, respBody, err := d.attempt(ctx, body)
	if err == nil {
		return status, nil
	}
	if ctx.Err() != nil {
		return status, err
	}

	d.logger.Warn("webhook delivery failed",
		"status", status,
		"response", string(respBody),
		"error", err,
	)
	if path, dumpErr := d.dump(body); dumpErr != nil {
		d.logger.Error("write failure dump", "error", dumpErr)
	} else {
		d.logger.Info("failure dump written", "path", path)
	}
	return status, err
}

// attempt runs the retry loop without writing a dump.
func (d *Dispatcher) attempt(ctx context.Context, body []byte) (int, []byte, error) {
	var (
		status   int
		respBody []byte
		lastErr  error
	)
	for n := 1; n <= MaxAttempts; n++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return status, respBody, fmt.Errorf("wait for webhook rate limit: %w", err)
		}

		status, respBody, lastErr = d.post(ctx, body)
		if lastErr == nil && status == http.StatusNoContent {
			return status, respBody, nil
		}
		d.logger.Debug("webhook attempt failed", "attempt", n, "status", status, "error", lastErr)

		if n < MaxAttempts && !sleep(ctx, d.retryWait) {
			return status, respBody, ctx.Err()
		}
	}

	if lastErr != nil {
		return status, respBody, fmt.Errorf("deliver webhook: %w", lastErr)
	}
	return status, respBody, fmt.Errorf("deliver webhook: unexpected status %d", status)
}

func (d *Dispatcher) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, nil
}

func (d *Dispatcher) dump(body []byte) (string, error) {
	if err := os.MkdirAll(d.dumpDir, 0o755); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(d.dumpDir, DumpPrefix+uuid.NewString()+DumpSuffix)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write dump: %w", err)
	}
	return path, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
