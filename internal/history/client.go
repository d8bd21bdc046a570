// Package history posts lead outcome events to the external history-log API
// and to the local run store.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

// Option configures the history client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// Client posts history events as JSON. A Client with an empty URL does
// nothing.
type Client struct {
	url   string
	http  *http.Client
	retry resilience.RetryConfig
}

// NewClient creates a history client posting to url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:   url,
		http:  &http.Client{Timeout: 15 * time.Second},
		retry: resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("history", "post")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a history endpoint is configured.
func (c *Client) Enabled() bool { return c.url != "" }

// Post sends entry to the history API. Transient failures (429, 5xx,
// network) are retried.
func (c *Client) Post(ctx context.Context, entry model.HistoryLog) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "history: marshal entry")
	}

	err = resilience.Do(ctx, c.retry, func(ctx context.Context, _ int) error {
		return c.post(ctx, body)
	})
	if err != nil {
		return eris.Wrapf(err, "history: post %s", entry.Domain)
	}
	zap.L().Debug("history: posted", zap.String("domain", entry.Domain), zap.String("disposition", entry.Disposition))
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "history: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "history: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	statusErr := eris.Errorf("history: status %d: %s", resp.StatusCode, string(msg))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(statusErr, resp.StatusCode)
	}
	return statusErr
}
