package lucky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up4200/seedbrake/httpclient"
)

// maxBodySize caps how much of a status payload is read.
const maxBodySize = 8 << 20

// TokenHeader carries the Lucky admin token.
const TokenHeader = "lucky-admin-token"

// Client polls one Lucky device.
type Client struct {
	name   string
	url    string
	opts   clientOptions
	pool   *httpclient.Pool
	logger zerolog.Logger
}

// NewClient creates a client for the source called name at rawURL.
func NewClient(name, rawURL string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		name: name,
		url:  rawURL,
		opts: o,
		pool: httpclient.NewPool(httpclient.Config{
			Timeout:            o.timeout,
			InsecureSkipVerify: o.insecure,
		}),
		logger: logger.With().Str("source", name).Logger(),
	}, nil
}

// Name returns the source name.
func (c *Client) Name() string {
	return c.name
}

// Fetch polls the device, retrying transient failures with linear backoff.
// An unrecognized payload is not an error; it yields no records.
func (c *Client) Fetch(ctx context.Context) ([]ServiceRecord, error) {
	var (
		lastErr    error
		lastStatus int
		attempts   int
	)

	for attempt := 1; attempt <= c.opts.maxRetries; attempt++ {
		attempts = attempt

		records, status, err := c.fetchOnce(ctx)
		if err == nil {
			return records, nil
		}
		lastErr, lastStatus = err, status

		if httpclient.IsConnectionReset(err) {
			c.logger.Debug().Err(err).Msg("Connection reset, recreating connection pool")
			c.pool.Reset()
		}

		if attempt == c.opts.maxRetries || ctx.Err() != nil {
			break
		}

		delay := c.opts.retryDelay * time.Duration(attempt)
		c.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Fetch failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			break
		}
	}

	return nil, &CollectionError{
		Source:     c.name,
		Attempts:   attempts,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

// Test performs a single fetch without retries and reports the detected shape.
func (c *Client) Test(ctx context.Context) (Shape, []ServiceRecord, error) {
	body, _, err := c.do(ctx)
	if err != nil {
		return ShapeNone, nil, err
	}
	shape, records := DecodeServices(body, c.name)
	return shape, records, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) fetchOnce(ctx context.Context) ([]ServiceRecord, int, error) {
	body, status, err := c.do(ctx)
	if err != nil {
		return nil, status, err
	}

	shape, records := DecodeServices(body, c.name)
	if shape == ShapeNone {
		c.logger.Debug().Int("bytes", len(body)).Msg("Unrecognized payload, treating as no activity")
	}
	return records, status, nil
}

// do performs the request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.opts.userAgent != "" {
		req.Header.Set("User-Agent", c.opts.userAgent)
	}
	if c.opts.token != "" {
		req.Header.Set(TokenHeader, c.opts.token)
	}
	if c.opts.username != "" {
		req.SetBasicAuth(c.opts.username, c.opts.password)
	}

	resp, err := c.pool.Client().Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Body: snippet}
	}

	return body, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCollectionError reports whether err is a collection failure.
func IsCollectionError(err error) bool {
	var ce *CollectionError
	return errors.As(err, &ce)
}
