// Package fetch provides the outbound HTTP layer: a rate-limited,
// cached, retrying client for feeds and fare pages, plus an alternate
// browser-rendering implementation of the same contract for pages that
// compute their content client-side.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Response is the result of a fetch. FromCache is true when the server
// answered 304 and Body was served from the local cache.
type Response struct {
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	FromCache bool
}

// PageFetcher is the fetch contract shared by the plain HTTP client and
// the rendering client. Orchestrators pick an implementation by policy.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Options configures a Client.
type Options struct {
	// CacheDir holds one metadata file and one body file per URL.
	CacheDir string
	// RequestsPerSecond caps the process-wide outbound request rate.
	RequestsPerSecond float64
	// Timeout bounds a single request attempt.
	Timeout time.Duration
	// MaxAttempts is the total number of tries before giving up.
	MaxAttempts int
	UserAgent   string
	Logger      *slog.Logger
}

// Client issues polite GETs: successive calls across the whole process
// are spaced by at least 1/rps, conditional requests reuse stored
// ETag/Last-Modified validators, and transient failures are retried with
// capped exponential backoff. One Client instance is shared per run;
// it is not safe for concurrent use.
type Client struct {
	cache       *cache
	httpClient  *http.Client
	minInterval time.Duration
	maxAttempts int
	userAgent   string
	logger      *slog.Logger

	// lastRequest is the gate for the minimum inter-request interval.
	lastRequest time.Time
}

const maxBackoff = 8 * time.Second

// errCacheBodyMissing marks a 304 answer whose cached body vanished
// between loading the validators and the response.
var errCacheBodyMissing = errors.New("cached body missing")

// NewClient creates a Client and its cache directory.
func NewClient(opts Options) (*Client, error) {
	cache, err := newCache(opts.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create http cache: %w", err)
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 0.2
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "tripwatch/0.1"
	}

	return &Client{
		cache:       cache,
		httpClient:  &http.Client{Timeout: timeout},
		minInterval: time.Duration(float64(time.Second) / rps),
		maxAttempts: attempts,
		userAgent:   ua,
		logger:      logger,
	}, nil
}

// Get fetches url, honoring the rate gate, the conditional-request cache
// and the retry policy. A 304 answer returns the previously cached body
// with FromCache set; any other 2xx replaces the cache entry. Statuses
// >= 400 and transport errors are retried; exhausting all attempts
// returns an error naming the URL and the attempt count.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	entry := c.cache.load(url)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := min(maxBackoff, time.Second<<(attempt-2))
			c.logger.Debug("backing off", "url", url, "delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := c.gate(ctx); err != nil {
			return nil, err
		}

		resp, err := c.do(ctx, url, entry)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.logger.Debug("fetch attempt failed", "url", url, "attempt", attempt, "error", err)
		if errors.Is(err, errCacheBodyMissing) {
			// Drop the stale validators so the retry is unconditional.
			entry = cacheEntry{}
		}
	}

	return nil, fmt.Errorf("GET %s failed after %d attempts: %w", url, c.maxAttempts, lastErr)
}

// Fetch implements PageFetcher.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	return c.Get(ctx, url)
}

func (c *Client) do(ctx context.Context, url string, entry cacheEntry) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		req.Header.Set("If-Modified-Since", entry.LastModified)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		body, err := c.cache.body(url)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errCacheBodyMissing, err)
		}
		return &Response{
			URL:       url,
			Status:    resp.StatusCode,
			Header:    resp.Header,
			Body:      body,
			FromCache: true,
		}, nil
	}

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Cache writes are best-effort; a failed write only costs a refetch.
	if err := c.cache.save(url, cacheEntry{
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().Unix(),
	}, body); err != nil {
		c.logger.Warn("cache write failed", "url", url, "error", err)
	}

	return &Response{
		URL:    url,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

// gate blocks until at least minInterval has passed since the previous
// request issued through this client.
func (c *Client) gate(ctx context.Context) error {
	if wait := c.minInterval - time.Since(c.lastRequest); wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	c.lastRequest = time.Now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
