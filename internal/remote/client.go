// Package remote issues plain and ranged HTTP reads against the public archive host.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/metrics"
)

// DefaultBaseURL is the public HTTPS endpoint of the crawl archive.
const DefaultBaseURL = "https://data.commoncrawl.org"

// Waiter paces outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Throttler is implemented by waiters that can pause a host after it answers
// 429 or 503.
type Throttler interface {
	Throttle(rawURL string, d time.Duration)
}

const (
	defaultThrottle = time.Second
	maxThrottle     = 30 * time.Second
)

// Config controls the HTTP client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// StatusError reports an unexpected HTTP status from the archive host.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a 403 or 404 from the archive host; the
// public bucket answers 403 for keys that do not exist.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusForbidden
}

// Client reads objects relative to a base URL.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	limiter   Waiter
	logger    *zap.Logger
}

// New constructs a Client. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http: &http.Client{
			Transport: newHTTPTransport(),
			Timeout:   timeout,
		},
		baseURL:   base,
		userAgent: cfg.UserAgent,
		limiter:   limiter,
		logger:    logger,
	}
}

// URL resolves an archive-relative path against the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Get issues a plain GET. The caller owns the body; non-2xx responses are
// returned as *StatusError with the body already closed.
func (c *Client) Get(ctx context.Context, path, kind string) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, kind)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return nil, &StatusError{Method: http.MethodGet, URL: c.URL(path), StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// GetRange issues a GET for the inclusive byte range [offset, offset+length-1].
// The response is returned whatever its status so callers can decide how to
// treat a server that ignored the range.
func (c *Client) GetRange(ctx context.Context, path string, offset, length int64, kind string) (*http.Response, error) {
	if offset < 0 || length <= 0 {
		return nil, fmt.Errorf("invalid range offset=%d length=%d", offset, length)
	}
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	return c.do(ctx, http.MethodGet, path, header, kind)
}

// Size returns the object length reported by a HEAD request.
func (c *Client) Size(ctx context.Context, path, kind string) (int64, error) {
	resp, err := c.do(ctx, http.MethodHead, path, nil, kind)
	if err != nil {
		return 0, err
	}
	drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{Method: http.MethodHead, URL: c.URL(path), StatusCode: resp.StatusCode}
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("HEAD %s: content length unknown", c.URL(path))
	}
	return resp.ContentLength, nil
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, kind string) (*http.Response, error) {
	target := c.URL(path)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRemote(kind, 0, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	var transferred int64
	if method == http.MethodGet && resp.ContentLength > 0 {
		transferred = resp.ContentLength
	}
	metrics.ObserveRemote(kind, resp.StatusCode, transferred, time.Since(start))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		c.throttle(target, resp)
	}
	c.logger.Debug("remote request",
		zap.String("method", method),
		zap.String("url", target),
		zap.String("range", req.Header.Get("Range")),
		zap.Int("status", resp.StatusCode),
	)
	return resp, nil
}

func (c *Client) throttle(target string, resp *http.Response) {
	t, ok := c.limiter.(Throttler)
	if !ok {
		return
	}
	pause := retryAfter(resp.Header.Get("Retry-After"), time.Now())
	t.Throttle(target, pause)
	c.logger.Warn("archive host asked to slow down",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("pause", pause),
	)
}

// retryAfter reads a Retry-After value in seconds or as an HTTP date. Missing
// or unusable values fall back to one second; long values are capped.
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultThrottle
	}
	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	}
	switch {
	case d <= 0:
		return defaultThrottle
	case d > maxThrottle:
		return maxThrottle
	}
	return d
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		// Ranged bodies must arrive byte-exact.
		DisableCompression: true,
	}
}
