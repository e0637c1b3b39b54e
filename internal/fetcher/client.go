// Package fetcher implements spec §4.2: obtaining product payloads that
// conform, after validation, to the canonical artifact shape. A
// PlatformFetcher is selected by a roaster's Platform enum rather than
// a class hierarchy, per spec §9's redesign note ("flatten to one
// PlatformFetcher capability with variants {Shopify, Woo, Fallback}").
package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// ClientConfig configures the underlying HTTP transport. Grounded on the
// teacher's infrastructure/httpclient.ClientConfig, narrowed to the
// timeout/body-cap knobs spec §4.2 actually names; the teacher's
// percentile-latency tracking and retry loop are not duplicated here —
// retry/backoff already lives one layer up in fetcher/guard.
type ClientConfig struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalDeadline  time.Duration
	MaxBodyBytes   int64
}

// NewClient builds an *http.Client whose Transport enforces ConnectTimeout
// as a dial timeout and ReadTimeout as a response-header timeout; the
// TotalDeadline is applied by callers via context, since it spans retries
// that this client itself knows nothing about.
func NewClient(cfg ClientConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Do issues req with the configured User-Agent, bounding its context to
// TotalDeadline, and returns a body reader capped at MaxBodyBytes. The
// caller is responsible for closing the returned io.ReadCloser.
func Do(ctx context.Context, client *http.Client, cfg ClientConfig, req *http.Request) (*http.Response, context.CancelFunc, error) {
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.TotalDeadline)
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	resp.Body = &limitedBody{r: io.LimitReader(resp.Body, cfg.MaxBodyBytes+1), underlying: resp.Body}
	return resp, cancel, nil
}

// limitedBody wraps a response body so reads past MaxBodyBytes+1 bytes are
// truncated rather than silently buffered in full; callers detect
// truncation by comparing bytes read against cfg.MaxBodyBytes and fail the
// fetch (the body is not stored anywhere).
type limitedBody struct {
	r          io.Reader
	underlying io.ReadCloser
}

func (b *limitedBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *limitedBody) Close() error                { return b.underlying.Close() }
