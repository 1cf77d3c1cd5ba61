// Package fetch retrieves raw feed documents, either over HTTP or from a
// local fixture directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// MaxBodySize caps the number of bytes read from one feed.
const MaxBodySize = 10 << 20

// ErrBodyTooLarge is returned when a feed exceeds MaxBodySize.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Request identifies the document to retrieve.
type Request struct {
	AdapterID string
	FeedID    string
	URL       string
}

// Fetcher retrieves the raw bytes of a feed document.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTP fetches feeds over the network. Each request is bounded by its own
// timeout; an optional limiter paces requests across all workers.
type HTTP struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
}

// NewHTTP creates an HTTP fetcher. A requestsPerSecond of zero disables
// pacing.
func NewHTTP(userAgent string, timeout time.Duration, requestsPerSecond float64) *HTTP {
	h := &HTTP{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		timeout:   timeout,
	}
	if requestsPerSecond > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return h
}

// Fetch performs a GET for req.URL and returns the body.
func (h *HTTP) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", h.userAgent)
	httpReq.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}

	return body, nil
}
