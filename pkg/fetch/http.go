package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
)

const (
	defaultTimeout   = 30 * time.Second
	maxBodyBytes     = 32 << 20
	errorBodySnippet = 256
)

// HTTPFetcher issues plain GET requests with a fixed timeout ceiling.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a raw fetcher. A non-positive timeout falls back to 30s.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch performs one GET against url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*RawBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("network").Inc()
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.FetchRequests.WithLabelValues("network").Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FetchRequests.WithLabelValues(statusOutcome(resp.StatusCode)).Inc()
		snippet := string(body)
		if len(snippet) > errorBodySnippet {
			snippet = snippet[:errorBodySnippet]
		}
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Body: snippet}
	}

	metrics.FetchRequests.WithLabelValues("ok").Inc()
	return &RawBatch{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func statusOutcome(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return "http_429"
	case code >= 500:
		return "http_5xx"
	default:
		return "http_4xx"
	}
}
