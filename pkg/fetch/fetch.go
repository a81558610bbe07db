// Package fetch implements the resilient upstream HTTP client: a raw fetcher wrapped by a
// circuit breaker, wrapped by a retry policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

var (
	// ErrCircuitOpen is returned without touching the network while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrRetriesExhausted wraps the last error once the retry budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// RawBatch is one undecoded upstream response.
type RawBatch struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Fetcher performs a single logical fetch of url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*RawBatch, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (*RawBatch, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*RawBatch, error) {
	return f(ctx, url)
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s returned %d", e.URL, e.Code)
	}
	return fmt.Sprintf("upstream %s returned %d: %s", e.URL, e.Code, e.Body)
}

// IsTransient reports whether err belongs to a failure class worth retrying:
// 5xx, 429, timeouts and connection-level failures.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= http.StatusInternalServerError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
