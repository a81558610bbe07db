// Package upstream adapts the raw-image feed of each configured source to windows and pages.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/fetch"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/record"
)

var (
	// ErrUnknownSource is returned for a source id that is not configured.
	ErrUnknownSource = errors.New("unknown source")
	// ErrNoLatestWindow is returned when the feed does not report its latest sol.
	ErrNoLatestWindow = errors.New("upstream did not report latest window")
)

const (
	defaultPageSize = 100
	defaultMaxPages = 50
)

// Source is what the scheduler needs from an upstream feed.
type Source interface {
	MaxWindow(ctx context.Context, sourceID string) (int64, error)
	FetchWindow(ctx context.Context, sourceID string, window int64) (*WindowResult, error)
}

// WindowResult is every extracted page of one window.
type WindowResult struct {
	Window  int64
	Pages   int
	Records []record.Normalized
	Errors  []record.ItemError
	Skipped int
}

type feed struct {
	cfg       config.SourceConfig
	fetcher   *fetch.Resilient
	extractor *record.Extractor
}

// Client routes calls to the per-source resilient fetcher.
type Client struct {
	feeds  map[string]*feed
	logger *zap.Logger
}

// NewClient builds one resilient fetcher per source on top of raw.
func NewClient(sources []config.SourceConfig, raw fetch.Fetcher, fetchCfg config.FetchConfig, logger *zap.Logger) *Client {
	c := &Client{feeds: make(map[string]*feed, len(sources)), logger: logger}
	for _, src := range sources {
		if src.PageSize <= 0 {
			src.PageSize = defaultPageSize
		}
		if src.MaxPages <= 0 {
			src.MaxPages = defaultMaxPages
		}
		c.feeds[src.ID] = &feed{
			cfg:       src,
			fetcher:   fetch.NewResilient(src.ID, raw, fetchCfg, logger.With(zap.String("source", src.ID))),
			extractor: record.NewExtractor(src),
		}
	}
	return c
}

// BreakerState reports the circuit state of a source's fetcher.
func (c *Client) BreakerState(sourceID string) (fetch.State, error) {
	f, ok := c.feeds[sourceID]
	if !ok {
		return fetch.StateClosed, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return f.fetcher.Breaker.State(), nil
}

// MaxWindow asks the feed for its latest published sol.
func (c *Client) MaxWindow(ctx context.Context, sourceID string) (int64, error) {
	f, ok := c.feeds[sourceID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	q := f.baseQuery()
	q.Set("latest", "true")
	q.Set("num", "1")

	page, err := f.get(ctx, q)
	if err != nil {
		return 0, err
	}
	if page.LatestSol == nil {
		return 0, ErrNoLatestWindow
	}
	return *page.LatestSol, nil
}

// FetchWindow reads every page of one sol. Paging stops at the first short page or after
// max_pages pages.
func (c *Client) FetchWindow(ctx context.Context, sourceID string, window int64) (*WindowResult, error) {
	f, ok := c.feeds[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	res := &WindowResult{Window: window}
	for pageNum := 0; pageNum < f.cfg.MaxPages; pageNum++ {
		q := f.baseQuery()
		q.Set("sol", strconv.FormatInt(window, 10))
		q.Set("num", strconv.Itoa(f.cfg.PageSize))
		q.Set("page", strconv.Itoa(pageNum))

		page, err := f.get(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("window %d page %d: %w", window, pageNum, err)
		}

		ext := f.extractor.Extract(page)
		res.Pages++
		res.Records = append(res.Records, ext.Records...)
		res.Errors = append(res.Errors, ext.Errors...)
		res.Skipped += ext.Skipped

		if ext.Items < f.cfg.PageSize {
			break
		}
		if pageNum == f.cfg.MaxPages-1 {
			c.logger.Warn("Window page limit reached; remaining pages not fetched",
				zap.String("source", sourceID),
				zap.Int64("window", window),
				zap.Int("max_pages", f.cfg.MaxPages))
		}
	}

	if res.Skipped > 0 {
		metrics.ItemsSkipped.WithLabelValues(sourceID, "not_full").Add(float64(res.Skipped))
	}
	if len(res.Errors) > 0 {
		metrics.ItemsSkipped.WithLabelValues(sourceID, "malformed").Add(float64(len(res.Errors)))
	}
	return res, nil
}

func (f *feed) baseQuery() url.Values {
	q := url.Values{}
	q.Set("feed", "raw_images")
	q.Set("category", f.cfg.Category)
	q.Set("feedtype", "json")
	return q
}

func (f *feed) get(ctx context.Context, q url.Values) (*record.Page, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()

	batch, err := f.fetcher.Fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return record.DecodePage(batch.Body)
}
