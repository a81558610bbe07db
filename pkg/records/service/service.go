// Package service serves stored records to authenticated API clients.
package service

import (
	"context"
	"fmt"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/ingest"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Reader is the narrow read interface over the record store.
type Reader interface {
	ListRecords(ctx context.Context, filter ingest.ListFilter) ([]*ingest.Record, error)
	CountRecords(ctx context.Context, sourceID string) (int, error)
}

// Query selects a page of records.
type Query struct {
	Source     string
	Window     *int64
	After      int64
	Limit      int
	IncludeRaw bool
}

// Page is one page of records. NextAfter is set when more records may follow.
type Page struct {
	Records   []*ingest.Record `json:"records"`
	NextAfter int64            `json:"nextAfter,omitempty"`
}

// SourceSummary describes one configured source.
type SourceSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LandingDate string `json:"landingDate"`
	Active      bool   `json:"active"`
	Records     int    `json:"records"`
}

// Service defines the record read operations
type Service interface {
	ListRecords(ctx context.Context, q Query) (*Page, error)
	Sources(ctx context.Context) ([]SourceSummary, error)
}

type recordService struct {
	reader  Reader
	sources []config.SourceConfig
}

// NewService creates a new record read service
func NewService(reader Reader, sources []config.SourceConfig) Service {
	return &recordService{reader: reader, sources: sources}
}

func (s *recordService) known(id string) bool {
	for _, src := range s.sources {
		if src.ID == id {
			return true
		}
	}
	return false
}

func (s *recordService) ListRecords(ctx context.Context, q Query) (*Page, error) {
	if q.Source != "" && !s.known(q.Source) {
		return nil, apperrors.ResourceNotFoundError(nil, fmt.Sprintf("unknown source %q", q.Source))
	}
	if q.Window != nil && *q.Window < 0 {
		return nil, apperrors.BadRequestError(nil, "window must not be negative")
	}
	if q.After < 0 {
		return nil, apperrors.BadRequestError(nil, "after must not be negative")
	}
	switch {
	case q.Limit == 0:
		q.Limit = defaultLimit
	case q.Limit < 0 || q.Limit > maxLimit:
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}

	recs, err := s.reader.ListRecords(ctx, ingest.ListFilter{
		SourceID: q.Source,
		Window:   q.Window,
		AfterID:  q.After,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	if !q.IncludeRaw {
		for _, r := range recs {
			r.RawPayload = nil
		}
	}

	page := &Page{Records: recs}
	if len(recs) == q.Limit {
		page.NextAfter = recs[len(recs)-1].ID
	}
	return page, nil
}

func (s *recordService) Sources(ctx context.Context) ([]SourceSummary, error) {
	out := make([]SourceSummary, 0, len(s.sources))
	for _, src := range s.sources {
		n, err := s.reader.CountRecords(ctx, src.ID)
		if err != nil {
			return nil, apperrors.GeneralError(err)
		}
		out = append(out, SourceSummary{
			ID:          src.ID,
			Name:        src.Name,
			LandingDate: src.LandingDate,
			Active:      src.IsActive(),
			Records:     n,
		})
	}
	return out, nil
}
