// Package ingest writes normalized records into the store, deduplicating by external id.
package ingest

import (
	"context"
	"encoding/json"
	"time"
)

// SubResource is a lazily provisioned classifier of records, e.g. a camera of a rover.
type SubResource struct {
	ID        int64     `json:"id"`
	SourceID  string    `json:"sourceId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Record is one stored item. Records are immutable once created.
type Record struct {
	ID              int64           `json:"id"`
	ExternalID      string          `json:"externalId"`
	SourceID        string          `json:"sourceId"`
	Window          int64           `json:"sol"`
	SubResourceID   int64           `json:"subResourceId"`
	SubResourceName string          `json:"camera,omitempty"`
	ContentURL      string          `json:"imgSrc"`
	EarthDate       time.Time       `json:"earthDate"`
	TakenAt         *time.Time      `json:"takenAt,omitempty"`
	Title           string          `json:"title,omitempty"`
	Caption         string          `json:"caption,omitempty"`
	Site            *int64          `json:"site,omitempty"`
	Drive           *int64          `json:"drive,omitempty"`
	MastAz          *float64        `json:"mastAz,omitempty"`
	MastEl          *float64        `json:"mastEl,omitempty"`
	Sclk            *float64        `json:"sclk,omitempty"`
	XYZ             []float64       `json:"xyz,omitempty"`
	Attitude        []float64       `json:"attitude,omitempty"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ListFilter narrows ListRecords.
type ListFilter struct {
	SourceID string
	Window   *int64
	// AfterID pages by record id.
	AfterID int64
	Limit   int
}

// Store defines record persistence.
type Store interface {
	// GetOrCreateSubResource returns the sub-resource for (sourceID, name), creating it if
	// needed. created reports whether this call inserted it.
	GetOrCreateSubResource(ctx context.Context, sourceID, name string) (sr *SubResource, created bool, err error)
	// ExistingExternalIDs returns the subset of ids already stored.
	ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	// InsertRecords writes all records in one transaction and returns how many were inserted.
	// Records whose external id already exists are skipped.
	InsertRecords(ctx context.Context, records []*Record) (int, error)
	ListRecords(ctx context.Context, filter ListFilter) ([]*Record, error)
	CountRecords(ctx context.Context, sourceID string) (int, error)
}
