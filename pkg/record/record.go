// Package record turns upstream raw-image feed pages into normalized records.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Normalized is one extracted upstream item ready for ingestion.
type Normalized struct {
	ExternalID  string
	Window      int64
	SubResource string
	ContentURL  string
	EarthDate   time.Time

	// Optional telemetry; nil when absent or malformed upstream.
	TakenAt  *time.Time
	Title    string
	Caption  string
	Site     *int64
	Drive    *int64
	MastAz   *float64
	MastEl   *float64
	Sclk     *float64
	XYZ      []float64
	Attitude []float64

	Raw json.RawMessage
}

// ItemError describes one item that could not be extracted.
type ItemError struct {
	Index      int
	ExternalID string
	Reason     string
}

func (e ItemError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("item %d (%s): %s", e.Index, e.ExternalID, e.Reason)
	}
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// Extraction is the result of extracting one page.
type Extraction struct {
	Records []Normalized
	Errors  []ItemError
	// Skipped counts items dropped because they are not full-quality samples.
	Skipped int
	// Items is the raw number of items on the page, used for pagination.
	Items int
}

// Page is the envelope of one raw-image feed response.
type Page struct {
	Images       []json.RawMessage `json:"images"`
	TotalResults *int64            `json:"total_results"`
	LatestSol    *int64            `json:"latest_sol"`
}

// DecodePage parses a feed response body. Only a body that is not a JSON object fails;
// item-level problems are left to Extract.
func DecodePage(body []byte) (*Page, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}

	p := &Page{}
	if raw, ok := envelope["images"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &p.Images); err != nil {
			return nil, fmt.Errorf("decode feed images: %w", err)
		}
	}
	p.TotalResults = optInt(envelope["total_results"])
	p.LatestSol = optInt(envelope["latest_sol"])
	return p, nil
}
