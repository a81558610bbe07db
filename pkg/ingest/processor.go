package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/record"
)

// Processor writes extracted batches. Re-ingesting the same batch is a no-op.
type Processor struct {
	store  Store
	logger *zap.Logger
}

// NewProcessor creates a new ingestion processor
func NewProcessor(store Store, logger *zap.Logger) *Processor {
	return &Processor{store: store, logger: logger}
}

// Ingest stores the records of one source window and returns how many were new.
// An empty or fully known batch returns 0 with no error.
func (p *Processor) Ingest(ctx context.Context, sourceID string, batch []record.Normalized) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	unique := dedupe(batch)
	if dup := len(batch) - len(unique); dup > 0 {
		metrics.ItemsSkipped.WithLabelValues(sourceID, "duplicate_in_batch").Add(float64(dup))
	}

	subResources, err := p.provisionSubResources(ctx, sourceID, unique)
	if err != nil {
		return 0, err
	}

	ids := make([]string, len(unique))
	for i := range unique {
		ids[i] = unique[i].ExternalID
	}
	existing, err := p.store.ExistingExternalIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	fresh := make([]*Record, 0, len(unique))
	for i := range unique {
		n := &unique[i]
		if _, ok := existing[n.ExternalID]; ok {
			continue
		}
		fresh = append(fresh, toNewRecord(sourceID, subResources[n.SubResource], n))
	}
	if known := len(unique) - len(fresh); known > 0 {
		metrics.ItemsSkipped.WithLabelValues(sourceID, "already_stored").Add(float64(known))
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	inserted, err := p.store.InsertRecords(ctx, fresh)
	if err != nil {
		return 0, err
	}
	metrics.RecordsAdded.WithLabelValues(sourceID).Add(float64(inserted))
	return inserted, nil
}

// provisionSubResources resolves every distinct sub-resource name in the batch. Unknown names
// are created from upstream input as a side effect; that usually means the upstream schema
// grew, so it is logged as a warning.
func (p *Processor) provisionSubResources(ctx context.Context, sourceID string, batch []record.Normalized) (map[string]int64, error) {
	ids := make(map[string]int64)
	for i := range batch {
		name := batch[i].SubResource
		if _, ok := ids[name]; ok {
			continue
		}
		sr, created, err := p.store.GetOrCreateSubResource(ctx, sourceID, name)
		if err != nil {
			return nil, fmt.Errorf("provision sub-resource %q: %w", name, err)
		}
		if created {
			metrics.SubResourcesProvisioned.WithLabelValues(sourceID).Inc()
			p.logger.Warn("New sub-resource auto-provisioned",
				zap.String("source", sourceID),
				zap.String("name", name),
				zap.Int64("id", sr.ID))
		}
		ids[name] = sr.ID
	}
	return ids, nil
}

// dedupe keeps the first occurrence of each external id.
func dedupe(batch []record.Normalized) []record.Normalized {
	seen := make(map[string]struct{}, len(batch))
	out := make([]record.Normalized, 0, len(batch))
	for _, n := range batch {
		if _, ok := seen[n.ExternalID]; ok {
			continue
		}
		seen[n.ExternalID] = struct{}{}
		out = append(out, n)
	}
	return out
}

func toNewRecord(sourceID string, subResourceID int64, n *record.Normalized) *Record {
	raw := n.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return &Record{
		ExternalID:      n.ExternalID,
		SourceID:        sourceID,
		Window:          n.Window,
		SubResourceID:   subResourceID,
		SubResourceName: n.SubResource,
		ContentURL:      n.ContentURL,
		EarthDate:       n.EarthDate,
		TakenAt:         n.TakenAt,
		Title:           n.Title,
		Caption:         n.Caption,
		Site:            n.Site,
		Drive:           n.Drive,
		MastAz:          n.MastAz,
		MastEl:          n.MastEl,
		Sclk:            n.Sclk,
		XYZ:             n.XYZ,
		Attitude:        n.Attitude,
		RawPayload:      raw,
	}
}
