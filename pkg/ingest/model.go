package ingest

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// SubResourceDao is a data access object that maps directly to the 'sub_resources' table in PostgreSQL.
type SubResourceDao struct {
	bun.BaseModel `bun:"table:sub_resources,alias:sr"`
	ID            int64     `bun:"id,pk,autoincrement"`
	SourceID      string    `bun:"source_id,notnull,type:varchar(64),unique:sub_resources_source_name"`
	Name          string    `bun:"name,notnull,type:varchar(128),unique:sub_resources_source_name"`
	CreatedAt     time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}

// RecordDao is a data access object that maps directly to the 'records' table in PostgreSQL.
type RecordDao struct {
	bun.BaseModel `bun:"table:records,alias:r"`
	ID            int64           `bun:"id,pk,autoincrement"`
	ExternalID    string          `bun:"external_id,unique,notnull,type:varchar(255)"`
	SourceID      string          `bun:"source_id,notnull,type:varchar(64)"`
	Sol           int64           `bun:"sol,notnull,use_zero"`
	SubResourceID int64           `bun:"sub_resource_id,notnull"`
	ContentURL    string          `bun:"content_url,notnull,type:text"`
	EarthDate     time.Time       `bun:"earth_date,notnull,type:date"`
	TakenAt       *time.Time      `bun:"taken_at"`
	Title         *string         `bun:"title,type:text"`
	Caption       *string         `bun:"caption,type:text"`
	Site          *int64          `bun:"site"`
	Drive         *int64          `bun:"drive"`
	MastAz        *float64        `bun:"mast_az"`
	MastEl        *float64        `bun:"mast_el"`
	Sclk          *float64        `bun:"sclk"`
	XYZ           []float64       `bun:"xyz,array,type:double precision[]"`
	Attitude      []float64       `bun:"attitude,array,type:double precision[]"`
	RawPayload    json.RawMessage `bun:"raw_payload,type:jsonb,notnull"`
	CreatedAt     time.Time       `bun:"created_at,notnull,nullzero,default:current_timestamp"`

	SubResource *SubResourceDao `bun:"rel:belongs-to,join:sub_resource_id=id"`
}

func toSubResource(dao *SubResourceDao) *SubResource {
	return &SubResource{
		ID:        dao.ID,
		SourceID:  dao.SourceID,
		Name:      dao.Name,
		CreatedAt: dao.CreatedAt,
	}
}

func toRecordDao(rec *Record) *RecordDao {
	return &RecordDao{
		ExternalID:    rec.ExternalID,
		SourceID:      rec.SourceID,
		Sol:           rec.Window,
		SubResourceID: rec.SubResourceID,
		ContentURL:    rec.ContentURL,
		EarthDate:     rec.EarthDate,
		TakenAt:       rec.TakenAt,
		Title:         nullString(rec.Title),
		Caption:       nullString(rec.Caption),
		Site:          rec.Site,
		Drive:         rec.Drive,
		MastAz:        rec.MastAz,
		MastEl:        rec.MastEl,
		Sclk:          rec.Sclk,
		XYZ:           rec.XYZ,
		Attitude:      rec.Attitude,
		RawPayload:    rec.RawPayload,
	}
}

func toRecord(dao *RecordDao) *Record {
	rec := &Record{
		ID:            dao.ID,
		ExternalID:    dao.ExternalID,
		SourceID:      dao.SourceID,
		Window:        dao.Sol,
		SubResourceID: dao.SubResourceID,
		ContentURL:    dao.ContentURL,
		EarthDate:     dao.EarthDate,
		TakenAt:       dao.TakenAt,
		Site:          dao.Site,
		Drive:         dao.Drive,
		MastAz:        dao.MastAz,
		MastEl:        dao.MastEl,
		Sclk:          dao.Sclk,
		XYZ:           dao.XYZ,
		Attitude:      dao.Attitude,
		RawPayload:    dao.RawPayload,
		CreatedAt:     dao.CreatedAt,
	}
	if dao.Title != nil {
		rec.Title = *dao.Title
	}
	if dao.Caption != nil {
		rec.Caption = *dao.Caption
	}
	if dao.SubResource != nil {
		rec.SubResourceName = dao.SubResource.Name
	}
	return rec
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
