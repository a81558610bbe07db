package cursor

import (
	"time"

	"github.com/uptrace/bun"
)

// CursorDao is a data access object that maps directly to the 'cursors' table in PostgreSQL.
type CursorDao struct {
	bun.BaseModel       `bun:"table:cursors,alias:c"`
	SourceID            string     `bun:"source_id,pk,type:varchar(64)"`
	LastWatermark       int64      `bun:"last_watermark,notnull,use_zero"`
	LastRunAt           *time.Time `bun:"last_run_at"`
	LastRunStatus       string     `bun:"last_run_status,notnull,type:varchar(16),default:'idle'"`
	RecordsAddedLastRun int        `bun:"records_added_last_run,notnull,use_zero"`
	ErrorMessage        *string    `bun:"error_message,type:text"`
	RunID               *string    `bun:"run_id,type:varchar(64)"`
	RunStartedAt        *time.Time `bun:"run_started_at"`
	CreatedAt           time.Time  `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

func toCursor(dao *CursorDao) *Cursor {
	c := &Cursor{
		SourceID:            dao.SourceID,
		LastWatermark:       dao.LastWatermark,
		LastRunAt:           dao.LastRunAt,
		LastRunStatus:       Status(dao.LastRunStatus),
		RecordsAddedLastRun: dao.RecordsAddedLastRun,
		RunStartedAt:        dao.RunStartedAt,
		UpdatedAt:           dao.UpdatedAt,
	}
	if dao.ErrorMessage != nil {
		c.ErrorMessage = *dao.ErrorMessage
	}
	if dao.RunID != nil {
		c.RunID = *dao.RunID
	}
	if c.LastRunStatus == "" {
		c.LastRunStatus = StatusIdle
	}
	return c
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
