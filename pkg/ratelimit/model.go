package ratelimit

import (
	"time"

	"github.com/uptrace/bun"
)

// WindowCounterDao is a data access object that maps directly to the 'rate_window_counters' table in PostgreSQL.
type WindowCounterDao struct {
	bun.BaseModel `bun:"table:rate_window_counters,alias:rw"`
	Identity      string    `bun:"identity,pk,type:varchar(255)"`
	WindowStart   time.Time `bun:"window_start,pk,type:timestamptz"`
	WindowKind    string    `bun:"window_kind,pk,type:varchar(8)"`
	Count         int       `bun:"count,notnull,use_zero,default:0"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}
