package ingestdb

import (
	"context"
	"log"

	mghelper "github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil/migrations"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/ratelimit"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating rate_window_counters table...")
		if err := mghelper.CreateSchema(ctx, db, &ratelimit.WindowCounterDao{}); err != nil {
			return err
		}
		// sweeps delete by window start
		return mghelper.CreateModelIndexes(ctx, db, &ratelimit.WindowCounterDao{}, "window_start")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping rate_window_counters table...")
		return mghelper.DropTables(ctx, db, &ratelimit.WindowCounterDao{})
	})
}
