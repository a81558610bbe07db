package ingestdb

import (
	"context"
	"log"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/ingest"
	mghelper "github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating records table...")
		if _, err := db.NewCreateTable().
			Model(&ingest.RecordDao{}).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &ingest.RecordDao{}, "source_id,sol", "sub_resource_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping records table...")
		return mghelper.DropTables(ctx, db, &ingest.RecordDao{})
	})
}
