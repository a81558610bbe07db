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
		log.Println("creating sub_resources table...")
		return mghelper.CreateSchema(ctx, db, &ingest.SubResourceDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping sub_resources table...")
		return mghelper.DropTables(ctx, db, &ingest.SubResourceDao{})
	})
}
