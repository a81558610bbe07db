package ingestdb

import (
	"context"
	"log"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	mghelper "github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating cursors table...")
		return mghelper.CreateSchema(ctx, db, &cursor.CursorDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping cursors table...")
		return mghelper.DropTables(ctx, db, &cursor.CursorDao{})
	})
}
