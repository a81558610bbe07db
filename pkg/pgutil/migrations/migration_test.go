package migrations

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil"
)

type sampleDao struct {
	bun.BaseModel `bun:"table:sample_items"`
	ID            int64  `bun:",pk,autoincrement"`
	SourceID      string `bun:",notnull"`
	Sol           int64  `bun:",notnull"`
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg, zap.NewNop())
	if err == nil {
		_ = db.Close()
	}
	require.Error(t, err)
}

func TestSchemaHelpers(t *testing.T) {
	db := pgutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, CreateSchema(ctx, db, &sampleDao{}))
	require.NoError(t, CreateSchema(ctx, db, &sampleDao{}), "CreateSchema must be idempotent")
	pgutil.AssertTableExists(t, db, "sample_items")

	require.NoError(t, CreateModelIndexes(ctx, db, &sampleDao{}, "sol"))
	require.NoError(t, CreateModelUniqueIndexes(ctx, db, &sampleDao{}, "source_id, sol"))
	pgutil.AssertIndexExists(t, db, "idx_sample_items_sol")
	pgutil.AssertIndexExists(t, db, "idx_sample_items_source_id_sol")

	_, err := db.NewInsert().Model(&sampleDao{SourceID: "a", Sol: 1}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&sampleDao{SourceID: "a", Sol: 1}).Exec(ctx)
	require.Error(t, err, "composite unique index must reject duplicates")

	require.NoError(t, DropModelIndexes(ctx, db, &sampleDao{}, "sol"))
	require.NoError(t, DropTables(ctx, db, &sampleDao{}))
	pgutil.AssertTableNotExists(t, db, "sample_items")
}

func TestRunMigrations(t *testing.T) {
	db := pgutil.SetupTestDB(t)
	ctx := context.Background()

	ms := migrate.NewMigrations()
	ms.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return CreateSchema(ctx, db, &sampleDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		return DropTables(ctx, db, &sampleDao{})
	})
	migrator := migrate.NewMigrator(db, ms)

	var out bytes.Buffer
	require.NoError(t, RunMigrations(ctx, migrator, &out, "init"))
	require.NoError(t, RunMigrations(ctx, migrator, &out, "up"))
	pgutil.AssertTableExists(t, db, "sample_items")

	require.NoError(t, RunMigrations(ctx, migrator, &out, "down"))
	pgutil.AssertTableNotExists(t, db, "sample_items")
	assert.Contains(t, out.String(), "migrated to")

	require.Error(t, RunMigrations(ctx, migrator, &out, "sideways"))
	require.Error(t, RunMigrations(ctx, migrator, &out))
}
