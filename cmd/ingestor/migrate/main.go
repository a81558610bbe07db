package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/migrations/ingestdb"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil"
	mghelper "github.com/james-langridge/mars-vista-api-sub000/pkg/pgutil/migrations"

	"github.com/uptrace/bun/migrate"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for ingestion database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, ingestdb.Migrations)

	if err = mghelper.RunMigrations(ctx, migrator, os.Stdout, flag.Args()...); err != nil {
		mghelper.Exitf("%s", err.Error())
	}
}
