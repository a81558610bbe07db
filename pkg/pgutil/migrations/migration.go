// Package migrations holds migrations related helpers
package migrations

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const usageText = `Usage:
  go run cmd/ingestor/migrate/main.go -config config.yaml <command>

Supported commands:
  - init   - creates migration info table in the database
  - up     - runs all available migrations
  - down   - reverts last migration group
  - status - prints migration status
`

// Usage prints command usage and exits.
func Usage() {
	fmt.Fprint(os.Stderr, usageText)
	flag.PrintDefaults()
	os.Exit(2)
}

// Exitf prints the message followed by usage and exits.
func Exitf(s string, args ...any) {
	fmt.Fprintf(os.Stderr, s+"\n", args...)
	Usage()
}

// CreateSchema creates tables for the given models if they do not exist.
func CreateSchema(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// DropTables drops tables for the given models.
func DropTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewDropTable().
			Model(model).
			IfExists().
			Cascade().
			Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", model, err)
		}
	}
	return nil
}

// CreateModelIndexes creates one index per column, named idx_<table>_<column>.
// A column argument may list several comma separated columns for a composite index;
// the name then joins them with underscores.
func CreateModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	return createModelIndexes(ctx, db, model, false, columns)
}

// CreateModelUniqueIndexes is CreateModelIndexes with UNIQUE indexes.
func CreateModelUniqueIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	return createModelIndexes(ctx, db, model, true, columns)
}

func createModelIndexes(ctx context.Context, db bun.IDB, model any, unique bool, columns []string) error {
	for _, column := range columns {
		indexName, err := ModelIndexName(db, model, column)
		if err != nil {
			return err
		}
		q := db.NewCreateIndex().
			Model(model).
			Index(indexName).
			IfNotExists()
		for _, c := range strings.Split(column, ",") {
			q = q.Column(strings.TrimSpace(c))
		}
		if unique {
			q = q.Unique()
		}
		if _, err = q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", indexName, err)
		}
	}
	return nil
}

// DropModelIndexes drops indexes created by CreateModelIndexes.
func DropModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	for _, column := range columns {
		indexName, err := ModelIndexName(db, model, column)
		if err != nil {
			return err
		}
		if _, err = db.NewDropIndex().
			Index(indexName).
			IfExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("drop index %s: %w", indexName, err)
		}
	}
	return nil
}

// ModelIndexName returns idx_<table>_<columns>.
func ModelIndexName(db bun.IDB, model any, column string) (string, error) {
	if model == nil {
		return "", fmt.Errorf("model cannot be nil")
	}
	tableName := db.NewCreateIndex().Model(model).GetTableName()
	if tableName == "" {
		return "", fmt.Errorf("failed to resolve table name for model %T", model)
	}

	clean := strings.NewReplacer(`"`, "", ".", "_", ",", "_", " ", "")
	return fmt.Sprintf("idx_%s_%s", clean.Replace(tableName), clean.Replace(column)), nil
}

// RunMigrations runs the migrate command named by args[0], reporting to out.
func RunMigrations(ctx context.Context, migrator *migrate.Migrator, out io.Writer, args ...string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command provided")
	}

	switch args[0] {
	case "init":
		if err := migrator.Init(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "migration table created")
		return nil

	case "up":
		return withLock(ctx, migrator, out, func() error {
			group, err := migrator.Migrate(ctx)
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Fprintln(out, "no new migrations to run (database is up to date)")
			} else {
				fmt.Fprintf(out, "migrated to %s\n", group)
			}
			return nil
		})

	case "down":
		return withLock(ctx, migrator, out, func() error {
			group, err := migrator.Rollback(ctx)
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Fprintln(out, "no migrations to rollback")
			} else {
				fmt.Fprintf(out, "rolled back %s\n", group)
			}
			return nil
		})

	case "status":
		ms, err := migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "migrations: %s\n", ms)
		fmt.Fprintf(out, "unapplied migrations: %s\n", ms.Unapplied())
		fmt.Fprintf(out, "last migration group: %s\n", ms.LastGroup())
		return nil

	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func withLock(ctx context.Context, migrator *migrate.Migrator, out io.Writer, fn func() error) error {
	if err := migrator.Lock(ctx); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			fmt.Fprintf(out, "failed to release migration lock: %v\n", err)
		}
	}()
	return fn()
}
