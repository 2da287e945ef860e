// Package migrate applies the embedded SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/repository/sqlite"
	"github.com/and161185/moodle-elt/migrations"
)

// Up opens dsn with the driver for dialect ("postgres" or "sqlite") and runs
// all pending migrations. For sqlite, dsn is a file path.
func Up(ctx context.Context, dialect, dsn string) error {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case "postgres":
		db, err = sql.Open("pgx", dsn)
	case "sqlite":
		db, err = sql.Open(sqlite.DriverName, sqlite.DSN(dsn))
	default:
		return fmt.Errorf("%w: unsupported migration dialect %q", errs.ErrConfiguration, dialect)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	return UpDB(ctx, db, dialect)
}

// UpDB runs the migrations of dialect against an open database.
func UpDB(ctx context.Context, db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dialect)
}
