package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	// registers the "pgx" database/sql driver used by goose
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationTable records applied schema versions.
const MigrationTable = "schema_migrations"

// Migrate applies every pending migration to the database at dsn.
func Migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	return MigrateDB(ctx, db)
}

// MigrateDB applies every pending migration using db.
func MigrateDB(ctx context.Context, db *sql.DB) error {
	dir, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	goose.SetBaseFS(dir)
	goose.SetTableName(MigrationTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Migrations returns the embedded migration files.
func Migrations() fs.FS {
	dir, _ := fs.Sub(migrations, "migrations")
	return dir
}
