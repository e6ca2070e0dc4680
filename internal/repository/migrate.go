package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations
var migrations embed.FS

// Schemas with embedded migrations, one per service that owns a database.
const (
	SchemaAuth     = "auth"
	SchemaEmployee = "employee"
	SchemaHistory  = "history"
)

// Migrate applies the not yet applied migrations of schema in file name order, each in
// its own transaction.
func Migrate(ctx context.Context, db *sql.DB, schema string) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return err
	}

	files, err := migrationFiles(schema)
	if err != nil {
		return err
	}

	for _, file := range files {
		version := schema + "/" + strings.TrimSuffix(file, ".sql")

		applied := false
		if err := db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}

		body, err := migrations.ReadFile(path.Join("migrations", schema, file))
		if err != nil {
			return err
		}

		if err := applyMigration(ctx, db, version, string(body)); err != nil {
			return fmt.Errorf("migration %s failed: %w", version, err)
		}
	}

	return nil
}

func migrationFiles(schema string) ([]string, error) {
	entries, err := fs.ReadDir(migrations, path.Join("migrations", schema))
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", schema, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	return files, nil
}

func applyMigration(ctx context.Context, db *sql.DB, version, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return err
	}

	return tx.Commit()
}
