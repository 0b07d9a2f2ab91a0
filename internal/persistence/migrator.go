package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Migrator applies SQL migration files in order. File naming follows the
// golang-migrate convention: {version}_{name}.up.sql / .down.sql.
type Migrator struct {
	db  *sql.DB
	dir string
}

func NewMigrator(db *sql.DB, dir string) *Migrator {
	return &Migrator{db: db, dir: dir}
}

// Up applies all pending up-migrations in version order.
func (m *Migrator) Up(ctx context.Context) error {
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	files, err := m.migrationFiles(".up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	for _, f := range files {
		if applied[versionOf(f)] {
			continue
		}
		if err := m.applyFile(ctx, f, `INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`, versionOf(f)); err != nil {
			return err
		}
		log.Printf("INFO: applied migration %s", f)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var version, filename string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &filename)
	if err == sql.ErrNoRows {
		log.Println("INFO: no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get latest migration: %w", err)
	}

	downFile := strings.Replace(filename, ".up.sql", ".down.sql", 1)
	if err := m.applyFile(ctx, downFile, `DELETE FROM public.schema_migrations WHERE version = $1`, version); err != nil {
		return err
	}
	log.Printf("INFO: rolled back migration %s", downFile)
	return nil
}

// applyFile runs one migration file plus its bookkeeping statement in a
// single transaction.
func (m *Migrator) applyFile(ctx context.Context, filename, record string, args ...interface{}) error {
	content, err := os.ReadFile(filepath.Join(m.dir, filename))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filename, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", filename, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("exec migration %s: %w", filename, err)
	}
	if record != "" {
		recordArgs := args
		if strings.Contains(record, "$2") {
			recordArgs = append(recordArgs, filename)
		}
		if _, err := tx.ExecContext(ctx, record, recordArgs...); err != nil {
			return fmt.Errorf("record migration %s: %w", filename, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", filename, err)
	}
	return nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("get applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) migrationFiles(suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// versionOf returns the numeric prefix of a migration filename.
func versionOf(filename string) string {
	parts := strings.SplitN(filename, "_", 2)
	return parts[0]
}
