// Package migrate applies the embedded schema migrations to a workspace
// database. The schema_version table pins the highest applied version so
// reopening an old workspace only runs what it is missing.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type step struct {
	version int
	file    string
	ddl     string
}

// Migrate brings db up to the latest embedded schema version. All steps
// run inside one transaction; a failing step leaves the schema untouched.
func Migrate(db *sql.DB) error {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return err
	}
	var steps []step
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &v); err != nil {
			return fmt.Errorf("migration file %s has no version prefix: %w", entry.Name(), err)
		}
		ddl, err := schemaFS.ReadFile("sql/" + entry.Name())
		if err != nil {
			return err
		}
		steps = append(steps, step{version: v, file: entry.Name(), ddl: string(ddl)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, s := range steps {
		if s.version <= current {
			continue
		}
		if _, err := tx.Exec(s.ddl); err != nil {
			return fmt.Errorf("apply %s: %w", s.file, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, s.version); err != nil {
			return fmt.Errorf("record version %d: %w", s.version, err)
		}
		current = s.version
	}
	return tx.Commit()
}
