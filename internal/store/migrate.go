package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaVersion is the version a fully migrated database reports.
const schemaVersion = 2

type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

// migrations run in order, each once, inside its own transaction.
var migrations = []migration{
	{
		version: 1,
		name:    "relay_stats counters",
		apply: execAll(`
			CREATE TABLE IF NOT EXISTS relay_stats (
				day       TEXT NOT NULL,
				category  TEXT NOT NULL,
				outcome   TEXT NOT NULL,
				count     INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (day, category, outcome)
			)`),
	},
	{
		version: 2,
		name:    "relay_stats.last_at and category index",
		apply: func(tx *sql.Tx) error {
			if err := addColumn(tx, "relay_stats", "last_at", "INTEGER"); err != nil {
				return err
			}
			return execAll(`CREATE INDEX IF NOT EXISTS idx_relay_stats_cat ON relay_stats(category, outcome)`)(tx)
		},
	},
}

// RunMigrations brings db up to schemaVersion.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  INTEGER NOT NULL DEFAULT (unixepoch())
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := runOne(db, m); err != nil {
			return err
		}
		logger.Info("stats migration applied", "version", m.version, "name", m.name)
	}
	return nil
}

func runOne(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	if err := m.apply(tx); err != nil {
		return fmt.Errorf("migration v%d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		m.version, m.name,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.version, err)
	}
	return tx.Commit()
}

func execAll(stmts ...string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.Exec(s); err != nil {
				return err
			}
		}
		return nil
	}
}

// addColumn is a no-op when the column already exists, so databases that
// were patched by hand still migrate.
func addColumn(tx *sql.Tx, table, column, decl string) error {
	var n int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&n); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	_, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// GetSchemaVersion returns the applied schema version, 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}
