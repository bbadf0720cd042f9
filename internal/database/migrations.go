package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// EnsureSchema creates any missing tables and constraints. It never drops or
// rewrites existing data and is safe to call on every start.
func (db *DB) EnsureSchema(ctx context.Context) error {
	log.Info().Msg("Ensuring database schema")

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	_, err := db.exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.queryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}
		log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

		if err := db.Transaction(ctx, func(tx *sql.Tx) error {
			statements := splitSQLStatements(migration.SQL)
			for i, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
				}
			}

			// OR IGNORE: another process may have recorded it first
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}

			return nil
		}); err != nil {
			return err
		}
	}

	log.Info().Msg("Database schema ready")
	return nil
}

// SchemaVersion returns the highest applied migration version
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var version int
	err := db.queryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	for line := range strings.SplitSeq(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

// Every statement uses IF NOT EXISTS so databases created by the previous
// service are adopted as-is.
var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- Submitters, identified by email
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				fam TEXT NOT NULL,
				name TEXT NOT NULL,
				otc TEXT,
				phone TEXT NOT NULL
			);

			-- Latitude/longitude kept as received text to preserve precision
			CREATE TABLE IF NOT EXISTS coords (
				id INTEGER PRIMARY KEY,
				latitude TEXT NOT NULL,
				longitude TEXT NOT NULL,
				height INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS pereval_added (
				id INTEGER PRIMARY KEY,
				beauty_title TEXT,
				title TEXT NOT NULL,
				other_titles TEXT,
				connect TEXT,
				add_time TEXT NOT NULL,
				user_id INTEGER NOT NULL REFERENCES users(id),
				coord_id INTEGER NOT NULL UNIQUE REFERENCES coords(id),
				level_winter TEXT NOT NULL DEFAULT '',
				level_summer TEXT NOT NULL DEFAULT '',
				level_autumn TEXT NOT NULL DEFAULT '',
				level_spring TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'new'
					CHECK (status IN ('new', 'pending', 'accepted', 'rejected'))
			);

			CREATE TABLE IF NOT EXISTS images (
				id INTEGER PRIMARY KEY,
				pereval_id INTEGER NOT NULL REFERENCES pereval_added(id) ON DELETE CASCADE,
				data TEXT NOT NULL,
				title TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_pereval_added_user_time ON pereval_added(user_id, add_time DESC);
			CREATE INDEX IF NOT EXISTS idx_images_pereval ON images(pereval_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "fstr_reference_tables",
		SQL: `
			-- Reference tables carried over from the FSTR pass catalogue
			CREATE TABLE IF NOT EXISTS pereval_areas (
				id INTEGER PRIMARY KEY,
				id_parent INTEGER NOT NULL,
				title TEXT
			);

			CREATE TABLE IF NOT EXISTS spr_activities_types (
				id INTEGER PRIMARY KEY,
				title TEXT
			);
		`,
	},
}
