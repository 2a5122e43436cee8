package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS crops (
    pk INTEGER PRIMARY KEY,
    user_id INTEGER NOT NULL,
    id INTEGER NOT NULL,
    name TEXT NOT NULL,
    area TEXT NOT NULL,
    planting_date TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, id)
);

CREATE TABLE IF NOT EXISTS harvests (
    pk INTEGER PRIMARY KEY,
    user_id INTEGER NOT NULL,
    id INTEGER NOT NULL,
    crop_id INTEGER NOT NULL,
    date TEXT NOT NULL,
    yield_amount TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, id),
    FOREIGN KEY (user_id, crop_id) REFERENCES crops(user_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_harvests_crop ON harvests(user_id, crop_id);
`,
	},
	{
		Version:     2,
		Description: "Per-user data versions",
		SQL: `
CREATE TABLE IF NOT EXISTS user_versions (
    user_id INTEGER PRIMARY KEY,
    version INTEGER NOT NULL
);

CREATE TRIGGER IF NOT EXISTS trg_crops_insert AFTER INSERT ON crops BEGIN
    INSERT INTO user_versions (user_id, version) VALUES (NEW.user_id, 1)
    ON CONFLICT(user_id) DO UPDATE SET version = version + 1;
END;

CREATE TRIGGER IF NOT EXISTS trg_crops_update AFTER UPDATE ON crops BEGIN
    INSERT INTO user_versions (user_id, version) VALUES (NEW.user_id, 1)
    ON CONFLICT(user_id) DO UPDATE SET version = version + 1;
END;

CREATE TRIGGER IF NOT EXISTS trg_crops_delete AFTER DELETE ON crops BEGIN
    INSERT INTO user_versions (user_id, version) VALUES (OLD.user_id, 1)
    ON CONFLICT(user_id) DO UPDATE SET version = version + 1;
END;

CREATE TRIGGER IF NOT EXISTS trg_harvests_insert AFTER INSERT ON harvests BEGIN
    INSERT INTO user_versions (user_id, version) VALUES (NEW.user_id, 1)
    ON CONFLICT(user_id) DO UPDATE SET version = version + 1;
END;

CREATE TRIGGER IF NOT EXISTS trg_harvests_update AFTER UPDATE ON harvests BEGIN
    INSERT INTO user_versions (user_id, version) VALUES (NEW.user_id, 1)
    ON CONFLICT(user_id) DO UPDATE SET version = version + 1;
END;

CREATE TRIGGER IF NOT EXISTS trg_harvests_delete AFTER DELETE ON harvests BEGIN
    INSERT INTO user_versions (user_id, version) VALUES (OLD.user_id, 1)
    ON CONFLICT(user_id) DO UPDATE SET version = version + 1;
END;
`,
	},
	{
		Version:     3,
		Description: "Import batches",
		SQL: `
CREATE TABLE IF NOT EXISTS import_batches (
    id TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    imported_at DATETIME NOT NULL,
    source TEXT NOT NULL,
    format TEXT NOT NULL,
    crops INTEGER NOT NULL,
    harvests INTEGER NOT NULL,
    rejected INTEGER NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    UNIQUE(user_id, payload_hash)
);

CREATE INDEX IF NOT EXISTS idx_import_batches_user ON import_batches(user_id, imported_at);
`,
	},
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.log.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		s.log.Info("migration completed", "version", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
