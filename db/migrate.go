package db

import (
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/sym"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationDir = "sqlite/migrations"

// Migrate applies pending migrations in filename order. The version is the
// filename prefix before the first underscore; 000 creates schema_migrations
// itself. Each migration commits with its version row or not at all.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	files, err := migrationFiles()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	pending := 0
	for _, name := range files {
		version, _, _ := strings.Cut(name, "_")
		if applied[version] {
			logger.Debugw("Migration already applied", "migration", name)
			continue
		}
		logger.Infow("Applying migration", "migration", name, "version", version)
		if err := apply(db, name, version); err != nil {
			return err
		}
		pending++
	}

	logger.Infow("Schema ready", "symbol", sym.DB, "migrations", len(files), "applied", pending)
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrations, migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// appliedVersions is empty on a fresh database, before 000 has run.
func appliedVersions(db *sql.DB) (map[string]bool, error) {
	var exists int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'",
	).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}
	out := make(map[string]bool)
	if exists == 0 {
		return out, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		out[v] = true
	}
	return out, rows.Err()
}

func apply(db *sql.DB, name, version string) error {
	body, err := migrations.ReadFile(path.Join(migrationDir, name))
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin %s", name)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", name)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return errors.Wrapf(err, "record %s", name)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", name)
}
