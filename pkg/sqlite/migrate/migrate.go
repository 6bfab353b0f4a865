// Package migrate is a minimal SQL migration runner for SQLite.
// Migrations are numbered files named like 000001_init.up.sql and
// 000001_init.down.sql, usually loaded from an embedded filesystem.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrator applies migrations and tracks them in a version table.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	tableName  string
}

// New creates a migrator tracking applied versions in tableName.
func New(db *sql.DB, tableName string) *Migrator {
	return &Migrator{db: db, tableName: tableName}
}

// LoadFromFS loads migrations from dir inside fsys.
func (m *Migrator) LoadFromFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, remainder, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", name, err)
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version}
			byVersion[version] = mig
		}
		switch {
		case strings.HasSuffix(remainder, ".up.sql"):
			mig.Name = strings.TrimSuffix(remainder, ".up.sql")
			mig.Up = string(content)
		case strings.HasSuffix(remainder, ".down.sql"):
			mig.Down = string(content)
		}
	}

	for _, mig := range byVersion {
		m.migrations = append(m.migrations, *mig)
	}
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
	return nil
}

// Up applies all pending migrations, each in its own transaction.
func (m *Migrator) Up() error {
	if err := m.ensureTable(); err != nil {
		return err
	}
	current, err := m.Version()
	if err != nil {
		return err
	}
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("apply migration %d: %w", mig.Version, err)
		}
	}
	return nil
}

// Down reverts the most recently applied migration. It is a no-op when no
// migration has been applied, and an error when the migration at the
// current version carries no down SQL.
func (m *Migrator) Down() error {
	current, err := m.Version()
	if err != nil {
		return err
	}
	if current == 0 {
		return nil
	}
	for _, mig := range m.migrations {
		if mig.Version != current {
			continue
		}
		if mig.Down == "" {
			return fmt.Errorf("migration %d has no down SQL", mig.Version)
		}
		if err := m.revert(mig); err != nil {
			return fmt.Errorf("revert migration %d: %w", mig.Version, err)
		}
		return nil
	}
	return fmt.Errorf("no migration loaded for applied version %d", current)
}

// Version returns the highest applied migration version, 0 if none.
func (m *Migrator) Version() (int, error) {
	if err := m.ensureTable(); err != nil {
		return 0, err
	}
	var version int
	err := m.db.QueryRow(fmt.Sprintf(
		"SELECT COALESCE(MAX(version), 0) FROM %s", m.tableName,
	)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query migration version: %w", err)
	}
	return version, nil
}

func (m *Migrator) ensureTable() error {
	_, err := m.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`, m.tableName))
	if err != nil {
		return fmt.Errorf("create table %s: %w", m.tableName, err)
	}
	return nil
}

func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.Up); err != nil {
		return fmt.Errorf("execute migration SQL: %w", err)
	}
	_, err = tx.Exec(fmt.Sprintf(
		"INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?)", m.tableName,
	), mig.Version, mig.Name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func (m *Migrator) revert(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.Down); err != nil {
		return fmt.Errorf("execute down SQL: %w", err)
	}
	_, err = tx.Exec(fmt.Sprintf(
		"DELETE FROM %s WHERE version = ?", m.tableName,
	), mig.Version)
	if err != nil {
		return fmt.Errorf("remove migration record: %w", err)
	}
	return tx.Commit()
}
