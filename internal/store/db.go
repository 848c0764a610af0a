// Package store persists one session's sign-in and user directory cache in
// sqlite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/chatsync/internal/store/migrations"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB is the session's chatsync.db. It holds the bearer token, so the file
// is kept readable by its owner only.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at path and brings its schema up to date.
func Open(path string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ownerOnly(path); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db := &DB{conn}
	from, to, err := db.Migrate()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Info("store opened",
		zap.String("path", path),
		zap.Uint("schema", to),
		zap.Bool("migrated", from != to))
	return db, nil
}

func ownerOnly(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("create db: %w", err)
	}
	_ = f.Close()
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restrict db: %w", err)
	}
	return nil
}

// Migrate applies the embedded migrations and reports the schema version
// before and after. A fresh database starts at version 0.
func (db *DB) Migrate() (from, to uint, err error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, 0, fmt.Errorf("migration source: %w", err)
	}
	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return 0, 0, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return 0, 0, fmt.Errorf("migration instance: %w", err)
	}

	if from, err = schemaVersion(m); err != nil {
		return 0, 0, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, from, fmt.Errorf("migrate from %d: %w", from, err)
	}
	if to, err = schemaVersion(m); err != nil {
		return from, 0, err
	}
	return from, to, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}
