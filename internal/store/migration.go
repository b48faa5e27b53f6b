// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/eocis/data-manager/internal/eolog"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*
var migrationFiles embed.FS

// migrateUp applies every pending migration for the given backend. Unlike
// the teacher, which treats migration as an operator-triggered step guarded
// by a version check, a scheduler daemon brings its own database up to date
// on every start -- there is no separate admin step to forget to run.
func migrateUp(backend string, db *sql.DB) error {
	m, err := newMigrate(backend, db)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate %s: %w", backend, err)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("store: migrate version: %w", err)
	}
	if dirty {
		return fmt.Errorf("store: database left dirty at migration version %d", v)
	}

	eolog.Debugf("store: migrated %s database to version %d", backend, v)
	return nil
}

func newMigrate(backend string, db *sql.DB) (*migrate.Migrate, error) {
	switch backend {
	case "sqlite3":
		driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return nil, err
		}
		src, err := iofs.New(migrationFiles, "migrations/sqlite3")
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	case "postgres":
		driver, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return nil, err
		}
		src, err := iofs.New(migrationFiles, "migrations/postgres")
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "postgres", driver)
	default:
		return nil, fmt.Errorf("store: unsupported database driver %q", backend)
	}
}
