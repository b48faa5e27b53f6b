// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store owns the connection to the backing relational database,
// ensures the schema is created and verified, and provides the
// Transaction factory described in spec.md §4.1/§4.2.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/eolog"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

// Schema is the identifier written to the metadata table on first open.
// Reopening a database stamped with a different identifier fails startup
// (spec.md §4.1, §7 SchemaVersionError, §8 invariant 10).
const Schema = "V1"

// Store owns one *sqlx.DB and the per-driver dialect quirks (placeholder
// style, whether atomic SKIP LOCKED dequeue is available) that callers
// need to know about.
type Store struct {
	DB     *sqlx.DB
	Driver string
	cfg    config.ProgramConfig
}

var sqliteHooksRegistered sync.Once

// Open connects to the database named by cfg.DatabasePath using the driver
// named by cfg.DBDriver ("sqlite3" or "postgres"), creates the schema if
// it does not exist yet, and verifies the metadata.schema singleton row.
func Open(cfg config.ProgramConfig) (*Store, error) {
	var dbHandle *sqlx.DB
	var err error

	switch cfg.DBDriver {
	case "sqlite3":
		sqliteHooksRegistered.Do(func() {
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
		})
		dbHandle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", cfg.DatabasePath))
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite3 %s: %w", cfg.DatabasePath, err)
		}
		// sqlite does not multiplex writers; more than one open connection
		// would just mean waiting on the same file lock (spec.md §9).
		dbHandle.SetMaxOpenConns(1)
	case "postgres":
		dbHandle, err = sqlx.Open("postgres", cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		dbHandle.SetConnMaxLifetime(3 * time.Minute)
		dbHandle.SetMaxOpenConns(10)
		dbHandle.SetMaxIdleConns(10)
	default:
		return nil, fmt.Errorf("store: unsupported database driver %q", cfg.DBDriver)
	}

	s := &Store{DB: dbHandle, Driver: cfg.DBDriver, cfg: cfg}

	if err := migrateUp(cfg.DBDriver, dbHandle.DB); err != nil {
		return nil, err
	}

	if err := s.checkMetadata(); err != nil {
		return nil, err
	}

	eolog.Infof("store: opened %s database", cfg.DBDriver)
	return s, nil
}

// SupportsLockedDequeue reports whether this backend can run the single
// statement "SELECT ... FOR UPDATE SKIP LOCKED" atomic dequeue (spec.md
// §9 Open Question (i): only the server backend implements it).
func (s *Store) SupportsLockedDequeue() bool {
	return s.Driver == "postgres"
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}
