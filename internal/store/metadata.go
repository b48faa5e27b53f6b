// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"fmt"
	"time"
)

// SchemaVersionError reports that the metadata table does not agree with
// this binary's expected Schema identifier (spec.md §7 SchemaVersionError).
type SchemaVersionError struct {
	Found    string
	Expected string
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("store: database schema %q does not match expected schema %q", e.Found, e.Expected)
}

// checkMetadata verifies the metadata singleton row, writing it on first
// use of a freshly migrated, empty database and refusing to proceed if an
// existing row names a different schema. Ported from the source store's
// checkMetadata, which raises on a missing, duplicated, or mismatched
// metadata row.
func (s *Store) checkMetadata() error {
	var rows []struct {
		Schema       string `db:"schema"`
		CreationDate string `db:"creation_date"`
	}

	if err := s.DB.Select(&rows, `SELECT schema, creation_date FROM metadata`); err != nil {
		return fmt.Errorf("store: read metadata: %w", err)
	}

	switch len(rows) {
	case 0:
		_, err := s.DB.Exec(s.DB.Rebind(`INSERT INTO metadata (schema, creation_date) VALUES (?, ?)`),
			Schema, EncodeTimestamp(time.Now()))
		if err != nil {
			return fmt.Errorf("store: stamp metadata: %w", err)
		}
		return nil
	case 1:
		if rows[0].Schema != Schema {
			return &SchemaVersionError{Found: rows[0].Schema, Expected: Schema}
		}
		return nil
	default:
		return fmt.Errorf("store: metadata table has %d rows, expected exactly one", len(rows))
	}
}

