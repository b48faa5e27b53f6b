// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eocis/data-manager/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBDriver = "sqlite3"
	cfg.DatabasePath = t.TempDir() + "/test.db"

	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(context.Background(), func(tx *Transaction) error {
		_, err := tx.Exec(`INSERT INTO bundles (bundle_id, bundle_name, spec) VALUES (?, ?, ?)`,
			"b1", "test bundle", "{}")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.DB.Get(&count, `SELECT COUNT(*) FROM bundles WHERE bundle_id = ?`, "b1"))
	assert.Equal(t, 1, count)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)

	sentinel := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx *Transaction) error {
		if _, err := tx.Exec(`INSERT INTO bundles (bundle_id, bundle_name, spec) VALUES (?, ?, ?)`,
			"b2", "test bundle", "{}"); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, s.DB.Get(&count, `SELECT COUNT(*) FROM bundles WHERE bundle_id = ?`, "b2"))
	assert.Equal(t, 0, count)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	s := newTestStore(t)

	assert.Panics(t, func() {
		_ = s.WithTx(context.Background(), func(tx *Transaction) error {
			_, _ = tx.Exec(`INSERT INTO bundles (bundle_id, bundle_name, spec) VALUES (?, ?, ?)`,
				"b3", "test bundle", "{}")
			panic("kaboom")
		})
	})

	var count int
	require.NoError(t, s.DB.Get(&count, `SELECT COUNT(*) FROM bundles WHERE bundle_id = ?`, "b3"))
	assert.Equal(t, 0, count)
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)

	enc := EncodeTimestamp(now)
	assert.Equal(t, "2026/03/05 12:30:00", enc)

	dec, err := DecodeTimestamp(enc)
	require.NoError(t, err)
	assert.True(t, now.Equal(dec))

	assert.Equal(t, "", EncodeTimestamp(time.Time{}))
	zero, err := DecodeTimestamp("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestDateRoundTrip(t *testing.T) {
	d := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	enc := EncodeDate(d)
	assert.Equal(t, "2026/03/05", enc)

	dec, err := DecodeDate(enc)
	require.NoError(t, err)
	assert.True(t, d.Equal(dec))
}
