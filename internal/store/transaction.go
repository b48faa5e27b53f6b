// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Transaction wraps a single *sqlx.Tx. All repository operations that need
// more than one statement to stay atomic take a *Transaction rather than
// reaching back into the Store, so the caller can compose several of them
// behind a single commit (spec.md §4.2: a job and its first batch of tasks
// are created in one breath).
type Transaction struct {
	tx     *sqlx.Tx
	Driver string
}

func (t *Transaction) Exec(query string, args ...interface{}) (sql.Result, error) {
	return t.tx.Exec(t.tx.Rebind(query), args...)
}

func (t *Transaction) NamedExec(query string, arg interface{}) (sql.Result, error) {
	return t.tx.NamedExec(query, arg)
}

func (t *Transaction) Get(dest interface{}, query string, args ...interface{}) error {
	return t.tx.Get(dest, t.tx.Rebind(query), args...)
}

func (t *Transaction) Select(dest interface{}, query string, args ...interface{}) error {
	return t.tx.Select(dest, t.tx.Rebind(query), args...)
}

// Tx exposes the underlying *sqlx.Tx for squirrel query builders that run
// their statements themselves (RunWith).
func (t *Transaction) Tx() *sqlx.Tx {
	return t.tx
}

// WithTx opens a transaction, runs fn, and commits on a nil return or rolls
// back otherwise -- on every exit path, including a panic propagating out
// of fn, which is re-thrown after the rollback. Every multi-statement
// repository operation goes through here instead of the teacher's
// TransactionInit/TransactionCommit/TransactionEnd trio, so there is
// exactly one place a caller can get commit/rollback/release wrong: none.
func (s *Store) WithTx(ctx context.Context, fn func(*Transaction) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransactionWait())
	defer cancel()

	sqlTx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	t := &Transaction{tx: sqlTx, Driver: s.Driver}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// TimestampLayout is the on-disk encoding of a datetime value, shared by
// every repository that stores a submission_time/completion_time/queue_time
// column.
const TimestampLayout = "2006/01/02 15:04:05"

// DateLayout is the on-disk encoding of a date-only value (dataset
// start and end dates).
const DateLayout = "2006/01/02"

// EncodeTimestamp renders t as the on-disk datetime string. The zero time
// encodes as the empty string, mirroring the source store's treatment of
// "not yet set" columns.
func EncodeTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// DecodeTimestamp parses the on-disk datetime string, returning the zero
// time for an empty string rather than an error.
func DecodeTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimestampLayout, s)
}

// EncodeDate renders t as the on-disk date-only string.
func EncodeDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// DecodeDate parses the on-disk date-only string, returning the zero time
// for an empty string.
func DecodeDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}
