// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue implements the task queue of spec.md §4.5: a volatile
// scheduling surface of (job_id, task_name) pairs, independent of the
// tasks table itself so that a stale or already-consumed entry never
// blocks the rest of the queue.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eocis/data-manager/internal/store"
)

// Entry is one queued task reference.
type Entry struct {
	ID        int64  `db:"id"`
	JobID     string `db:"job_id"`
	TaskName  string `db:"task_name"`
	QueueTime string `db:"queue_time"`
}

// ErrEmpty is returned by DequeueNext when the queue has no entries.
var ErrEmpty = errors.New("queue: empty")

// Queue is a mixin over a *store.Transaction exposing task_queue
// operations.
type Queue struct {
	tx *store.Transaction
}

// New wraps tx with the task queue operations.
func New(tx *store.Transaction) *Queue {
	return &Queue{tx: tx}
}

// QueueTask appends (jobID, taskName) to the queue, stamped with
// queueTime (an encoded store timestamp supplied by the caller).
func (q *Queue) QueueTask(jobID, taskName, queueTime string) error {
	_, err := q.tx.Exec(`INSERT INTO task_queue (job_id, task_name, queue_time) VALUES (?, ?, ?)`,
		jobID, taskName, queueTime)
	if err != nil {
		return fmt.Errorf("queue: queue task %s/%s: %w", jobID, taskName, err)
	}
	return nil
}

// ClearQueue deletes every queue entry (spec.md §10: wipe/reset tooling).
func (q *Queue) ClearQueue() error {
	if _, err := q.tx.Exec(`DELETE FROM task_queue`); err != nil {
		return fmt.Errorf("queue: clear queue: %w", err)
	}
	return nil
}

// ClearJob deletes every queue entry belonging to jobID.
func (q *Queue) ClearJob(jobID string) error {
	if _, err := q.tx.Exec(`DELETE FROM task_queue WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("queue: clear job %s: %w", jobID, err)
	}
	return nil
}

// DequeueNext atomically removes and returns the oldest queue entry. It
// returns ErrEmpty when the queue has nothing to offer.
//
// On postgres this is the single statement spec.md §4.5 describes: a
// DELETE...RETURNING driven by a FOR UPDATE SKIP LOCKED subselect, so two
// daemons racing DequeueNext never hand out the same entry. sqlite3 has no
// SKIP LOCKED and no concurrent writers (the *sql.DB is capped to one
// connection, see store.Open), so a plain select-then-delete in the same
// transaction is equally atomic there -- just not across separate
// processes, which spec.md's Open Question (i) accepts as a sqlite3
// limitation.
func (q *Queue) DequeueNext(ctx context.Context, supportsLockedDequeue bool) (*Entry, error) {
	if supportsLockedDequeue {
		return q.dequeueLocked()
	}
	return q.dequeueSerialized()
}

func (q *Queue) dequeueLocked() (*Entry, error) {
	var e Entry
	err := q.tx.Get(&e, `
		DELETE FROM task_queue WHERE id = (
			SELECT id FROM task_queue
			ORDER BY queue_time ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_id, task_name, queue_time`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	return &e, nil
}

func (q *Queue) dequeueSerialized() (*Entry, error) {
	var e Entry
	err := q.tx.Get(&e, `
		SELECT id, job_id, task_name, queue_time FROM task_queue
		ORDER BY queue_time ASC, id ASC
		LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: dequeue select: %w", err)
	}

	if _, err := q.tx.Exec(`DELETE FROM task_queue WHERE id = ?`, e.ID); err != nil {
		return nil, fmt.Errorf("queue: dequeue delete %d: %w", e.ID, err)
	}
	return &e, nil
}

// Len reports the current queue depth.
func (q *Queue) Len() (int, error) {
	var n int
	if err := q.tx.Get(&n, `SELECT COUNT(*) FROM task_queue`); err != nil {
		return 0, fmt.Errorf("queue: len: %w", err)
	}
	return n, nil
}
