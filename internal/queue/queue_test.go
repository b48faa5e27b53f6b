// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBDriver = "sqlite3"
	cfg.DatabasePath = t.TempDir() + "/queue_test.db"

	s, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestQueueTaskAndDequeueFIFO(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		q := New(tx)
		if err := q.QueueTask("job-1", "task-a", "2026/01/01 00:00:00"); err != nil {
			return err
		}
		return q.QueueTask("job-1", "task-b", "2026/01/01 00:00:01")
	})
	require.NoError(t, err)

	var first, second *Entry
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		q := New(tx)
		var err error
		first, err = q.DequeueNext(context.Background(), s.SupportsLockedDequeue())
		if err != nil {
			return err
		}
		second, err = q.DequeueNext(context.Background(), s.SupportsLockedDequeue())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "task-a", first.TaskName)
	assert.Equal(t, "task-b", second.TaskName)
}

func TestDequeueNextEmptyQueue(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		_, err := New(tx).DequeueNext(context.Background(), s.SupportsLockedDequeue())
		return err
	})
	require.ErrorIs(t, err, ErrEmpty)
}

func TestDequeuedEntryIsConsumed(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return New(tx).QueueTask("job-1", "task-a", "2026/01/01 00:00:00")
	})
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		_, err := New(tx).DequeueNext(context.Background(), s.SupportsLockedDequeue())
		return err
	})
	require.NoError(t, err)

	var n int
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		n, err = New(tx).Len()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// TestConcurrentDequeueNeverDuplicates races many goroutines against the
// same queued entries. DequeueNext is meant to be the single most
// important correctness property of the core (spec.md §4.5): no two
// callers may ever be handed the same entry, and every entry is handed
// out exactly once.
func TestConcurrentDequeueNeverDuplicates(t *testing.T) {
	s := newTestStore(t)

	const entries = 50
	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		q := New(tx)
		for i := 0; i < entries; i++ {
			if err := q.QueueTask("job-1", fmt.Sprintf("task-%d", i), fmt.Sprintf("2026/01/01 00:00:%02d", i%60)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		got = make(map[string]int)
	)

	worker := func() {
		defer wg.Done()
		for {
			var entry *Entry
			err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
				var err error
				entry, err = New(tx).DequeueNext(context.Background(), s.SupportsLockedDequeue())
				return err
			})
			if errors.Is(err, ErrEmpty) {
				return
			}
			require.NoError(t, err)

			mu.Lock()
			got[entry.TaskName]++
			mu.Unlock()
		}
	}

	const workers = 8
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	wg.Wait()

	require.Len(t, got, entries)
	for taskName, count := range got {
		assert.Equalf(t, 1, count, "task %s was dequeued %d times", taskName, count)
	}
}

// TestDequeueRolledBackIsRestored confirms a dequeue inside a transaction
// that is later rolled back leaves the entry in the queue, ready to be
// dequeued again -- a worker that crashes mid-lease must not lose work.
func TestDequeueRolledBackIsRestored(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return New(tx).QueueTask("job-1", "task-a", "2026/01/01 00:00:00")
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		_, err := New(tx).DequeueNext(context.Background(), s.SupportsLockedDequeue())
		if err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		n, err = New(tx).Len()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var redequeued *Entry
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		redequeued, err = New(tx).DequeueNext(context.Background(), s.SupportsLockedDequeue())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "task-a", redequeued.TaskName)
}

func TestClearQueueAndClearJob(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		q := New(tx)
		if err := q.QueueTask("job-1", "task-a", "2026/01/01 00:00:00"); err != nil {
			return err
		}
		return q.QueueTask("job-2", "task-b", "2026/01/01 00:00:01")
	})
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return New(tx).ClearJob("job-1")
	})
	require.NoError(t, err)

	var n int
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		n, err = New(tx).Len()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return New(tx).ClearQueue()
	})
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		n, err = New(tx).Len()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
