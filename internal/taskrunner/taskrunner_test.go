// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package taskrunner

import (
	"context"
	"testing"
	"time"

	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/repository"
	"github.com/eocis/data-manager/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBDriver = "sqlite3"
	cfg.DatabasePath = t.TempDir() + "/taskrunner_test.db"

	s, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResetRunningTasksOnStartup(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		jobRepo := repository.NewJobRepository(tx)
		if err := jobRepo.CreateJob(&repository.Job{
			JobID: "job-1", SubmitterID: "alice", Spec: repository.Spec{},
			State: repository.StateRunning, SubmissionTime: time.Now(),
		}); err != nil {
			return err
		}
		return repository.NewTaskRepository(tx).CreateTask(&repository.Task{
			ParentJobID: "job-1", TaskName: "task-1", TaskType: "subset",
			Spec: repository.Spec{}, State: repository.StateRunning, RemoteID: "remote-1",
		})
	})
	require.NoError(t, err)

	require.NoError(t, resetRunningTasks(s))

	var task *repository.Task
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		task, err = repository.NewTaskRepository(tx).GetTask("job-1", "task-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StateNew, task.State)
	assert.Equal(t, "", task.RemoteID)
}

func TestCleanupOldJobsPurgesOnlyOldTerminalJobs(t *testing.T) {
	s := newTestStore(t)
	cfg := config.Defaults()
	cfg.CleanupAfterSecs = 3600

	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		jobRepo := repository.NewJobRepository(tx)
		if err := jobRepo.CreateJob(&repository.Job{
			JobID: "old-job", SubmitterID: "alice", Spec: repository.Spec{},
			State: repository.StateCompleted, SubmissionTime: time.Now().Add(-48 * time.Hour),
			CompletionTime: time.Now().Add(-2 * time.Hour),
		}); err != nil {
			return err
		}
		return jobRepo.CreateJob(&repository.Job{
			JobID: "recent-job", SubmitterID: "alice", Spec: repository.Spec{},
			State: repository.StateCompleted, SubmissionTime: time.Now().Add(-time.Hour),
			CompletionTime: time.Now(),
		})
	})
	require.NoError(t, err)

	require.NoError(t, cleanupOldJobs(s, cfg))

	var remaining []*repository.Job
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		remaining, err = repository.NewJobRepository(tx).ListJobs(nil)
		return err
	})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent-job", remaining[0].JobID)
}
