// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eocis/data-manager/internal/catalog"
	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/queue"
	"github.com/eocis/data-manager/internal/repository"
	"github.com/eocis/data-manager/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) (*store.Store, config.ProgramConfig) {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBDriver = "sqlite3"
	cfg.DatabasePath = t.TempDir() + "/scheduler_test.db"
	cfg.OutputPath = t.TempDir() + "/output"

	s, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, cfg
}

func seedCatalog(t *testing.T, s *store.Store) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "datasets"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bundles"), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "datasets", "sst.yaml"), []byte(`
name: Sea Surface Temperature
temporal_resolution: daily
spatial_resolution: "0.05"
start_date: 01-01-2000
location: "/data/sst/{YEAR}/*.nc"
variables:
  sst:
    name: Sea Surface Temperature
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundles", "ocean.yaml"), []byte(`
name: Ocean Bundle
datasets:
  - sst
minx: -10
miny: -10
maxx: 10
maxy: 10
`), 0o644))

	datasets, err := catalog.LoadDatasets(dir)
	require.NoError(t, err)
	bundles, err := catalog.LoadBundles(dir)
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return catalog.NewRepository(tx).Populate(datasets, bundles)
	})
	require.NoError(t, err)
}

// seedMultiDatasetCatalog populates a bundle spanning two datasets, so a
// job referencing both exercises the N datasets x M years task count
// (spec.md §4.6 create_tasks), not just the single-dataset case.
func seedMultiDatasetCatalog(t *testing.T, s *store.Store) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "datasets"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bundles"), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "datasets", "sst.yaml"), []byte(`
name: Sea Surface Temperature
temporal_resolution: daily
spatial_resolution: "0.05"
start_date: 01-01-2000
location: "/data/sst/{YEAR}/*.nc"
variables:
  sst:
    name: Sea Surface Temperature
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "datasets", "chlor.yaml"), []byte(`
name: Chlorophyll-a
temporal_resolution: daily
spatial_resolution: "0.05"
start_date: 01-01-2000
location: "/data/chlor/{YEAR}/*.nc"
variables:
  chlor_a:
    name: Chlorophyll-a Concentration
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundles", "ocean.yaml"), []byte(`
name: Ocean Bundle
datasets:
  - sst
  - chlor
minx: -10
miny: -10
maxx: 10
maxy: 10
`), 0o644))

	datasets, err := catalog.LoadDatasets(dir)
	require.NoError(t, err)
	bundles, err := catalog.LoadBundles(dir)
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return catalog.NewRepository(tx).Populate(datasets, bundles)
	})
	require.NoError(t, err)
}

func submitJob(t *testing.T, s *store.Store, jobID string) {
	t.Helper()
	job := &repository.Job{
		JobID:       jobID,
		SubmitterID: "alice",
		Spec: repository.Spec{
			"BUNDLE_ID":  "ocean",
			"VARIABLES":  []interface{}{"sst:sst"},
			"START_YEAR": "2020",
			"END_YEAR":   "2021",
		},
		State:          repository.StateNew,
		SubmissionTime: time.Now(),
	}
	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return repository.NewJobRepository(tx).CreateJob(job)
	})
	require.NoError(t, err)
}

func TestCreateTasksOneTaskPerYear(t *testing.T) {
	s, cfg := newTestEnv(t)
	seedCatalog(t, s)
	submitJob(t, s, "job-1")

	m := New(s, cfg)
	require.NoError(t, m.CreateTasks(context.Background(), "job-1"))

	var tasks []*repository.Task
	var job *repository.Job
	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		tasks, err = repository.NewTaskRepository(tx).ListJobTasks("job-1")
		if err != nil {
			return err
		}
		job, err = repository.NewJobRepository(tx).GetJob("job-1")
		return err
	})
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, repository.StateRunning, job.State)

	for _, task := range tasks {
		assert.Equal(t, repository.StateNew, task.State)
		assert.Contains(t, task.Spec, "IN_PATH")
		assert.Equal(t, float64(-10), task.Spec["LON_MIN"])
	}

	var queueLen int
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		queueLen, err = queue.New(tx).Len()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, queueLen)
}

func TestCreateTasksOneTaskPerDatasetPerYear(t *testing.T) {
	s, cfg := newTestEnv(t)
	seedMultiDatasetCatalog(t, s)

	job := &repository.Job{
		JobID:       "job-multi",
		SubmitterID: "alice",
		Spec: repository.Spec{
			"BUNDLE_ID":  "ocean",
			"VARIABLES":  []interface{}{"sst:sst", "chlor:chlor_a"},
			"START_YEAR": "2020",
			"END_YEAR":   "2021",
		},
		State:          repository.StateNew,
		SubmissionTime: time.Now(),
	}
	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return repository.NewJobRepository(tx).CreateJob(job)
	})
	require.NoError(t, err)

	m := New(s, cfg)
	require.NoError(t, m.CreateTasks(context.Background(), "job-multi"))

	var tasks []*repository.Task
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		tasks, err = repository.NewTaskRepository(tx).ListJobTasks("job-multi")
		return err
	})
	require.NoError(t, err)

	// 2 datasets x 2 years = 4 tasks.
	require.Len(t, tasks, 4)

	inPaths := make(map[string]int)
	for _, task := range tasks {
		inPath, _ := task.Spec["IN_PATH"].(string)
		inPaths[inPath]++
	}
	assert.Len(t, inPaths, 4, "each task should have a distinct IN_PATH (dataset x year)")

	var queueLen int
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		queueLen, err = queue.New(tx).Len()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 4, queueLen)
}

func TestUpdateJobCompletesWhenAllTasksDone(t *testing.T) {
	s, cfg := newTestEnv(t)
	seedCatalog(t, s)
	submitJob(t, s, "job-1")

	m := New(s, cfg)
	require.NoError(t, m.CreateTasks(context.Background(), "job-1"))

	var tasks []*repository.Task
	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		tasks, err = repository.NewTaskRepository(tx).ListJobTasks("job-1")
		return err
	})
	require.NoError(t, err)

	for _, task := range tasks {
		require.NoError(t, m.CompleteTask(context.Background(), "job-1", task.TaskName))
	}

	var job *repository.Job
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		job, err = repository.NewJobRepository(tx).GetJob("job-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StateCompleted, job.State)
	assert.False(t, job.CompletionTime.IsZero())
}

func TestFailTaskRetriesUntilExhausted(t *testing.T) {
	s, cfg := newTestEnv(t)
	cfg.MaxTaskRetries = 1
	seedCatalog(t, s)
	submitJob(t, s, "job-1")

	m := New(s, cfg)
	require.NoError(t, m.CreateTasks(context.Background(), "job-1"))

	var tasks []*repository.Task
	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		tasks, err = repository.NewTaskRepository(tx).ListJobTasks("job-1")
		return err
	})
	require.NoError(t, err)
	taskName := tasks[0].TaskName

	// First failure: retry_count 0 < MaxTaskRetries 1, so it's retried.
	err = m.FailTask(context.Background(), "job-1", taskName, "boom")
	require.ErrorIs(t, err, repository.ErrTaskRetryable)

	var retried *repository.Task
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		retried, err = repository.NewTaskRepository(tx).GetTask("job-1", taskName)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StateNew, retried.State)
	assert.Equal(t, 1, retried.RetryCount)

	// Second failure: retry_count 1 is no longer < MaxTaskRetries 1, so it fails for good.
	err = m.FailTask(context.Background(), "job-1", taskName, "boom again")
	require.ErrorIs(t, err, repository.ErrTaskFatal)

	var final *repository.Task
	var job *repository.Job
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		final, err = repository.NewTaskRepository(tx).GetTask("job-1", taskName)
		if err != nil {
			return err
		}
		job, err = repository.NewJobRepository(tx).GetJob("job-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StateFailed, final.State)
	assert.Equal(t, "boom again", final.Error)
	// The job's other task (the second year) is still NEW, so the job stays RUNNING.
	assert.Equal(t, repository.StateRunning, job.State)
}
