// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler decomposes a submitted job into one task per
// (dataset, year), queues them, and aggregates task terminal transitions
// back into the owning job's state (spec.md §4.6).
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eocis/data-manager/internal/catalog"
	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/queue"
	"github.com/eocis/data-manager/internal/repository"
	"github.com/eocis/data-manager/internal/store"
	"github.com/google/uuid"
)

// Manager implements the job manager component (C6).
type Manager struct {
	db  *store.Store
	cfg config.ProgramConfig
}

// New binds a Manager to db, using cfg for OUTPUT_PATH, OUTPUT_FILENAME_PATTERN
// and MAX_TASK_RETRIES.
func New(db *store.Store, cfg config.ProgramConfig) *Manager {
	return &Manager{db: db, cfg: cfg}
}

// CreateTasks materialises and queues every task for job_id, grounded
// line-for-line on job_manager.py's create_tasks. Either every task is
// persisted and queued, or (on any error) none are -- the whole operation
// runs in one Transaction.
func (m *Manager) CreateTasks(ctx context.Context, jobID string) error {
	return m.db.WithTx(ctx, func(tx *store.Transaction) error {
		jobRepo := repository.NewJobRepository(tx)
		taskRepo := repository.NewTaskRepository(tx)
		catalogRepo := catalog.NewRepository(tx)
		q := queue.New(tx)

		job, err := jobRepo.GetJob(jobID)
		if err != nil {
			return fmt.Errorf("scheduler: create tasks for %s: %w", jobID, err)
		}

		startYear, err := specInt(job.Spec, "START_YEAR")
		if err != nil {
			return err
		}
		endYear, err := specInt(job.Spec, "END_YEAR")
		if err != nil {
			return err
		}
		bundleID := specString(job.Spec, "BUNDLE_ID", "")
		if bundleID == "" {
			return fmt.Errorf("scheduler: job %s spec missing BUNDLE_ID", jobID)
		}

		bundle, err := catalogRepo.GetBundle(bundleID)
		if err != nil {
			return fmt.Errorf("scheduler: load bundle %s: %w", bundleID, err)
		}
		if bundle == nil {
			return fmt.Errorf("scheduler: bundle %s not found", bundleID)
		}
		minx, miny, maxx, maxy := bundle.Bounds()

		rawVariables, _ := job.Spec["VARIABLES"].([]interface{})
		datasetVariables := map[string][]string{}
		datasetOrder := make([]string, 0, len(rawVariables))
		for _, raw := range rawVariables {
			ref, ok := raw.(string)
			if !ok {
				continue
			}
			datasetID, variableID, err := splitVariableRef(ref)
			if err != nil {
				return fmt.Errorf("scheduler: job %s: %w", jobID, err)
			}
			if _, seen := datasetVariables[datasetID]; !seen {
				datasetOrder = append(datasetOrder, datasetID)
			}
			datasetVariables[datasetID] = append(datasetVariables[datasetID], variableID)
		}

		outputPath := fmt.Sprintf("%s/%s", strings.TrimRight(m.cfg.OutputPath, "/"), jobID)

		for _, datasetID := range datasetOrder {
			dataset, err := catalogRepo.GetDataset(datasetID)
			if err != nil {
				return fmt.Errorf("scheduler: load dataset %s: %w", datasetID, err)
			}
			if dataset == nil {
				return fmt.Errorf("scheduler: dataset %s not found", datasetID)
			}

			metadata, _ := dataset.Spec["metadata"].(map[string]interface{})
			outputNamePattern := substituteMetadataPlaceholders(m.cfg.OutputFilenamePattern, metadata)

			for year := startYear; year <= endYear; year++ {
				taskSpec := cloneSpec(job.Spec)
				if year > startYear {
					taskSpec["START_MONTH"] = "1"
					taskSpec["START_DAY"] = "1"
				}
				if year < endYear {
					taskSpec["END_MONTH"] = "12"
					taskSpec["END_DAY"] = "31"
				}
				variableRefs := make([]interface{}, len(datasetVariables[datasetID]))
				for i, v := range datasetVariables[datasetID] {
					variableRefs[i] = v
				}
				taskSpec["VARIABLES"] = variableRefs
				taskSpec["IN_PATH"] = strings.ReplaceAll(dataset.Location, "{YEAR}", fmt.Sprintf("%d", year))
				taskSpec["OUT_PATH"] = fmt.Sprintf("%s/%d", outputPath, year)
				taskSpec["START_YEAR"] = fmt.Sprintf("%d", year)
				taskSpec["END_YEAR"] = fmt.Sprintf("%d", year)
				taskSpec["OUTPUT_NAME_PATTERN"] = outputNamePattern
				taskSpec["OUTPUT_FORMAT"] = job.Spec["OUTPUT_FORMAT"]
				if _, ok := taskSpec["LON_MIN"]; !ok {
					taskSpec["LON_MIN"] = minx
				}
				if _, ok := taskSpec["LON_MAX"]; !ok {
					taskSpec["LON_MAX"] = maxx
				}
				if _, ok := taskSpec["LAT_MIN"]; !ok {
					taskSpec["LAT_MIN"] = miny
				}
				if _, ok := taskSpec["LAT_MAX"]; !ok {
					taskSpec["LAT_MAX"] = maxy
				}

				task := &repository.Task{
					ParentJobID:    jobID,
					TaskName:       uuid.NewString(),
					TaskType:       "subset",
					Spec:           taskSpec,
					State:          repository.StateNew,
					SubmissionTime: time.Now(),
				}
				if err := taskRepo.CreateTask(task); err != nil {
					return fmt.Errorf("scheduler: create task for job %s dataset %s year %d: %w", jobID, datasetID, year, err)
				}
				if err := q.QueueTask(jobID, task.TaskName, store.EncodeTimestamp(task.SubmissionTime)); err != nil {
					return fmt.Errorf("scheduler: queue task %s/%s: %w", jobID, task.TaskName, err)
				}
			}
		}

		job.State = repository.StateRunning
		return jobRepo.UpdateJob(job)
	})
}

// UpdateJob re-evaluates job_id's aggregate state after a task terminal
// transition (spec.md §4.6 update_job).
func (m *Manager) UpdateJob(ctx context.Context, jobID string) error {
	return m.db.WithTx(ctx, func(tx *store.Transaction) error {
		jobRepo := repository.NewJobRepository(tx)
		taskRepo := repository.NewTaskRepository(tx)

		job, err := jobRepo.GetJob(jobID)
		if err != nil {
			return fmt.Errorf("scheduler: update job %s: %w", jobID, err)
		}

		active, err := taskRepo.CountTasksByState([]repository.State{repository.StateNew, repository.StateRunning}, jobID)
		if err != nil {
			return err
		}

		if active == 0 {
			failed, err := taskRepo.CountTaskErrors(jobID)
			if err != nil {
				return err
			}
			if failed == 0 {
				job.State = repository.StateCompleted
				job.Error = ""
			} else {
				job.State = repository.StateFailed
				job.Error = fmt.Sprintf("%d tasks failed", failed)
			}
			job.CompletionTime = time.Now()
		} else {
			job.State = repository.StateRunning
		}

		return jobRepo.UpdateJob(job)
	})
}

// CompleteTask is the worker-facing boundary for a successful task: mark
// it COMPLETED, then re-aggregate the parent job (spec.md §4.6 update_job).
func (m *Manager) CompleteTask(ctx context.Context, jobID, taskName string) error {
	err := m.db.WithTx(ctx, func(tx *store.Transaction) error {
		taskRepo := repository.NewTaskRepository(tx)
		task, err := taskRepo.GetTask(jobID, taskName)
		if err != nil {
			return fmt.Errorf("scheduler: complete task %s/%s: %w", jobID, taskName, err)
		}
		task.State = repository.StateCompleted
		task.CompletionTime = time.Now()
		return taskRepo.UpdateTask(task)
	})
	if err != nil {
		return err
	}
	return m.UpdateJob(ctx, jobID)
}

// FailTask is the worker-facing boundary for a failed task. It is the one
// place spec.md's retry policy is wired: when retry_count is still below
// MAX_TASK_RETRIES the task is reset to NEW and re-queued, the same way
// RetryTask does it;
// otherwise it stays FAILED with errMsg recorded, and either way the
// parent job is re-aggregated afterwards. The returned error always wraps
// ErrTaskRetryable or ErrTaskFatal on success (no transport failure of its
// own) so a caller can tell the two outcomes apart with errors.Is, even
// though both already took effect in the database.
func (m *Manager) FailTask(ctx context.Context, jobID, taskName, errMsg string) error {
	var retryable bool
	err := m.db.WithTx(ctx, func(tx *store.Transaction) error {
		taskRepo := repository.NewTaskRepository(tx)
		q := queue.New(tx)

		task, err := taskRepo.GetTask(jobID, taskName)
		if err != nil {
			return fmt.Errorf("scheduler: fail task %s/%s: %w", jobID, taskName, err)
		}

		if task.RetryCount < m.cfg.MaxTaskRetries {
			retryable = true
			task.State = repository.StateNew
			task.RetryCount++
			task.SubmissionTime = time.Time{}
			task.CompletionTime = time.Time{}
			task.Error = ""
			task.RemoteID = ""
			if err := taskRepo.UpdateTask(task); err != nil {
				return err
			}
			return q.QueueTask(jobID, taskName, store.EncodeTimestamp(time.Now()))
		}

		task.State = repository.StateFailed
		task.Error = errMsg
		task.CompletionTime = time.Now()
		return taskRepo.UpdateTask(task)
	})
	if err != nil {
		return err
	}
	if err := m.UpdateJob(ctx, jobID); err != nil {
		return err
	}

	if retryable {
		return fmt.Errorf("scheduler: task %s/%s: %w", jobID, taskName, repository.ErrTaskRetryable)
	}
	return fmt.Errorf("scheduler: task %s/%s: %w", jobID, taskName, repository.ErrTaskFatal)
}

// RetryTask implements the retry policy of spec.md §4.6: reset task to
// NEW, increment retry_count, clear timestamps/error, and re-queue it.
// Exported so admin tooling can force a retry of a FAILED task outside
// the automatic FailTask path.
func (m *Manager) RetryTask(ctx context.Context, jobID, taskName string) error {
	return m.db.WithTx(ctx, func(tx *store.Transaction) error {
		taskRepo := repository.NewTaskRepository(tx)
		q := queue.New(tx)

		task, err := taskRepo.GetTask(jobID, taskName)
		if err != nil {
			return fmt.Errorf("scheduler: retry task %s/%s: %w", jobID, taskName, err)
		}

		task.State = repository.StateNew
		task.RetryCount++
		task.SubmissionTime = time.Time{}
		task.CompletionTime = time.Time{}
		task.Error = ""
		task.RemoteID = ""

		if err := taskRepo.UpdateTask(task); err != nil {
			return err
		}
		return q.QueueTask(jobID, taskName, store.EncodeTimestamp(time.Now()))
	})
}

func substituteMetadataPlaceholders(pattern string, metadata map[string]interface{}) string {
	level := stringOr(metadata, "level", "LEVEL")
	product := stringOr(metadata, "product", "PRODUCT")
	version := stringOr(metadata, "version", "VERSION")

	out := strings.ReplaceAll(pattern, "{LEVEL}", level)
	out = strings.ReplaceAll(out, "{PRODUCT}", product)
	out = strings.ReplaceAll(out, "{VERSION}", version)
	return out
}

func stringOr(m map[string]interface{}, key, fallback string) string {
	if m == nil {
		return fallback
	}
	s, ok := m[key].(string)
	if !ok {
		return fallback
	}
	return s
}
