// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskrunner hosts the periodic operator-facing jobs that keep the
// scheduler healthy without a human watching it: a one-shot reset of
// RUNNING tasks orphaned by an unclean restart, a periodic sweep that
// retries FAILED tasks still within their retry budget, and a periodic
// purge of old terminal jobs, grounded on the teacher's
// internal/taskManager service-registration style (package-level
// scheduler, Start/Shutdown, one Register* function per service).
package taskrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/eolog"
	"github.com/eocis/data-manager/internal/repository"
	"github.com/eocis/data-manager/internal/scheduler"
	"github.com/eocis/data-manager/internal/store"
	"github.com/go-co-op/gocron/v2"
)

var sched gocron.Scheduler

// Start resets running tasks left over from an unclean shutdown, then
// registers and starts the periodic retry-sweep and cleanup jobs.
func Start(db *store.Store, mgr *scheduler.Manager, cfg config.ProgramConfig) error {
	var err error
	sched, err = gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("taskrunner: create scheduler: %w", err)
	}

	if err := resetRunningTasks(db); err != nil {
		return err
	}

	if err := registerRetrySweep(db, mgr, cfg); err != nil {
		return err
	}
	if err := registerCleanup(db, cfg); err != nil {
		return err
	}

	sched.Start()
	return nil
}

// Shutdown stops the scheduler and waits for any in-flight job to finish.
func Shutdown() error {
	if sched == nil {
		return nil
	}
	return sched.Shutdown()
}

// resetRunningTasks runs once at startup (spec.md §4.4 resetRunningTasks):
// any task still RUNNING belongs to a worker lease that did not survive
// the previous process, so it is returned to NEW for re-queueing.
func resetRunningTasks(db *store.Store) error {
	var n int64
	err := db.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		n, err = repository.NewTaskRepository(tx).ResetRunningTasks()
		return err
	})
	if err != nil {
		return fmt.Errorf("taskrunner: reset running tasks: %w", err)
	}
	if n > 0 {
		eolog.Infof("taskrunner: reset %d running tasks to NEW after restart", n)
	}
	return nil
}

// registerRetrySweep periodically retries FAILED tasks that still have
// retry budget remaining. Normally FailTask retries inline; this sweep is
// the backstop for tasks that were marked FAILED by some path that did
// not go through the manager (e.g. a direct admin edit).
func registerRetrySweep(db *store.Store, mgr *scheduler.Manager, cfg config.ProgramConfig) error {
	_, err := sched.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			if err := sweepRetryableTasks(db, mgr, cfg); err != nil {
				eolog.Errorf("taskrunner: retry sweep: %s", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("taskrunner: register retry sweep: %w", err)
	}
	return nil
}

func sweepRetryableTasks(db *store.Store, mgr *scheduler.Manager, cfg config.ProgramConfig) error {
	var candidates []*repository.TaskWithJob
	err := db.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		candidates, err = repository.NewTaskRepository(tx).ListTasks([]repository.State{repository.StateFailed})
		return err
	})
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if c.Task.RetryCount >= cfg.MaxTaskRetries {
			continue
		}
		if err := mgr.RetryTask(context.Background(), c.Task.ParentJobID, c.Task.TaskName); err != nil {
			eolog.Errorf("taskrunner: retry sweep for %s/%s: %s", c.Task.ParentJobID, c.Task.TaskName, err)
			continue
		}
		if err := mgr.UpdateJob(context.Background(), c.Task.ParentJobID); err != nil {
			eolog.Errorf("taskrunner: retry sweep update job %s: %s", c.Task.ParentJobID, err)
		}
	}
	return nil
}

// registerCleanup periodically purges terminal jobs (and, by cascade,
// their tasks) older than CLEANUP_AFTER_SECS.
func registerCleanup(db *store.Store, cfg config.ProgramConfig) error {
	_, err := sched.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if err := cleanupOldJobs(db, cfg); err != nil {
				eolog.Errorf("taskrunner: cleanup: %s", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("taskrunner: register cleanup: %w", err)
	}
	return nil
}

func cleanupOldJobs(db *store.Store, cfg config.ProgramConfig) error {
	cutoff := time.Now().Add(-time.Duration(cfg.CleanupAfterSecs) * time.Second)
	var n int64
	err := db.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		n, err = repository.NewJobRepository(tx).PurgeCompletedBefore(store.EncodeTimestamp(cutoff))
		return err
	})
	if err != nil {
		return fmt.Errorf("taskrunner: cleanup old jobs: %w", err)
	}
	if n > 0 {
		eolog.Infof("taskrunner: purged %d terminal jobs older than %d seconds", n, cfg.CleanupAfterSecs)
	}
	return nil
}
