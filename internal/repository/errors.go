// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repository implements the job/task CRUD and query operations of
// spec.md §4.4 against a *store.Transaction.
package repository

import "errors"

// Sentinel errors modelling the error kinds of spec.md §7 that don't carry
// structured fields, generalising the teacher's single ErrNotFound
// sentinel in job.go to the whole family.
var (
	// ErrNotFound is returned by a get-by-id operation that found nothing.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when an insert collides with an existing
	// primary key (e.g. re-creating an existing job).
	ErrConflict = errors.New("repository: conflict")
	// ErrTaskRetryable marks a worker-reported task failure that still has
	// retries left; Manager.FailTask returns it after it has already reset
	// the task to NEW and re-queued it.
	ErrTaskRetryable = errors.New("repository: task failed, retry available")
	// ErrTaskFatal marks a worker-reported task failure with retries
	// exhausted; it surfaces on the parent job's Error field.
	ErrTaskFatal = errors.New("repository: task failed, retries exhausted")
)
