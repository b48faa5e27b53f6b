// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import "time"

// State is a Job or Task lifecycle state (spec.md §3's state machines).
type State string

const (
	StateNew       State = "NEW"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Spec is the opaque property bag carried on a Job or Task (spec.md §9:
// "Property bags"). The repository never interprets unknown keys.
type Spec map[string]interface{}

// Job is a user request to produce one artifact (spec.md §3).
type Job struct {
	JobID          string
	SubmitterID    string
	Spec           Spec
	State          State
	SubmissionTime time.Time
	CompletionTime time.Time
	Error          string
}

// Task is a unit of work owned by exactly one job (spec.md §3).
type Task struct {
	ParentJobID    string
	TaskName       string
	TaskType       string
	Spec           Spec
	State          State
	SubmissionTime time.Time
	CompletionTime time.Time
	RemoteID       string
	Error          string
	RetryCount     int
}

// TaskWithJob is the tuple returned by ListTasks: a task alongside its
// parent job's submitter and state (spec.md §4.4 listTasks).
type TaskWithJob struct {
	Task        Task
	SubmitterID string
	JobState    State
}
