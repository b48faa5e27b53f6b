// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/eocis/data-manager/internal/store"
)

// TaskRepository is a mixin over a *store.Transaction implementing the task
// half of spec.md §4.4, grounded on the teacher's taskQuery.go composition
// of a *sqlx.Tx.
type TaskRepository struct {
	tx *store.Transaction
}

// NewTaskRepository wraps tx with the task repository operations.
func NewTaskRepository(tx *store.Transaction) *TaskRepository {
	return &TaskRepository{tx: tx}
}

type taskRow struct {
	JobID          string `db:"job_id"`
	TaskName       string `db:"task_name"`
	TaskType       string `db:"task_type"`
	Spec           string `db:"spec"`
	State          string `db:"state"`
	Error          string `db:"error"`
	SubmissionTime string `db:"submission_time"`
	CompletionTime string `db:"completion_time"`
	RemoteID       string `db:"remote_id"`
	RetryCount     int    `db:"retry_count"`
}

type taskWithJobRow struct {
	taskRow
	SubmitterID string `db:"submitter_id"`
	JobState    string `db:"job_state"`
}

const taskColumns = `job_id, task_name, task_type, spec, state, error, submission_time, completion_time, remote_id, retry_count`

// CreateTask inserts task (spec.md §4.4 createTask). Task names are unique
// only within their parent job, so the primary key is (job_id, task_name).
func (r *TaskRepository) CreateTask(task *Task) error {
	specJSON, err := json.Marshal(task.Spec)
	if err != nil {
		return fmt.Errorf("repository: marshal task spec: %w", err)
	}

	_, err = r.tx.Exec(fmt.Sprintf(`INSERT INTO tasks (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, taskColumns),
		task.ParentJobID, task.TaskName, task.TaskType, string(specJSON), string(task.State), task.Error,
		store.EncodeTimestamp(task.SubmissionTime), store.EncodeTimestamp(task.CompletionTime),
		task.RemoteID, task.RetryCount)
	if err != nil {
		return fmt.Errorf("repository: create task %s/%s: %w: %v", task.ParentJobID, task.TaskName, ErrConflict, err)
	}
	return nil
}

// UpdateTask writes every mutable task field by (job_id, task_name).
func (r *TaskRepository) UpdateTask(task *Task) error {
	res, err := r.tx.Exec(
		`UPDATE tasks SET state = ?, error = ?, submission_time = ?, completion_time = ?, remote_id = ?, retry_count = ?
		 WHERE job_id = ? AND task_name = ?`,
		string(task.State), task.Error, store.EncodeTimestamp(task.SubmissionTime),
		store.EncodeTimestamp(task.CompletionTime), task.RemoteID, task.RetryCount,
		task.ParentJobID, task.TaskName)
	if err != nil {
		return fmt.Errorf("repository: update task %s/%s: %w", task.ParentJobID, task.TaskName, err)
	}
	return requireOneRowAffected(res, task.ParentJobID+"/"+task.TaskName, ErrNotFound)
}

// GetTask returns the task named taskName under jobID, or ErrNotFound.
func (r *TaskRepository) GetTask(jobID, taskName string) (*Task, error) {
	var rows []taskRow
	err := r.tx.Select(&rows, `SELECT `+taskColumns+` FROM tasks WHERE job_id = ? AND task_name = ?`, jobID, taskName)
	if err != nil {
		return nil, fmt.Errorf("repository: get task %s/%s: %w", jobID, taskName, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("repository: task %s/%s: %w", jobID, taskName, ErrNotFound)
	}
	return hydrateTask(rows[0])
}

// ListJobTasks returns every task belonging to jobID.
func (r *TaskRepository) ListJobTasks(jobID string) ([]*Task, error) {
	var rows []taskRow
	err := r.tx.Select(&rows, `SELECT `+taskColumns+` FROM tasks WHERE job_id = ? ORDER BY task_name ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("repository: list tasks for job %s: %w", jobID, err)
	}
	out := make([]*Task, 0, len(rows))
	for _, row := range rows {
		task, err := hydrateTask(row)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

// ListTasks returns every task whose state is in states (or every task if
// states is empty), each paired with its parent job's submitter and state
// (spec.md §4.4 listTasks).
func (r *TaskRepository) ListTasks(states []State) ([]*TaskWithJob, error) {
	builder := sq.Select(
		"t.job_id", "t.task_name", "t.task_type", "t.spec", "t.state", "t.error",
		"t.submission_time", "t.completion_time", "t.remote_id", "t.retry_count",
		"j.submitter_id", "j.state AS job_state",
	).From("tasks t").Join("jobs j ON j.job_id = t.job_id").OrderBy("t.submission_time ASC")
	builder = withStateFilter(builder, "t.state", states)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("repository: build list tasks query: %w", err)
	}

	var rows []taskWithJobRow
	if err := r.tx.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("repository: list tasks: %w", err)
	}

	out := make([]*TaskWithJob, 0, len(rows))
	for _, row := range rows {
		task, err := hydrateTask(row.taskRow)
		if err != nil {
			return nil, err
		}
		out = append(out, &TaskWithJob{
			Task:        *task,
			SubmitterID: row.SubmitterID,
			JobState:    State(row.JobState),
		})
	}
	return out, nil
}

// CountTasksByState counts tasks whose state is in states, optionally
// restricted to a single job when jobID is non-empty.
func (r *TaskRepository) CountTasksByState(states []State, jobID string) (int, error) {
	builder := sq.Select("COUNT(*)").From("tasks")
	builder = withStateFilter(builder, "state", states)
	if jobID != "" {
		builder = builder.Where(sq.Eq{"job_id": jobID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("repository: build count tasks query: %w", err)
	}

	var count int
	if err := r.tx.Get(&count, query, args...); err != nil {
		return 0, fmt.Errorf("repository: count tasks: %w", err)
	}
	return count, nil
}

// CountTaskErrors counts the FAILED tasks belonging to jobID (spec.md §4.4:
// used by the job manager to decide a job's final error summary).
func (r *TaskRepository) CountTaskErrors(jobID string) (int, error) {
	return r.CountTasksByState([]State{StateFailed}, jobID)
}

// ResetRunningTasks moves every RUNNING task back to NEW, clearing its
// remote_id (spec.md §4.8: applied once at daemon startup to recover tasks
// orphaned by an unclean shutdown).
func (r *TaskRepository) ResetRunningTasks() (int64, error) {
	res, err := r.tx.Exec(`UPDATE tasks SET state = ?, remote_id = '' WHERE state = ?`,
		string(StateNew), string(StateRunning))
	if err != nil {
		return 0, fmt.Errorf("repository: reset running tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: reset running tasks rows affected: %w", err)
	}
	return n, nil
}

// RemoveTasksForJob deletes every task belonging to jobID.
func (r *TaskRepository) RemoveTasksForJob(jobID string) error {
	if _, err := r.tx.Exec(`DELETE FROM tasks WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("repository: remove tasks for job %s: %w", jobID, err)
	}
	return nil
}

// RemoveAllTasks deletes every task.
func (r *TaskRepository) RemoveAllTasks() error {
	if _, err := r.tx.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("repository: remove all tasks: %w", err)
	}
	return nil
}

func hydrateTask(row taskRow) (*Task, error) {
	var spec Spec
	if err := json.Unmarshal([]byte(row.Spec), &spec); err != nil {
		return nil, fmt.Errorf("repository: decode spec for task %s/%s: %w", row.JobID, row.TaskName, err)
	}
	submission, err := store.DecodeTimestamp(row.SubmissionTime)
	if err != nil {
		return nil, fmt.Errorf("repository: decode submission_time for task %s/%s: %w", row.JobID, row.TaskName, err)
	}
	completion, err := store.DecodeTimestamp(row.CompletionTime)
	if err != nil {
		return nil, fmt.Errorf("repository: decode completion_time for task %s/%s: %w", row.JobID, row.TaskName, err)
	}
	return &Task{
		ParentJobID:    row.JobID,
		TaskName:       row.TaskName,
		TaskType:       row.TaskType,
		Spec:           spec,
		State:          State(row.State),
		Error:          row.Error,
		SubmissionTime: submission,
		CompletionTime: completion,
		RemoteID:       row.RemoteID,
		RetryCount:     row.RetryCount,
	}, nil
}
