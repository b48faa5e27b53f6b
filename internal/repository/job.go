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

// JobRepository is a mixin over a *store.Transaction implementing the job
// half of spec.md §4.4, grounded on the teacher's jobQuery.go squirrel
// usage and NamedJobInsert pattern.
type JobRepository struct {
	tx *store.Transaction
}

// NewJobRepository wraps tx with the job repository operations.
func NewJobRepository(tx *store.Transaction) *JobRepository {
	return &JobRepository{tx: tx}
}

type jobRow struct {
	JobID          string `db:"job_id"`
	SubmitterID    string `db:"submitter_id"`
	Spec           string `db:"spec"`
	State          string `db:"state"`
	Error          string `db:"error"`
	SubmissionTime string `db:"submission_time"`
	CompletionTime string `db:"completion_time"`
}

const jobColumns = `job_id, submitter_id, spec, state, error, submission_time, completion_time`

// CreateJob inserts job with encoded timestamps and a serialised spec
// (spec.md §4.4 createJob). A re-insert of an existing job_id surfaces
// ErrConflict.
func (r *JobRepository) CreateJob(job *Job) error {
	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("repository: marshal job spec: %w", err)
	}

	_, err = r.tx.Exec(fmt.Sprintf(`INSERT INTO jobs (%s) VALUES (?, ?, ?, ?, ?, ?, ?)`, jobColumns),
		job.JobID, job.SubmitterID, string(specJSON), string(job.State), job.Error,
		store.EncodeTimestamp(job.SubmissionTime), store.EncodeTimestamp(job.CompletionTime))
	if err != nil {
		return fmt.Errorf("repository: create job %s: %w: %v", job.JobID, ErrConflict, err)
	}
	return nil
}

// UpdateJob writes submission_time, completion_time, state and error by
// job_id (spec.md §4.4 updateJob).
func (r *JobRepository) UpdateJob(job *Job) error {
	res, err := r.tx.Exec(
		`UPDATE jobs SET state = ?, error = ?, submission_time = ?, completion_time = ? WHERE job_id = ?`,
		string(job.State), job.Error, store.EncodeTimestamp(job.SubmissionTime),
		store.EncodeTimestamp(job.CompletionTime), job.JobID)
	if err != nil {
		return fmt.Errorf("repository: update job %s: %w", job.JobID, err)
	}
	return requireOneRowAffected(res, job.JobID, ErrNotFound)
}

// ExistsJob reports whether job_id is present.
func (r *JobRepository) ExistsJob(jobID string) (bool, error) {
	var count int
	err := r.tx.Get(&count, `SELECT COUNT(*) FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return false, fmt.Errorf("repository: exists job %s: %w", jobID, err)
	}
	return count > 0, nil
}

// GetJob returns the job named by id, or ErrNotFound.
func (r *JobRepository) GetJob(jobID string) (*Job, error) {
	var rows []jobRow
	err := r.tx.Select(&rows, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("repository: get job %s: %w", jobID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("repository: job %s: %w", jobID, ErrNotFound)
	}
	return hydrateJob(rows[0])
}

// ListJobs returns every job whose state is in states, or every job if
// states is empty, ordered by submission time ascending.
func (r *JobRepository) ListJobs(states []State) ([]*Job, error) {
	builder := sq.Select(splitColumns(jobColumns)...).From("jobs").OrderBy("submission_time ASC")
	builder = withStateFilter(builder, "state", states)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("repository: build list jobs query: %w", err)
	}

	var rows []jobRow
	if err := r.tx.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("repository: list jobs: %w", err)
	}
	return hydrateJobs(rows)
}

// ListJobsBySubmitter returns every job submitted by submitterID, ordered
// by submission time ascending.
func (r *JobRepository) ListJobsBySubmitter(submitterID string) ([]*Job, error) {
	var rows []jobRow
	err := r.tx.Select(&rows,
		`SELECT `+jobColumns+` FROM jobs WHERE submitter_id = ? ORDER BY submission_time ASC`, submitterID)
	if err != nil {
		return nil, fmt.Errorf("repository: list jobs for submitter %s: %w", submitterID, err)
	}
	return hydrateJobs(rows)
}

// CountJobsByState counts jobs whose state is in states.
func (r *JobRepository) CountJobsByState(states []State) (int, error) {
	builder := sq.Select("COUNT(*)").From("jobs")
	builder = withStateFilter(builder, "state", states)

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("repository: build count jobs query: %w", err)
	}

	var count int
	if err := r.tx.Get(&count, query, args...); err != nil {
		return 0, fmt.Errorf("repository: count jobs: %w", err)
	}
	return count, nil
}

// RemoveJob deletes the job named by id; its tasks cascade-delete via the
// jobs→tasks foreign key.
func (r *JobRepository) RemoveJob(jobID string) error {
	if _, err := r.tx.Exec(`DELETE FROM jobs WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("repository: remove job %s: %w", jobID, err)
	}
	return nil
}

// RemoveAllJobs deletes every job (and, by cascade, every task).
func (r *JobRepository) RemoveAllJobs() error {
	if _, err := r.tx.Exec(`DELETE FROM jobs`); err != nil {
		return fmt.Errorf("repository: remove all jobs: %w", err)
	}
	return nil
}

// PurgeCompletedBefore deletes every terminal (COMPLETED or FAILED) job
// whose completion_time is older than cutoff (an encoded store
// timestamp), cascading to its tasks. Used by the periodic cleanup sweep
// (CLEANUP_AFTER_SECS).
func (r *JobRepository) PurgeCompletedBefore(cutoff string) (int64, error) {
	res, err := r.tx.Exec(`
		DELETE FROM jobs
		WHERE state IN (?, ?) AND completion_time != '' AND completion_time < ?`,
		string(StateCompleted), string(StateFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository: purge completed jobs before %s: %w", cutoff, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: purge completed jobs rows affected: %w", err)
	}
	return n, nil
}

func hydrateJob(row jobRow) (*Job, error) {
	var spec Spec
	if err := json.Unmarshal([]byte(row.Spec), &spec); err != nil {
		return nil, fmt.Errorf("repository: decode spec for job %s: %w", row.JobID, err)
	}
	submission, err := store.DecodeTimestamp(row.SubmissionTime)
	if err != nil {
		return nil, fmt.Errorf("repository: decode submission_time for job %s: %w", row.JobID, err)
	}
	completion, err := store.DecodeTimestamp(row.CompletionTime)
	if err != nil {
		return nil, fmt.Errorf("repository: decode completion_time for job %s: %w", row.JobID, err)
	}
	return &Job{
		JobID:          row.JobID,
		SubmitterID:    row.SubmitterID,
		Spec:           spec,
		State:          State(row.State),
		Error:          row.Error,
		SubmissionTime: submission,
		CompletionTime: completion,
	}, nil
}

func hydrateJobs(rows []jobRow) ([]*Job, error) {
	out := make([]*Job, 0, len(rows))
	for _, row := range rows {
		job, err := hydrateJob(row)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
