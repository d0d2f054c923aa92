package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"calsync/internal/models"
)

const defaultRunListLimit = 50

// SaveRun stores a run and its failed drafts in one transaction. Saving the
// same ID again replaces the previous record.
func (db *DB) SaveRun(ctx context.Context, run *models.SubmissionRun) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
        INSERT INTO submission_runs (id, flow, range_start, range_end, started_at, finished_at,
            total_requested, total_success, total_failed, aborted, error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            flow = excluded.flow,
            range_start = excluded.range_start,
            range_end = excluded.range_end,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at,
            total_requested = excluded.total_requested,
            total_success = excluded.total_success,
            total_failed = excluded.total_failed,
            aborted = excluded.aborted,
            error = excluded.error`,
		run.ID,
		string(run.Flow),
		nullTime(run.RangeStart),
		nullTime(run.RangeEnd),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.TotalRequested,
		run.TotalSuccess,
		run.TotalFailed,
		run.Aborted,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM failed_entries WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear failed entries: %w", err)
	}

	if len(run.Failed) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO failed_entries (run_id, position, description, start_at, end_at, project_id, task_id)
            VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare failed entry insert: %w", err)
		}
		defer stmt.Close()

		for i, d := range run.Failed {
			if _, err := stmt.ExecContext(ctx, run.ID, i, d.Description, d.Start.UTC(), d.End.UTC(), d.ProjectID, d.TaskID); err != nil {
				return fmt.Errorf("failed to save failed entry %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run tx: %w", err)
	}
	return nil
}

// GetRun loads a run with its failed drafts.
func (db *DB) GetRun(ctx context.Context, id string) (*models.SubmissionRun, error) {
	row := db.QueryRowContext(ctx, `
        SELECT id, flow, range_start, range_end, started_at, finished_at,
               total_requested, total_success, total_failed, aborted, error
        FROM submission_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
        SELECT description, start_at, end_at, project_id, task_id
        FROM failed_entries WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load failed entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.TimeEntryDraft
		if err := rows.Scan(&d.Description, &d.Start, &d.End, &d.ProjectID, &d.TaskID); err != nil {
			return nil, fmt.Errorf("failed to scan failed entry: %w", err)
		}
		d.Start, d.End = d.Start.UTC(), d.End.UTC()
		run.Failed = append(run.Failed, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without their failed drafts.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*models.SubmissionRun, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}

	rows, err := db.QueryContext(ctx, `
        SELECT id, flow, range_start, range_end, started_at, finished_at,
               total_requested, total_success, total_failed, aborted, error
        FROM submission_runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.SubmissionRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRunsBefore removes runs started before cutoff and returns how many.
func (db *DB) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM submission_runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.SubmissionRun, error) {
	var (
		run        models.SubmissionRun
		flow       string
		rangeStart sql.NullTime
		rangeEnd   sql.NullTime
	)
	err := s.Scan(
		&run.ID,
		&flow,
		&rangeStart,
		&rangeEnd,
		&run.StartedAt,
		&run.FinishedAt,
		&run.TotalRequested,
		&run.TotalSuccess,
		&run.TotalFailed,
		&run.Aborted,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	run.Flow = models.Flow(flow)
	if rangeStart.Valid {
		run.RangeStart = rangeStart.Time.UTC()
	}
	if rangeEnd.Valid {
		run.RangeEnd = rangeEnd.Time.UTC()
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
