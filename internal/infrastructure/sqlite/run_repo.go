package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// PipelineRunRepo implements [domain.PipelineRunRepository] backed by
// SQLite.
type PipelineRunRepo struct {
	DB *sql.DB
}

func (r *PipelineRunRepo) Create(ctx context.Context, run domain.PipelineRun) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO pipeline_runs
		   (id, commit_ref, stage, status, reason, artifact_id, plan_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(run.ID), run.CommitRef, string(run.Stage), string(run.Status), run.Reason,
		string(run.Artifact), string(run.Plan), formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %q: %w", run.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *PipelineRunRepo) Get(ctx context.Context, id domain.RunID) (domain.PipelineRun, error) {
	row := r.DB.QueryRowContext(ctx, runSelect+` WHERE id = ?`, string(id))
	return scanRun(row)
}

func (r *PipelineRunRepo) Update(ctx context.Context, run domain.PipelineRun) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE pipeline_runs
		 SET commit_ref = ?, stage = ?, status = ?, reason = ?, artifact_id = ?, plan_id = ?, updated_at = ?
		 WHERE id = ?`,
		run.CommitRef, string(run.Stage), string(run.Status), run.Reason,
		string(run.Artifact), string(run.Plan), formatTime(run.UpdatedAt), string(run.ID),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %q: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *PipelineRunRepo) List(ctx context.Context) ([]domain.PipelineRun, error) {
	rows, err := r.DB.QueryContext(ctx, runSelect+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const runSelect = `SELECT id, commit_ref, stage, status, reason, artifact_id, plan_id, created_at, updated_at
	 FROM pipeline_runs`

func scanRun(s scanner) (domain.PipelineRun, error) {
	var run domain.PipelineRun
	var id, stageStr, statusStr, artifact, plan, createdAtStr, updatedAtStr string
	if err := s.Scan(&id, &run.CommitRef, &stageStr, &statusStr, &run.Reason,
		&artifact, &plan, &createdAtStr, &updatedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.ID = domain.RunID(id)
	run.Stage = domain.PipelineStage(stageStr)
	run.Status = domain.RunStatus(statusStr)
	run.Artifact = domain.ArtifactID(artifact)
	run.Plan = domain.PlanID(plan)
	var err error
	if run.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return run, err
	}
	if run.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return run, err
	}
	return run, nil
}
