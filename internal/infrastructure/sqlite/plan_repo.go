package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// PlanRepo implements [domain.PlanRepository] backed by SQLite.
type PlanRepo struct {
	DB *sql.DB
}

func (r *PlanRepo) Create(ctx context.Context, p domain.ReplacementPlan) error {
	cps, err := json.Marshal(p.Params.CheckpointPercentages)
	if err != nil {
		return fmt.Errorf("marshal checkpoint percentages: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO replacement_plans
		   (id, target_version, desired_count, min_healthy_percentage,
		    instance_warmup_ns, checkpoint_delay_ns, checkpoint_percentages,
		    status, reason, replaced_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), int64(p.TargetVersion), p.DesiredCount, p.Params.MinHealthyPercentage,
		int64(p.Params.InstanceWarmup), int64(p.Params.CheckpointDelay), string(cps),
		string(p.Status), p.Reason, p.ReplacedCount,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("plan %q: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (r *PlanRepo) Get(ctx context.Context, id domain.PlanID) (domain.ReplacementPlan, error) {
	row := r.DB.QueryRowContext(ctx, planSelect+` WHERE id = ?`, string(id))
	return scanPlan(row)
}

func (r *PlanRepo) Update(ctx context.Context, p domain.ReplacementPlan) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE replacement_plans
		 SET status = ?, reason = ?, replaced_count = ?, updated_at = ?
		 WHERE id = ?`,
		string(p.Status), p.Reason, p.ReplacedCount, formatTime(p.UpdatedAt), string(p.ID),
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("plan %q: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *PlanRepo) List(ctx context.Context) ([]domain.ReplacementPlan, error) {
	rows, err := r.DB.QueryContext(ctx, planSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.ReplacementPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

const planSelect = `SELECT id, target_version, desired_count, min_healthy_percentage,
		    instance_warmup_ns, checkpoint_delay_ns, checkpoint_percentages,
		    status, reason, replaced_count, created_at, updated_at
	 FROM replacement_plans`

func scanPlan(s scanner) (domain.ReplacementPlan, error) {
	var p domain.ReplacementPlan
	var id, cpsJSON, statusStr, createdAtStr, updatedAtStr string
	var targetVersion, warmupNS, delayNS int64
	if err := s.Scan(&id, &targetVersion, &p.DesiredCount, &p.Params.MinHealthyPercentage,
		&warmupNS, &delayNS, &cpsJSON, &statusStr, &p.Reason, &p.ReplacedCount,
		&createdAtStr, &updatedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return p, fmt.Errorf("scan plan: %w", err)
	}
	p.ID = domain.PlanID(id)
	p.TargetVersion = domain.TemplateVersionID(targetVersion)
	p.Params.InstanceWarmup = time.Duration(warmupNS)
	p.Params.CheckpointDelay = time.Duration(delayNS)
	p.Status = domain.PlanStatus(statusStr)
	if err := json.Unmarshal([]byte(cpsJSON), &p.Params.CheckpointPercentages); err != nil {
		return p, fmt.Errorf("unmarshal checkpoint percentages: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return p, err
	}
	return p, nil
}
