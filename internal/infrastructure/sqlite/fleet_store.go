package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// FleetStore implements [domain.FleetStore] backed by SQLite. Each
// mutation runs in a single transaction, and Snapshot is one SELECT, so
// readers never observe a half-applied batch.
type FleetStore struct {
	DB *sql.DB

	// Now is injectable for tests; nil means real time.
	Now func() time.Time
}

func (s *FleetStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FleetStore) Launch(ctx context.Context, version domain.TemplateVersionID, count int) ([]domain.InstanceID, error) {
	if count <= 0 {
		return nil, fmt.Errorf("launch count %d: %w", count, domain.ErrInvalidArgument)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin launch: %w", err)
	}
	defer tx.Rollback()

	launchTime := formatTime(s.now())
	ids := make([]domain.InstanceID, 0, count)
	for i := 0; i < count; i++ {
		id := domain.InstanceID(uuid.NewString())
		_, err := tx.ExecContext(ctx,
			`INSERT INTO instances (id, template_version, lifecycle_state, health, launch_time)
			 VALUES (?, ?, ?, ?, ?)`,
			string(id), int64(version), string(domain.LifecyclePending), string(domain.HealthUnknown), launchTime,
		)
		if err != nil {
			return nil, fmt.Errorf("insert instance: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit launch: %w", err)
	}
	return ids, nil
}

func (s *FleetStore) MarkInService(ctx context.Context, ids []domain.InstanceID) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, string(domain.LifecycleInService), string(domain.HealthHealthy))
	for _, id := range ids {
		args = append(args, string(id))
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE instances SET lifecycle_state = ?, health = ?
		 WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark in service: %w", err)
	}
	n, _ := res.RowsAffected()
	if n != int64(len(ids)) {
		return fmt.Errorf("mark in service: %d of %d instances: %w", n, len(ids), domain.ErrNotFound)
	}
	return nil
}

func (s *FleetStore) Terminate(ctx context.Context, ids []domain.InstanceID) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin terminate: %w", err)
	}
	defer tx.Rollback()

	idArgs := make([]any, 0, len(ids))
	for _, id := range ids {
		idArgs = append(idArgs, string(id))
	}
	in := placeholders(len(ids))

	// Drain before terminating. Both updates commit together, so a
	// snapshot sees the batch either fully serving or fully gone.
	for _, state := range []domain.LifecycleState{domain.LifecycleDraining, domain.LifecycleTerminated} {
		args := append([]any{string(state)}, idArgs...)
		res, err := tx.ExecContext(ctx,
			`UPDATE instances SET lifecycle_state = ? WHERE id IN (`+in+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("terminate: %w", err)
		}
		n, _ := res.RowsAffected()
		if n != int64(len(ids)) {
			return fmt.Errorf("terminate: %d of %d instances: %w", n, len(ids), domain.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit terminate: %w", err)
	}
	return nil
}

func (s *FleetStore) Snapshot(ctx context.Context) ([]domain.Instance, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, template_version, lifecycle_state, health, launch_time
		 FROM instances
		 WHERE lifecycle_state != ?
		 ORDER BY launch_time, id`,
		string(domain.LifecycleTerminated),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	var instances []domain.Instance
	for rows.Next() {
		var inst domain.Instance
		var id, stateStr, healthStr, launchStr string
		var version int64
		if err := rows.Scan(&id, &version, &stateStr, &healthStr, &launchStr); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		inst.ID = domain.InstanceID(id)
		inst.Version = domain.TemplateVersionID(version)
		inst.State = domain.LifecycleState(stateStr)
		inst.Health = domain.HealthState(healthStr)
		if inst.LaunchTime, err = parseTime(launchStr); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}
