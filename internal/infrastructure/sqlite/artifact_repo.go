package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// ArtifactRepo implements [domain.ArtifactRepository] backed by SQLite.
type ArtifactRepo struct {
	DB *sql.DB
}

func (r *ArtifactRepo) Create(ctx context.Context, a domain.Artifact) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO artifacts (id, source_commit, built_at, status) VALUES (?, ?, ?, ?)`,
		string(a.ID), a.SourceCommit, formatTime(a.BuiltAt), string(a.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("artifact %q: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRepo) Get(ctx context.Context, id domain.ArtifactID) (domain.Artifact, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, source_commit, built_at, status FROM artifacts WHERE id = ?`,
		string(id),
	)
	return scanArtifact(row)
}

func (r *ArtifactRepo) SetStatus(ctx context.Context, id domain.ArtifactID, status domain.ArtifactStatus) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE artifacts SET status = ? WHERE id = ?`,
		string(status), string(id),
	)
	if err != nil {
		return fmt.Errorf("update artifact status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("artifact %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *ArtifactRepo) List(ctx context.Context) ([]domain.Artifact, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, source_commit, built_at, status FROM artifacts ORDER BY built_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func scanArtifact(s scanner) (domain.Artifact, error) {
	var a domain.Artifact
	var id, builtAtStr, statusStr string
	if err := s.Scan(&id, &a.SourceCommit, &builtAtStr, &statusStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return a, fmt.Errorf("scan artifact: %w", err)
	}
	a.ID = domain.ArtifactID(id)
	a.Status = domain.ArtifactStatus(statusStr)
	t, err := parseTime(builtAtStr)
	if err != nil {
		return a, err
	}
	a.BuiltAt = t
	return a, nil
}
