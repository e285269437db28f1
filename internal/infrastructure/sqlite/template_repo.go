package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// TemplateVersionRepo implements [domain.TemplateVersionRepository]
// backed by SQLite. The AUTOINCREMENT rowid provides the monotonic
// version numbering; no update or delete statement exists here, which
// keeps the history append-only by construction.
type TemplateVersionRepo struct {
	DB *sql.DB

	// Now is injectable for tests; nil means real time.
	Now func() time.Time
}

func (r *TemplateVersionRepo) Create(ctx context.Context, artifact domain.ArtifactID) (domain.TemplateVersion, error) {
	createdAt := time.Now()
	if r.Now != nil {
		createdAt = r.Now()
	}

	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO template_versions (artifact_id, created_at) VALUES (?, ?)`,
		string(artifact), formatTime(createdAt),
	)
	if err != nil {
		return domain.TemplateVersion{}, fmt.Errorf("insert template version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.TemplateVersion{}, fmt.Errorf("template version id: %w", err)
	}
	return domain.TemplateVersion{
		ID:        domain.TemplateVersionID(id),
		Artifact:  artifact,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (r *TemplateVersionRepo) Get(ctx context.Context, id domain.TemplateVersionID) (domain.TemplateVersion, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, artifact_id, created_at FROM template_versions WHERE id = ?`,
		int64(id),
	)
	return scanTemplateVersion(row)
}

func (r *TemplateVersionRepo) Latest(ctx context.Context) (domain.TemplateVersion, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, artifact_id, created_at FROM template_versions ORDER BY id DESC LIMIT 1`,
	)
	return scanTemplateVersion(row)
}

func (r *TemplateVersionRepo) History(ctx context.Context) ([]domain.TemplateVersion, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, artifact_id, created_at FROM template_versions ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list template versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.TemplateVersion
	for rows.Next() {
		v, err := scanTemplateVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanTemplateVersion(s scanner) (domain.TemplateVersion, error) {
	var v domain.TemplateVersion
	var id int64
	var artifact, createdAtStr string
	if err := s.Scan(&id, &artifact, &createdAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return v, fmt.Errorf("scan template version: %w", err)
	}
	v.ID = domain.TemplateVersionID(id)
	v.Artifact = domain.ArtifactID(artifact)
	t, err := parseTime(createdAtStr)
	if err != nil {
		return v, err
	}
	v.CreatedAt = t
	return v, nil
}
