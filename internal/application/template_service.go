package application

import (
	"context"
	"fmt"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// TemplateService manages the append-only template version history.
// There is no update or delete: changing a template means creating a
// new version.
type TemplateService struct {
	Templates domain.TemplateVersionRepository
	Artifacts domain.ArtifactRepository
}

// CreateVersion binds a ready artifact to the next monotonic version.
func (s *TemplateService) CreateVersion(ctx context.Context, artifact domain.ArtifactID) (domain.TemplateVersion, error) {
	art, err := s.Artifacts.Get(ctx, artifact)
	if err != nil {
		return domain.TemplateVersion{}, err
	}
	if art.Status != domain.ArtifactStatusReady {
		return domain.TemplateVersion{}, fmt.Errorf("%w: artifact %s is %s, not ready",
			domain.ErrInvalidArgument, art.ID, art.Status)
	}
	return s.Templates.Create(ctx, artifact)
}

// Latest returns the newest version, or [domain.ErrNotFound] when the
// history is empty.
func (s *TemplateService) Latest(ctx context.Context) (domain.TemplateVersion, error) {
	return s.Templates.Latest(ctx)
}

// History returns all versions, most recent first. Rollback targets are
// chosen from it.
func (s *TemplateService) History(ctx context.Context) ([]domain.TemplateVersion, error) {
	return s.Templates.History(ctx)
}
