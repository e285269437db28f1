package domain

import "context"

// ArtifactRepository persists built artifacts. Artifacts are append-only:
// the only permitted mutation is the Building -> Ready|Failed transition.
type ArtifactRepository interface {
	Create(ctx context.Context, a Artifact) error
	Get(ctx context.Context, id ArtifactID) (Artifact, error)
	SetStatus(ctx context.Context, id ArtifactID, status ArtifactStatus) error
	List(ctx context.Context) ([]Artifact, error)
}

// TemplateVersionRepository persists template versions. The history is
// append-only; no update or delete operation exists. Create allocates
// the next monotonic version ID.
type TemplateVersionRepository interface {
	Create(ctx context.Context, artifact ArtifactID) (TemplateVersion, error)
	Get(ctx context.Context, id TemplateVersionID) (TemplateVersion, error)
	// Latest returns ErrNotFound when no version exists yet.
	Latest(ctx context.Context) (TemplateVersion, error)
	// History returns all versions, most recent first.
	History(ctx context.Context) ([]TemplateVersion, error)
}

// PlanRepository persists replacement plans and their progress.
type PlanRepository interface {
	Create(ctx context.Context, p ReplacementPlan) error
	Get(ctx context.Context, id PlanID) (ReplacementPlan, error)
	Update(ctx context.Context, p ReplacementPlan) error
	List(ctx context.Context) ([]ReplacementPlan, error)
}

// PipelineRunRepository persists pipeline runs.
type PipelineRunRepository interface {
	Create(ctx context.Context, r PipelineRun) error
	Get(ctx context.Context, id RunID) (PipelineRun, error)
	Update(ctx context.Context, r PipelineRun) error
	// List returns all runs, most recent first.
	List(ctx context.Context) ([]PipelineRun, error)
}
