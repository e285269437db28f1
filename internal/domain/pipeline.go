package domain

import (
	"context"
	"time"
)

// RunID identifies a pipeline run.
type RunID string

// PipelineStage is the stage a run is currently in.
type PipelineStage string

const (
	StageSource PipelineStage = "source"
	StageBuild  PipelineStage = "build"
	StageDeploy PipelineStage = "deploy"
)

// RunStatus is the overall status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// PipelineRun records one Source -> Build -> Deploy execution. Stages run
// strictly sequentially: the build publishes its artifact before the
// deploy stage starts, and a failed build means the fleet is never
// touched.
type PipelineRun struct {
	ID        RunID
	CommitRef string
	Stage     PipelineStage
	Status    RunStatus
	// Reason explains a Failed status.
	Reason   string
	Artifact ArtifactID
	// Plan is set once the deploy stage starts a replacement plan.
	Plan      PlanID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Builder produces an artifact from a source commit. The real
// implementation shells out to the image build tooling; builds are slow
// and must respect ctx cancellation.
type Builder interface {
	Build(ctx context.Context, commitRef string) (Artifact, error)
}

// SourceResolver resolves the trigger's commit reference to the exact
// commit the build should use.
type SourceResolver interface {
	Resolve(ctx context.Context, commitRef string) (string, error)
}

// SourceFunc adapts a function to the [SourceResolver] interface.
type SourceFunc func(ctx context.Context, commitRef string) (string, error)

func (f SourceFunc) Resolve(ctx context.Context, commitRef string) (string, error) {
	return f(ctx, commitRef)
}

// ReplacementExecutor runs a replacement plan to a terminal status. The
// engine implements it; tests substitute stubs.
type ReplacementExecutor interface {
	Execute(ctx context.Context, plan ReplacementPlan) (ReplacementPlan, error)
}
