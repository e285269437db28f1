package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// TriggerPipelineInput is the caller-provided input for one pipeline run.
type TriggerPipelineInput struct {
	CommitRef    string
	DesiredCount int
	Params       domain.ReplacementParams
}

// PipelineService manages pipeline runs and drives the deploy workflow.
type PipelineService struct {
	Runs     domain.PipelineRunRepository
	Workflow domain.PipelineRunner

	// NowFn is injectable for tests; nil means real time.
	NowFn func() time.Time
}

// Trigger persists a new run and executes the pipeline workflow to
// completion, returning the final run record. A trigger that arrives
// while a replacement plan is active fails with [domain.ErrPlanConflict]
// rather than queuing.
func (s *PipelineService) Trigger(ctx context.Context, in TriggerPipelineInput) (domain.PipelineRun, error) {
	if in.CommitRef == "" {
		return domain.PipelineRun{}, fmt.Errorf("%w: commit ref is required", domain.ErrInvalidArgument)
	}
	if in.DesiredCount <= 0 {
		return domain.PipelineRun{}, fmt.Errorf("%w: desired count must be positive", domain.ErrInvalidArgument)
	}

	now := s.now()
	run := domain.PipelineRun{
		ID:        domain.RunID(uuid.NewString()),
		CommitRef: in.CommitRef,
		Stage:     domain.StageSource,
		Status:    domain.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Runs.Create(ctx, run); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("persist run: %w", err)
	}

	handle, err := s.Workflow.Run(ctx, domain.TriggerInput{
		RunID:        run.ID,
		CommitRef:    in.CommitRef,
		DesiredCount: in.DesiredCount,
		Params:       in.Params,
	})
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("start pipeline workflow: %w", err)
	}
	_, wfErr := handle.AwaitResult(ctx)

	final, err := s.Runs.Get(ctx, run.ID)
	if err != nil {
		return domain.PipelineRun{}, err
	}
	return final, wfErr
}

// Get retrieves a run by ID.
func (s *PipelineService) Get(ctx context.Context, id domain.RunID) (domain.PipelineRun, error) {
	return s.Runs.Get(ctx, id)
}

// List returns all runs, most recent first.
func (s *PipelineService) List(ctx context.Context) ([]domain.PipelineRun, error) {
	return s.Runs.List(ctx)
}

func (s *PipelineService) now() time.Time {
	if s.NowFn != nil {
		return s.NowFn()
	}
	return time.Now()
}
