package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// RollbackInput names a prior template version and the pacing for the
// replacement that moves the fleet back onto it.
type RollbackInput struct {
	TargetVersion domain.TemplateVersionID
	DesiredCount  int
	Params        domain.ReplacementParams
}

// RollbackService re-targets the fleet at a prior template version.
// Rollback is not automatic: it is the same replacement engine with an
// older target, recorded as a deploy-only pipeline run.
type RollbackService struct {
	Templates domain.TemplateVersionRepository
	Runs      domain.PipelineRunRepository
	Replacer  domain.ReplacementExecutor

	// NowFn is injectable for tests; nil means real time.
	NowFn func() time.Time
}

// Rollback validates the target version exists and runs a replacement
// plan onto it, returning the terminal plan.
func (s *RollbackService) Rollback(ctx context.Context, in RollbackInput) (domain.ReplacementPlan, error) {
	version, err := s.Templates.Get(ctx, in.TargetVersion)
	if err != nil {
		return domain.ReplacementPlan{}, fmt.Errorf("rollback target version %d: %w", in.TargetVersion, err)
	}

	now := s.now()
	run := domain.PipelineRun{
		ID:        domain.RunID(uuid.NewString()),
		Stage:     domain.StageDeploy,
		Status:    domain.RunStatusRunning,
		Artifact:  version.Artifact,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Runs.Create(ctx, run); err != nil {
		return domain.ReplacementPlan{}, fmt.Errorf("persist rollback run: %w", err)
	}

	plan, execErr := s.Replacer.Execute(ctx, domain.ReplacementPlan{
		TargetVersion: version.ID,
		DesiredCount:  in.DesiredCount,
		Params:        in.Params,
	})

	run.Plan = plan.ID
	run.UpdatedAt = s.now()
	if execErr != nil {
		run.Status = domain.RunStatusFailed
		run.Reason = execErr.Error()
	} else {
		run.Status = domain.RunStatusCompleted
	}
	if err := s.Runs.Update(ctx, run); err != nil && execErr == nil {
		execErr = fmt.Errorf("record rollback run: %w", err)
	}
	return plan, execErr
}

func (s *RollbackService) now() time.Time {
	if s.NowFn != nil {
		return s.NowFn()
	}
	return time.Now()
}
