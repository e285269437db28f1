package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerInput is the caller-provided input for one pipeline run: what
// to build and how to pace the fleet replacement afterwards.
type TriggerInput struct {
	RunID        RunID
	CommitRef    string
	DesiredCount int
	Params       ReplacementParams
}

// ResolveSourceInput is the input to the resolve-source activity.
type ResolveSourceInput struct {
	RunID     RunID
	CommitRef string
}

// ResolveSourceOutput carries the exact commit the build will use.
type ResolveSourceOutput struct {
	Commit string
}

// BuildInput is the input to the build-artifact activity.
type BuildInput struct {
	RunID  RunID
	Commit string
}

// PlanDeployInput is the input to the plan-deploy activity.
type PlanDeployInput struct {
	RunID    RunID
	Artifact ArtifactID
}

// PlanDeployOutput names the template version the deploy will target.
// NoChange is set when the artifact is already bound to the latest
// version; the workflow then completes without starting a plan.
type PlanDeployOutput struct {
	Version  TemplateVersionID
	NoChange bool
}

// ExecuteReplacementInput is the input to the execute-replacement activity.
type ExecuteReplacementInput struct {
	RunID        RunID
	Version      TemplateVersionID
	DesiredCount int
	Params       ReplacementParams
}

// CompleteRunInput is the input to the complete-run activity.
type CompleteRunInput struct {
	RunID  RunID
	Status RunStatus
	Reason string
}

// PipelineWorkflow sequences the Source -> Build -> Deploy stages as
// durable activities. The build must fully complete and publish its
// artifact before the deploy stage starts; a failed build halts the run
// with the fleet untouched.
type PipelineWorkflow struct {
	Runs      PipelineRunRepository
	Artifacts ArtifactRepository
	Templates TemplateVersionRepository
	Source    SourceResolver
	Builder   Builder
	Replacer  ReplacementExecutor

	// NowFn is injectable for tests; nil means real time.
	NowFn func() time.Time
}

// Name is the stable workflow registration name.
func (w *PipelineWorkflow) Name() string { return "deploy-pipeline" }

// Run executes the pipeline body against the given runner.
func (w *PipelineWorkflow) Run(runner DurableRunner, in TriggerInput) (struct{}, error) {
	src, err := RunActivity(runner, w.ResolveSource(), ResolveSourceInput{
		RunID:     in.RunID,
		CommitRef: in.CommitRef,
	})
	if err != nil {
		return w.fail(runner, in.RunID, err)
	}

	art, err := RunActivity(runner, w.BuildArtifact(), BuildInput{
		RunID:  in.RunID,
		Commit: src.Commit,
	})
	if err != nil {
		return w.fail(runner, in.RunID, err)
	}

	deploy, err := RunActivity(runner, w.PlanDeploy(), PlanDeployInput{
		RunID:    in.RunID,
		Artifact: art.ID,
	})
	if err != nil {
		return w.fail(runner, in.RunID, err)
	}

	if deploy.NoChange {
		_, err = RunActivity(runner, w.CompleteRun(), CompleteRunInput{
			RunID:  in.RunID,
			Status: RunStatusCompleted,
			Reason: "artifact already bound to latest version",
		})
		return struct{}{}, err
	}

	if _, err := RunActivity(runner, w.ExecuteReplacement(), ExecuteReplacementInput{
		RunID:        in.RunID,
		Version:      deploy.Version,
		DesiredCount: in.DesiredCount,
		Params:       in.Params,
	}); err != nil {
		return w.fail(runner, in.RunID, err)
	}

	_, err = RunActivity(runner, w.CompleteRun(), CompleteRunInput{
		RunID:  in.RunID,
		Status: RunStatusCompleted,
	})
	return struct{}{}, err
}

func (w *PipelineWorkflow) fail(runner DurableRunner, id RunID, cause error) (struct{}, error) {
	if _, err := RunActivity(runner, w.CompleteRun(), CompleteRunInput{
		RunID:  id,
		Status: RunStatusFailed,
		Reason: cause.Error(),
	}); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, cause
}

// ResolveSource returns the resolve-source activity: it pins the trigger
// ref to an exact commit and records it on the run.
func (w *PipelineWorkflow) ResolveSource() Activity[ResolveSourceInput, ResolveSourceOutput] {
	return NewActivity("resolve-source", func(ctx context.Context, in ResolveSourceInput) (ResolveSourceOutput, error) {
		commit, err := w.Source.Resolve(ctx, in.CommitRef)
		if err != nil {
			return ResolveSourceOutput{}, fmt.Errorf("resolve source %q: %w", in.CommitRef, err)
		}
		if err := w.updateRun(ctx, in.RunID, func(r *PipelineRun) {
			r.CommitRef = commit
			r.Stage = StageSource
		}); err != nil {
			return ResolveSourceOutput{}, err
		}
		return ResolveSourceOutput{Commit: commit}, nil
	})
}

// BuildArtifact returns the build-artifact activity. The artifact record
// is created Building before the build starts, then flipped to Ready or
// Failed so the history reflects every attempt.
func (w *PipelineWorkflow) BuildArtifact() Activity[BuildInput, Artifact] {
	return NewActivity("build-artifact", func(ctx context.Context, in BuildInput) (Artifact, error) {
		if err := w.updateRun(ctx, in.RunID, func(r *PipelineRun) {
			r.Stage = StageBuild
		}); err != nil {
			return Artifact{}, err
		}

		art, buildErr := w.Builder.Build(ctx, in.Commit)
		if buildErr != nil {
			failed := Artifact{
				ID:           ArtifactID(uuid.NewString()),
				SourceCommit: in.Commit,
				BuiltAt:      w.now(),
				Status:       ArtifactStatusFailed,
			}
			if err := w.Artifacts.Create(ctx, failed); err != nil {
				return Artifact{}, err
			}
			return Artifact{}, fmt.Errorf("%w: %v", ErrBuildFailed, buildErr)
		}

		art.Status = ArtifactStatusReady
		if art.BuiltAt.IsZero() {
			art.BuiltAt = w.now()
		}
		// Builds are idempotent: an unchanged source produces the same
		// artifact ID, and activities run at-least-once.
		if err := w.Artifacts.Create(ctx, art); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return Artifact{}, fmt.Errorf("persist artifact: %w", err)
		}
		if err := w.updateRun(ctx, in.RunID, func(r *PipelineRun) {
			r.Artifact = art.ID
		}); err != nil {
			return Artifact{}, err
		}
		return art, nil
	})
}

// PlanDeploy returns the plan-deploy activity: it binds the artifact to
// a new template version, or reports NoChange when the latest version
// already carries it.
func (w *PipelineWorkflow) PlanDeploy() Activity[PlanDeployInput, PlanDeployOutput] {
	return NewActivity("plan-deploy", func(ctx context.Context, in PlanDeployInput) (PlanDeployOutput, error) {
		if err := w.updateRun(ctx, in.RunID, func(r *PipelineRun) {
			r.Stage = StageDeploy
		}); err != nil {
			return PlanDeployOutput{}, err
		}

		art, err := w.Artifacts.Get(ctx, in.Artifact)
		if err != nil {
			return PlanDeployOutput{}, err
		}
		if art.Status != ArtifactStatusReady {
			return PlanDeployOutput{}, fmt.Errorf("%w: artifact %s is %s, not ready",
				ErrInvalidArgument, art.ID, art.Status)
		}

		latest, err := w.Templates.Latest(ctx)
		switch {
		case err == nil && latest.Artifact == in.Artifact:
			return PlanDeployOutput{Version: latest.ID, NoChange: true}, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return PlanDeployOutput{}, err
		}

		version, err := w.Templates.Create(ctx, in.Artifact)
		if err != nil {
			return PlanDeployOutput{}, fmt.Errorf("create template version: %w", err)
		}
		return PlanDeployOutput{Version: version.ID}, nil
	})
}

// ExecuteReplacement returns the execute-replacement activity: it runs
// the replacement engine to a terminal status and records the plan on
// the run.
func (w *PipelineWorkflow) ExecuteReplacement() Activity[ExecuteReplacementInput, ReplacementPlan] {
	return NewActivity("execute-replacement", func(ctx context.Context, in ExecuteReplacementInput) (ReplacementPlan, error) {
		plan, err := w.Replacer.Execute(ctx, ReplacementPlan{
			TargetVersion: in.Version,
			DesiredCount:  in.DesiredCount,
			Params:        in.Params,
		})
		if plan.ID != "" {
			if uerr := w.updateRun(ctx, in.RunID, func(r *PipelineRun) {
				r.Plan = plan.ID
			}); uerr != nil && err == nil {
				err = uerr
			}
		}
		if err != nil {
			return plan, fmt.Errorf("replacement plan: %w", err)
		}
		return plan, nil
	})
}

// CompleteRun returns the complete-run activity: it records the run's
// terminal status.
func (w *PipelineWorkflow) CompleteRun() Activity[CompleteRunInput, struct{}] {
	return NewActivity("complete-run", func(ctx context.Context, in CompleteRunInput) (struct{}, error) {
		err := w.updateRun(ctx, in.RunID, func(r *PipelineRun) {
			r.Status = in.Status
			r.Reason = in.Reason
		})
		return struct{}{}, err
	})
}

func (w *PipelineWorkflow) updateRun(ctx context.Context, id RunID, mutate func(*PipelineRun)) error {
	run, err := w.Runs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load run %s: %w", id, err)
	}
	mutate(&run)
	run.UpdatedAt = w.now()
	if err := w.Runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	return nil
}

func (w *PipelineWorkflow) now() time.Time {
	if w.NowFn != nil {
		return w.NowFn()
	}
	return time.Now()
}
