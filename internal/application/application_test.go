package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetforge/fleetforge-server/internal/application"
	"github.com/fleetforge/fleetforge-server/internal/domain"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/memfleet"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/sqlite"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/syncworkflow"
)

type testHarness struct {
	pipeline  *application.PipelineService
	templates *application.TemplateService
	rollback  *application.RollbackService
	fleetSvc  *application.FleetService
	fleet     *memfleet.Store
	plans     *sqlite.PlanRepo
	artifacts *sqlite.ArtifactRepo
	builder   *commitBuilder
}

func setup(t *testing.T) testHarness {
	t.Helper()
	db := sqlite.OpenTestDB(t)

	runRepo := &sqlite.PipelineRunRepo{DB: db}
	artifactRepo := &sqlite.ArtifactRepo{DB: db}
	templateRepo := &sqlite.TemplateVersionRepo{DB: db}
	planRepo := &sqlite.PlanRepo{DB: db}

	fleet := memfleet.New()
	fleet.Seed(0, 4)

	engine := &domain.ReplacementEngine{
		Fleet: fleet,
		Health: domain.HealthFunc(func(context.Context, domain.InstanceID) (domain.HealthState, error) {
			return domain.HealthHealthy, nil
		}),
		Plans:              planRepo,
		Events:             domain.NopSink{},
		Sleep:              func(context.Context, time.Duration) error { return nil },
		HealthPollInterval: time.Millisecond,
	}

	builder := &commitBuilder{}
	wf := &domain.PipelineWorkflow{
		Runs:      runRepo,
		Artifacts: artifactRepo,
		Templates: templateRepo,
		Source: domain.SourceFunc(func(_ context.Context, ref string) (string, error) {
			return ref, nil
		}),
		Builder:  builder,
		Replacer: engine,
	}

	runner, err := (&syncworkflow.Engine{}).PipelineRunner(wf)
	if err != nil {
		t.Fatalf("PipelineRunner: %v", err)
	}

	return testHarness{
		pipeline:  &application.PipelineService{Runs: runRepo, Workflow: runner},
		templates: &application.TemplateService{Templates: templateRepo, Artifacts: artifactRepo},
		rollback: &application.RollbackService{
			Templates: templateRepo,
			Runs:      runRepo,
			Replacer:  engine,
		},
		fleetSvc:  &application.FleetService{Fleet: fleet},
		fleet:     fleet,
		plans:     planRepo,
		artifacts: artifactRepo,
		builder:   builder,
	}
}

func params() domain.ReplacementParams {
	return domain.ReplacementParams{
		MinHealthyPercentage:  75,
		CheckpointPercentages: []int{50, 100},
	}
}

func TestTriggerPipeline_FullDeploy(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	run, err := h.pipeline.Trigger(ctx, application.TriggerPipelineInput{
		CommitRef:    "commit-a",
		DesiredCount: 4,
		Params:       params(),
	})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("Status = %q (reason %q), want completed", run.Status, run.Reason)
	}
	if run.Artifact != "ami-commit-a" {
		t.Errorf("Artifact = %q, want ami-commit-a", run.Artifact)
	}

	version, err := h.templates.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if version.Artifact != "ami-commit-a" {
		t.Errorf("latest version artifact = %q, want ami-commit-a", version.Artifact)
	}

	snap, err := h.fleetSvc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := domain.InServiceOn(snap, version.ID); got != 4 {
		t.Errorf("in-service on new version = %d, want 4", got)
	}
	if got, _ := h.fleetSvc.InService(ctx); got != 4 {
		t.Errorf("InService = %d, want 4", got)
	}

	plan, err := h.plans.Get(ctx, run.Plan)
	if err != nil {
		t.Fatalf("Get plan: %v", err)
	}
	if plan.Status != domain.PlanStatusCompleted {
		t.Errorf("plan Status = %q, want completed", plan.Status)
	}
}

func TestTriggerPipeline_InvalidInput(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.pipeline.Trigger(ctx, application.TriggerPipelineInput{DesiredCount: 4})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("missing commit ref: got %v, want ErrInvalidArgument", err)
	}

	_, err = h.pipeline.Trigger(ctx, application.TriggerPipelineInput{CommitRef: "main"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero desired count: got %v, want ErrInvalidArgument", err)
	}
}

func TestTriggerPipeline_BuildFailureLeavesFleetUntouched(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.builder.fail = true
	run, err := h.pipeline.Trigger(ctx, application.TriggerPipelineInput{
		CommitRef:    "commit-a",
		DesiredCount: 4,
		Params:       params(),
	})
	if !errors.Is(err, domain.ErrBuildFailed) {
		t.Fatalf("Trigger: got %v, want ErrBuildFailed", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("Status = %q, want failed", run.Status)
	}

	snap, err := h.fleet.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := domain.InServiceOn(snap, 0); got != 4 {
		t.Errorf("in-service on original version = %d, want 4", got)
	}

	if _, err := h.templates.Latest(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Latest after failed build: got %v, want ErrNotFound", err)
	}

	// The failed attempt still shows up in the artifact history.
	artifacts, err := h.artifacts.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 || artifacts[0].Status != domain.ArtifactStatusFailed {
		t.Errorf("artifact history = %+v, want one failed record", artifacts)
	}
}

func TestRollback(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	for _, commit := range []string{"commit-a", "commit-b"} {
		if _, err := h.pipeline.Trigger(ctx, application.TriggerPipelineInput{
			CommitRef:    commit,
			DesiredCount: 4,
			Params:       params(),
		}); err != nil {
			t.Fatalf("Trigger %s: %v", commit, err)
		}
	}

	history, err := h.templates.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history: got %d versions, want 2", len(history))
	}
	prior := history[1]

	plan, err := h.rollback.Rollback(ctx, application.RollbackInput{
		TargetVersion: prior.ID,
		DesiredCount:  4,
		Params:        params(),
	})
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if plan.Status != domain.PlanStatusCompleted {
		t.Errorf("plan Status = %q (reason %q), want completed", plan.Status, plan.Reason)
	}

	snap, err := h.fleet.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := domain.InServiceOn(snap, prior.ID); got != 4 {
		t.Errorf("in-service on rollback version = %d, want 4", got)
	}

	// Rollback leaves the version history untouched: it re-targets, it
	// does not rewrite.
	history, err = h.templates.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("history after rollback: got %d versions, want 2", len(history))
	}

	runs, err := h.pipeline.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Errorf("run history: got %d runs, want 3", len(runs))
	}
}

func TestRollback_UnknownVersion(t *testing.T) {
	h := setup(t)
	_, err := h.rollback.Rollback(context.Background(), application.RollbackInput{
		TargetVersion: 42,
		DesiredCount:  4,
		Params:        params(),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Rollback: got %v, want ErrNotFound", err)
	}
}

func TestCreateVersion_RequiresReadyArtifact(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	must(t, h.artifacts.Create(ctx, domain.Artifact{
		ID:      "ami-building",
		BuiltAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:  domain.ArtifactStatusBuilding,
	}))

	_, err := h.templates.CreateVersion(ctx, "ami-building")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("CreateVersion: got %v, want ErrInvalidArgument", err)
	}

	must(t, h.artifacts.SetStatus(ctx, "ami-building", domain.ArtifactStatusReady))
	if _, err := h.templates.CreateVersion(ctx, "ami-building"); err != nil {
		t.Fatalf("CreateVersion after ready: %v", err)
	}
}

// --- helpers ---

type commitBuilder struct {
	fail bool
}

func (b *commitBuilder) Build(_ context.Context, commit string) (domain.Artifact, error) {
	if b.fail {
		return domain.Artifact{}, errors.New("image build exited 1")
	}
	return domain.Artifact{
		ID:           domain.ArtifactID("ami-" + commit),
		SourceCommit: commit,
	}, nil
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
