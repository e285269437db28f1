package dbosworkflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fleetforge/fleetforge-server/internal/application"
	"github.com/fleetforge/fleetforge-server/internal/domain"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/dbosworkflows"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/memfleet"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/sqlite"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	// Ryuk (the reaper) requires a Docker bridge network that does not
	// exist on Podman. We handle cleanup via t.Cleanup instead.
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dbos_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get postgres connection string: %v", err)
	}
	return connStr
}

func TestPipeline_DBOS(t *testing.T) {
	connStr := startPostgres(t)

	ctx := context.Background()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		AppName:     "fleetforge-dbos-test",
		DatabaseURL: connStr,
	})
	if err != nil {
		t.Fatalf("NewDBOSContext: %v", err)
	}

	db := sqlite.OpenTestDB(t)
	runRepo := &sqlite.PipelineRunRepo{DB: db}
	artifactRepo := &sqlite.ArtifactRepo{DB: db}
	templateRepo := &sqlite.TemplateVersionRepo{DB: db}
	planRepo := &sqlite.PlanRepo{DB: db}

	fleet := memfleet.New()
	fleet.Seed(0, 3)

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

	wf := &domain.PipelineWorkflow{
		Runs:      runRepo,
		Artifacts: artifactRepo,
		Templates: templateRepo,
		Source: domain.SourceFunc(func(_ context.Context, ref string) (string, error) {
			return ref + "-sha", nil
		}),
		Builder:  stubBuilder{},
		Replacer: engine,
	}

	wfEngine := &dbosworkflows.Engine{DBOSCtx: dbosCtx}
	runner, err := wfEngine.PipelineRunner(wf)
	if err != nil {
		t.Fatalf("PipelineRunner: %v", err)
	}

	if err := dbos.Launch(dbosCtx); err != nil {
		t.Fatalf("dbos.Launch: %v", err)
	}
	t.Cleanup(func() { dbos.Shutdown(dbosCtx, 5*time.Second) })

	svc := &application.PipelineService{Runs: runRepo, Workflow: runner}

	run, err := svc.Trigger(ctx, application.TriggerPipelineInput{
		CommitRef:    "main",
		DesiredCount: 3,
		Params: domain.ReplacementParams{
			MinHealthyPercentage:  66,
			CheckpointPercentages: []int{100},
		},
	})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if run.Status != domain.RunStatusCompleted {
		t.Errorf("Status = %q (reason %q), want completed", run.Status, run.Reason)
	}
	if run.Plan == "" {
		t.Fatal("run has no plan recorded")
	}

	plan, err := planRepo.Get(ctx, run.Plan)
	if err != nil {
		t.Fatalf("Get plan: %v", err)
	}
	if plan.Status != domain.PlanStatusCompleted {
		t.Errorf("plan Status = %q (reason %q), want completed", plan.Status, plan.Reason)
	}

	snap, err := fleet.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := domain.InServiceOn(snap, plan.TargetVersion); got != 3 {
		t.Errorf("in-service on target version = %d, want 3", got)
	}
}

type stubBuilder struct{}

func (stubBuilder) Build(_ context.Context, commit string) (domain.Artifact, error) {
	return domain.Artifact{
		ID:           domain.ArtifactID("ami-" + commit),
		SourceCommit: commit,
	}, nil
}
