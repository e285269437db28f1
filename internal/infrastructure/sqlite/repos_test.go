package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetforge/fleetforge-server/internal/domain"
	"github.com/fleetforge/fleetforge-server/internal/domain/fleetstoretest"
	"github.com/fleetforge/fleetforge-server/internal/domain/planrepotest"
	"github.com/fleetforge/fleetforge-server/internal/domain/templaterepotest"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/sqlite"
)

func TestTemplateVersionRepo(t *testing.T) {
	templaterepotest.Run(t, func(t *testing.T) domain.TemplateVersionRepository {
		return &sqlite.TemplateVersionRepo{DB: sqlite.OpenTestDB(t)}
	})
}

func TestPlanRepo(t *testing.T) {
	planrepotest.Run(t, func(t *testing.T) domain.PlanRepository {
		return &sqlite.PlanRepo{DB: sqlite.OpenTestDB(t)}
	})
}

func TestFleetStore(t *testing.T) {
	fleetstoretest.Run(t, func(t *testing.T) domain.FleetStore {
		return &sqlite.FleetStore{DB: sqlite.OpenTestDB(t)}
	})
}

func TestArtifactRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateGetSetStatus", func(t *testing.T) {
		repo := &sqlite.ArtifactRepo{DB: sqlite.OpenTestDB(t)}

		a := domain.Artifact{
			ID:           "ami-abc",
			SourceCommit: "deadbeef",
			BuiltAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Status:       domain.ArtifactStatusBuilding,
		}
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := repo.SetStatus(ctx, a.ID, domain.ArtifactStatusReady); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}

		got, err := repo.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != domain.ArtifactStatusReady {
			t.Errorf("Status = %q, want ready", got.Status)
		}
		if got.SourceCommit != "deadbeef" {
			t.Errorf("SourceCommit = %q, want deadbeef", got.SourceCommit)
		}
		if !got.BuiltAt.Equal(a.BuiltAt) {
			t.Errorf("BuiltAt = %v, want %v", got.BuiltAt, a.BuiltAt)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := &sqlite.ArtifactRepo{DB: sqlite.OpenTestDB(t)}

		a := domain.Artifact{ID: "ami-abc", Status: domain.ArtifactStatusReady}
		if err := repo.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, a); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("SetStatusNotFound", func(t *testing.T) {
		repo := &sqlite.ArtifactRepo{DB: sqlite.OpenTestDB(t)}
		err := repo.SetStatus(ctx, "ghost", domain.ArtifactStatusFailed)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("SetStatus: got %v, want ErrNotFound", err)
		}
	})
}

func TestPipelineRunRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateUpdateGet", func(t *testing.T) {
		repo := &sqlite.PipelineRunRepo{DB: sqlite.OpenTestDB(t)}

		run := domain.PipelineRun{
			ID:        "r1",
			CommitRef: "main",
			Stage:     domain.StageSource,
			Status:    domain.RunStatusRunning,
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create: %v", err)
		}

		run.Stage = domain.StageDeploy
		run.Status = domain.RunStatusCompleted
		run.Artifact = "ami-abc"
		run.Plan = "p1"
		run.UpdatedAt = run.UpdatedAt.Add(time.Hour)
		if err := repo.Update(ctx, run); err != nil {
			t.Fatalf("Update: %v", err)
		}

		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Stage != domain.StageDeploy || got.Status != domain.RunStatusCompleted {
			t.Errorf("got stage %q status %q, want deploy/completed", got.Stage, got.Status)
		}
		if got.Artifact != "ami-abc" || got.Plan != "p1" {
			t.Errorf("got artifact %q plan %q", got.Artifact, got.Plan)
		}
	})

	t.Run("ListMostRecentFirst", func(t *testing.T) {
		repo := &sqlite.PipelineRunRepo{DB: sqlite.OpenTestDB(t)}

		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		for i, id := range []domain.RunID{"r1", "r2", "r3"} {
			run := domain.PipelineRun{
				ID:        id,
				Stage:     domain.StageSource,
				Status:    domain.RunStatusRunning,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
				UpdatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.Create(ctx, run); err != nil {
				t.Fatal(err)
			}
		}

		runs, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("List: got %d runs, want 3", len(runs))
		}
		if runs[0].ID != "r3" || runs[2].ID != "r1" {
			t.Errorf("List order: got %s..%s, want r3..r1", runs[0].ID, runs[2].ID)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo := &sqlite.PipelineRunRepo{DB: sqlite.OpenTestDB(t)}
		err := repo.Update(ctx, domain.PipelineRun{ID: "ghost", Stage: domain.StageSource, Status: domain.RunStatusRunning})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})
}
