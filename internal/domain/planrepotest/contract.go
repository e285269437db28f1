// Package planrepotest provides contract tests for
// [domain.PlanRepository] implementations.
package planrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// Factory creates a fresh [domain.PlanRepository] for each test invocation.
type Factory func(t *testing.T) domain.PlanRepository

func samplePlan(id domain.PlanID) domain.ReplacementPlan {
	return domain.ReplacementPlan{
		ID:            id,
		TargetVersion: 3,
		DesiredCount:  10,
		Params: domain.ReplacementParams{
			MinHealthyPercentage:  90,
			InstanceWarmup:        2 * time.Minute,
			CheckpointDelay:       5 * time.Minute,
			CheckpointPercentages: []int{50, 100},
		},
		Status:    domain.PlanStatusRunning,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Run exercises the [domain.PlanRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, samplePlan("p1")); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.TargetVersion != 3 {
			t.Errorf("TargetVersion = %d, want 3", got.TargetVersion)
		}
		if got.Status != domain.PlanStatusRunning {
			t.Errorf("Status = %q, want %q", got.Status, domain.PlanStatusRunning)
		}
		if got.Params.InstanceWarmup != 2*time.Minute {
			t.Errorf("InstanceWarmup = %v, want 2m", got.Params.InstanceWarmup)
		}
		if len(got.Params.CheckpointPercentages) != 2 {
			t.Errorf("CheckpointPercentages = %v, want [50 100]", got.Params.CheckpointPercentages)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, samplePlan("p1")); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, samplePlan("p1"))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("UpdateProgress", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		plan := samplePlan("p1")
		if err := repo.Create(ctx, plan); err != nil {
			t.Fatal(err)
		}

		plan.ReplacedCount = 5
		plan.Status = domain.PlanStatusCompleted
		plan.Reason = ""
		if err := repo.Update(ctx, plan); err != nil {
			t.Fatalf("Update: %v", err)
		}

		got, err := repo.Get(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		if got.ReplacedCount != 5 {
			t.Errorf("ReplacedCount = %d, want 5", got.ReplacedCount)
		}
		if got.Status != domain.PlanStatusCompleted {
			t.Errorf("Status = %q, want %q", got.Status, domain.PlanStatusCompleted)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.Update(context.Background(), samplePlan("ghost"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, samplePlan("p1")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, samplePlan("p2")); err != nil {
			t.Fatal(err)
		}

		plans, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(plans) != 2 {
			t.Fatalf("List: got %d, want 2", len(plans))
		}
	})
}
