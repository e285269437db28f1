package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

func validParams() domain.ReplacementParams {
	return domain.ReplacementParams{
		MinHealthyPercentage:  90,
		InstanceWarmup:        time.Minute,
		CheckpointDelay:       time.Minute,
		CheckpointPercentages: []int{50, 100},
	}
}

func TestPlanValidate_OK(t *testing.T) {
	plan := domain.ReplacementPlan{TargetVersion: 1, DesiredCount: 10, Params: validParams()}
	if err := plan.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPlanValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.ReplacementPlan)
	}{
		{"zero desired count", func(p *domain.ReplacementPlan) { p.DesiredCount = 0 }},
		{"negative desired count", func(p *domain.ReplacementPlan) { p.DesiredCount = -3 }},
		{"percentage above 100", func(p *domain.ReplacementPlan) { p.Params.MinHealthyPercentage = 120 }},
		{"negative percentage", func(p *domain.ReplacementPlan) { p.Params.MinHealthyPercentage = -1 }},
		{"negative warmup", func(p *domain.ReplacementPlan) { p.Params.InstanceWarmup = -time.Second }},
		{"no checkpoints", func(p *domain.ReplacementPlan) { p.Params.CheckpointPercentages = nil }},
		{"decreasing checkpoints", func(p *domain.ReplacementPlan) {
			p.Params.CheckpointPercentages = []int{50, 25, 100}
		}},
		{"not ending at 100", func(p *domain.ReplacementPlan) {
			p.Params.CheckpointPercentages = []int{25, 50}
		}},
		{"checkpoint above 100", func(p *domain.ReplacementPlan) {
			p.Params.CheckpointPercentages = []int{50, 110}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := domain.ReplacementPlan{TargetVersion: 1, DesiredCount: 10, Params: validParams()}
			tc.mutate(&plan)
			err := plan.Validate()
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("Validate: got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestPlanValidate_RepeatedCheckpointAllowed(t *testing.T) {
	plan := domain.ReplacementPlan{TargetVersion: 1, DesiredCount: 10, Params: validParams()}
	plan.Params.CheckpointPercentages = []int{50, 50, 100}
	if err := plan.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMinHealthyCount_RoundsUp(t *testing.T) {
	cases := []struct {
		desired, pct, want int
	}{
		{10, 90, 9},
		{10, 91, 10},
		{10, 100, 10},
		{3, 50, 2},
		{1, 1, 1},
		{7, 0, 0},
	}
	for _, tc := range cases {
		plan := domain.ReplacementPlan{
			DesiredCount: tc.desired,
			Params:       domain.ReplacementParams{MinHealthyPercentage: tc.pct},
		}
		if got := plan.MinHealthyCount(); got != tc.want {
			t.Errorf("MinHealthyCount(%d, %d%%) = %d, want %d", tc.desired, tc.pct, got, tc.want)
		}
	}
}
