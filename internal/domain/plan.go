package domain

import (
	"fmt"
	"time"
)

// PlanID identifies a replacement plan.
type PlanID string

// PlanStatus is the lifecycle state of a replacement plan.
type PlanStatus string

const (
	PlanStatusRunning   PlanStatus = "running"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Terminal reports whether the status is a final one.
func (s PlanStatus) Terminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed || s == PlanStatusCancelled
}

// ReplacementParams are the caller-provided pacing parameters for a
// replacement plan. They are immutable for the duration of the plan;
// there is no ambient process-wide refresh configuration.
type ReplacementParams struct {
	MinHealthyPercentage int
	InstanceWarmup       time.Duration
	CheckpointDelay      time.Duration
	// CheckpointPercentages must be non-decreasing and end at 100.
	CheckpointPercentages []int
}

// ReplacementPlan is one health-gated, checkpointed swap of the fleet
// onto a target template version.
type ReplacementPlan struct {
	ID            PlanID
	TargetVersion TemplateVersionID
	DesiredCount  int
	Params        ReplacementParams
	Status        PlanStatus
	// Reason explains a Failed or Cancelled terminal status.
	Reason        string
	ReplacedCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MinHealthyCount is the capacity floor: the in-service instance count
// (old and new versions combined) may never drop below it while the plan
// runs.
func (p ReplacementPlan) MinHealthyCount() int {
	return ceilPct(p.DesiredCount, p.Params.MinHealthyPercentage)
}

// Validate rejects malformed plans before any fleet mutation.
func (p ReplacementPlan) Validate() error {
	if p.DesiredCount <= 0 {
		return fmt.Errorf("%w: desired count must be positive, got %d", ErrInvalidArgument, p.DesiredCount)
	}
	if p.Params.MinHealthyPercentage < 0 || p.Params.MinHealthyPercentage > 100 {
		return fmt.Errorf("%w: min healthy percentage must be in [0, 100], got %d",
			ErrInvalidArgument, p.Params.MinHealthyPercentage)
	}
	if p.Params.InstanceWarmup < 0 || p.Params.CheckpointDelay < 0 {
		return fmt.Errorf("%w: warmup and checkpoint delay must not be negative", ErrInvalidArgument)
	}
	cps := p.Params.CheckpointPercentages
	if len(cps) == 0 {
		return fmt.Errorf("%w: at least one checkpoint percentage is required", ErrInvalidArgument)
	}
	prev := 0
	for _, cp := range cps {
		if cp < prev || cp > 100 {
			return fmt.Errorf("%w: checkpoint percentages must be non-decreasing within (0, 100], got %v",
				ErrInvalidArgument, cps)
		}
		prev = cp
	}
	if cps[len(cps)-1] != 100 {
		return fmt.Errorf("%w: checkpoint percentages must end at 100, got %v", ErrInvalidArgument, cps)
	}
	return nil
}

// ceilPct returns ceil(count * pct / 100).
func ceilPct(count, pct int) int {
	return (count*pct + 99) / 100
}
